// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hash algorithm names accepted by NewHasher.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// OWASP-recommended argon2id parameters. The time parameter is the cost
// factor passed to Hash.
const (
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
	argon2MaxTime = 64

	// Upper bounds accepted when verifying stored digests.
	argon2MaxMemory = 256 * 1024 // KiB
	argon2MaxKeyLen = 1024
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// Hasher is a one-way, cost-tunable secret hashing primitive.
type Hasher interface {
	// Hash produces a self-describing digest of secret at the given cost.
	Hash(secret string, cost int) (string, error)

	// Compare checks secret against digest.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid digest.
	Compare(secret, digest string) (bool, error)

	// NeedsUpgrade returns true if digest was not produced by this hasher.
	NeedsUpgrade(digest string) bool
}

// NewHasher returns the hasher for the named algorithm.
func NewHasher(algorithm string) (Hasher, error) {
	switch algorithm {
	case "", AlgorithmBcrypt:
		return NewBcryptHasher(), nil
	case AlgorithmArgon2id:
		return NewArgon2idHasher(), nil
	default:
		return nil, oops.Code("AUTH_UNKNOWN_ALGORITHM").
			With("algorithm", algorithm).
			Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// BcryptHasher implements Hasher using bcrypt. The cost is clamped to the
// range bcrypt accepts.
type BcryptHasher struct{}

// NewBcryptHasher creates a new BcryptHasher.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{}
}

// Hash produces a bcrypt digest of secret.
func (h *BcryptHasher) Hash(secret string, cost int) (string, error) {
	if secret == "" {
		return "", ErrEmptyPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), clampBcryptCost(cost))
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").With("algorithm", AlgorithmBcrypt).Wrap(err)
	}
	return string(b), nil
}

// Compare checks secret against a bcrypt digest. Argon2id digests are
// verified too so they can be upgraded.
func (h *BcryptHasher) Compare(secret, digest string) (bool, error) {
	if isArgon2idDigest(digest) {
		return (&Argon2idHasher{}).Compare(secret, digest)
	}
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", AlgorithmBcrypt).Wrap(err)
}

// NeedsUpgrade returns true if digest is not a bcrypt digest.
func (h *BcryptHasher) NeedsUpgrade(digest string) bool {
	return !isBcryptDigest(digest)
}

func isBcryptDigest(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

func clampBcryptCost(cost int) int {
	if cost < bcrypt.MinCost {
		return bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		return bcrypt.MaxCost
	}
	return cost
}

// Argon2idHasher implements Hasher using argon2id. The cost is the argon2
// time parameter.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id digest of secret in PHC string format.
func (h *Argon2idHasher) Hash(secret string, cost int) (string, error) {
	if secret == "" {
		return "", ErrEmptyPassword
	}

	t := uint32(min(max(cost, 1), argon2MaxTime)) //nolint:gosec // bounded above

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(secret), salt, t, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		t,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Compare checks secret against an argon2id digest. Bcrypt digests are
// verified too so they can be upgraded.
func (h *Argon2idHasher) Compare(secret, digest string) (bool, error) {
	if isBcryptDigest(digest) {
		return (&BcryptHasher{}).Compare(secret, digest)
	}
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != AlgorithmArgon2id {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, t, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &t, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if t < 1 || t > argon2MaxTime {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("time value %d out of range [1, %d]", t, argon2MaxTime)
	}
	if threads < 1 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range [1, 255]", threads)
	}
	if memory < 8*threads || memory > argon2MaxMemory {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("memory value %d out of range [%d, %d]", memory, 8*threads, argon2MaxMemory)
	}

	keyLen := len(expected)
	if keyLen < 4 || keyLen > argon2MaxKeyLen {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(secret), salt, t, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade returns true if digest is not argon2id.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	return !isArgon2idDigest(digest)
}

func isArgon2idDigest(digest string) bool {
	return strings.HasPrefix(digest, "$argon2id$")
}
