// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenStrategyName is the name of the bearer token strategy.
const TokenStrategyName = "token"

// Token defaults.
const (
	DefaultTokenTTL    = 24 * time.Hour
	DefaultTokenLeeway = 30 * time.Second
	MinTokenSecretLen  = 32
	AccessTokenParam   = "access_token"
)

// TokenOptions configures a TokenIssuer.
type TokenOptions struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Leeway time.Duration

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Claims are the JWT claims of an access token.
type Claims struct {
	jwt.RegisteredClaims
	IdentityType string `json:"identity_type"`
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(opts TokenOptions) (*TokenIssuer, error) {
	if len(opts.Secret) < MinTokenSecretLen {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("min_length", MinTokenSecretLen).
			Errorf("token secret must be at least %d bytes", MinTokenSecretLen)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTokenTTL
	}
	if opts.Leeway <= 0 {
		opts.Leeway = DefaultTokenLeeway
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TokenIssuer{
		secret: opts.Secret,
		issuer: opts.Issuer,
		ttl:    opts.TTL,
		leeway: opts.Leeway,
		now:    opts.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs an access token for identity of the given type.
func (i *TokenIssuer) Issue(typeName string, identity Identity) (string, time.Time, error) {
	now := i.now().UTC()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   identity.IdentityID(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		IdentityType: typeName,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_SIGN_FAILED").
			With("identity_type", typeName).
			Wrap(err)
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, issuer and expiry and returns the claims.
func (i *TokenIssuer) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(i.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_TOKEN").Wrap(err)
	}
	if !parsed.Valid {
		return nil, oops.Code("AUTH_INVALID_TOKEN").Errorf("token is not valid")
	}
	return claims, nil
}

// TokenStrategy authenticates requests carrying a bearer access token.
type TokenStrategy struct {
	issuer *TokenIssuer
	logger *slog.Logger
}

// NewTokenStrategy creates a TokenStrategy verifying tokens with issuer.
func NewTokenStrategy(issuer *TokenIssuer) (*TokenStrategy, error) {
	return NewTokenStrategyWithLogger(issuer, slog.Default())
}

// NewTokenStrategyWithLogger creates a TokenStrategy with a custom logger.
func NewTokenStrategyWithLogger(issuer *TokenIssuer, logger *slog.Logger) (*TokenStrategy, error) {
	if issuer == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token issuer is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	return &TokenStrategy{
		issuer: issuer,
		logger: logger.With("strategy", TokenStrategyName),
	}, nil
}

// Name implements Strategy.
func (s *TokenStrategy) Name() string {
	return TokenStrategyName
}

// AuthenticateRequest implements Strategy.
func (s *TokenStrategy) AuthenticateRequest(ctx context.Context, req *Request, typ IdentityType) (Identity, error) {
	raw := bearerToken(req)
	if raw == "" {
		return nil, Unauthorized("AUTH_MISSING_TOKEN", "missing bearer token")
	}

	claims, err := s.issuer.Parse(raw)
	if err != nil {
		s.logger.DebugContext(ctx, "token rejected", "request_id", req.ID, "reason", err.Error())
		return nil, Unauthorized("AUTH_INVALID_TOKEN", "invalid or expired token")
	}
	if claims.IdentityType != typ.TypeName() {
		return nil, Unauthorized("AUTH_INVALID_TOKEN", "invalid or expired token")
	}

	identity, err := typ.FindOne(ctx, ByID(claims.Subject))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Unauthorized("AUTH_INVALID_TOKEN", "invalid or expired token")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("identity_type", typ.TypeName()).
			With("identity_id", claims.Subject).
			Wrap(err)
	}
	return identity, nil
}

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token parameter.
func bearerToken(req *Request) string {
	if req.Header != nil {
		if h := req.Header.Get("Authorization"); h != "" {
			scheme, token, ok := strings.Cut(h, " ")
			if ok && strings.EqualFold(scheme, "Bearer") {
				return strings.TrimSpace(token)
			}
			return ""
		}
	}
	token, _ := req.Params.Get(AccessTokenParam)
	return token
}
