// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/credential"
	credpostgres "github.com/holomush/authkit/internal/credential/postgres"
	"github.com/holomush/authkit/internal/mail"
	"github.com/holomush/authkit/internal/reset"
	"github.com/holomush/authkit/internal/store"
	"github.com/holomush/authkit/internal/user"
	userpostgres "github.com/holomush/authkit/internal/user/postgres"
	"github.com/holomush/authkit/internal/web"
)

const tokenSecret = "0123456789abcdef0123456789abcdef"

var _ = Describe("Authentication over PostgreSQL", Ordered, func() {
	var (
		ctx         context.Context
		container   *postgres.PostgresContainer
		pool        *pgxpool.Pool
		mailer      *mail.MemoryMailer
		credentials *credential.Service
		server      *httptest.Server
	)

	post := func(path string, body any) *http.Response {
		var buf bytes.Buffer
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		resp, err := http.Post(server.URL+path, "application/json", &buf)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	register := func(email, password string) *http.Response {
		return post("/users/auth/register", map[string]any{
			"data": map[string]any{
				"type":       user.TypeName,
				"attributes": map[string]string{"email": email, "password": password},
			},
		})
	}

	mailedToken := func(email string) string {
		msg, ok := mailer.Last(email)
		Expect(ok).To(BeTrue())
		Expect(msg.Subject).To(Equal(mail.SubjectResetPassword))
		lines := strings.Split(strings.TrimSpace(msg.Body), "\n")
		return lines[len(lines)-1]
	}

	login := func(email, password string) *http.Response {
		return post("/users/auth/login", map[string]string{"email": email, "password": password})
	}

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("authkit_test"),
			postgres.WithUsername("authkit"),
			postgres.WithPassword("authkit"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.Connect(ctx, connStr, store.ConnectOptions{})
		Expect(err).NotTo(HaveOccurred())

		registry := auth.NewRegistry()
		userRepo := userpostgres.NewRepository(pool)
		password, err := auth.NewPasswordStrategy(auth.NewBcryptHasher(), auth.PasswordOptions{Environment: auth.EnvTest})
		Expect(err).NotTo(HaveOccurred())
		tokens, err := auth.NewTokenIssuer(auth.TokenOptions{Secret: []byte(tokenSecret)})
		Expect(err).NotTo(HaveOccurred())
		tokenStrategy, err := auth.NewTokenStrategy(tokens)
		Expect(err).NotTo(HaveOccurred())

		identity, err := registry.Register(user.TypeName, userRepo, tokenStrategy, password)
		Expect(err).NotTo(HaveOccurred())
		users, err := user.NewService(userRepo, identity)
		Expect(err).NotTo(HaveOccurred())
		password.OnUpgrade(users.UpgradeDigest)

		credentials, err = credential.NewService(credpostgres.NewRepository(pool), registry)
		Expect(err).NotTo(HaveOccurred())

		mailer = mail.NewMemoryMailer()
		resets, err := reset.NewService(users, credentials, mailer, time.Hour)
		Expect(err).NotTo(HaveOccurred())

		api, err := web.NewServer(web.Options{
			Users:      users,
			Identities: identity,
			Tokens:     tokens,
			Resets:     resets,
			Mailer:     mailer,
		})
		Expect(err).NotTo(HaveOccurred())
		server = httptest.NewServer(api.Handler())
	})

	AfterAll(func() {
		if server != nil {
			server.Close()
		}
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("resets a password with a mailed token", func() {
		Expect(register("dave@example.com", "123").StatusCode).To(Equal(http.StatusCreated))
		Expect(post("/users/auth/send-reset-password", map[string]string{"email": "dave@example.com"}).StatusCode).
			To(Equal(http.StatusNoContent))

		token := mailedToken("dave@example.com")
		Expect(post("/users/auth/reset-password", map[string]string{"token": token, "password": "456"}).StatusCode).
			To(Equal(http.StatusNoContent))

		Expect(login("dave@example.com", "456").StatusCode).To(Equal(http.StatusOK))
		Expect(login("dave@example.com", "123").StatusCode).To(Equal(http.StatusUnauthorized))

		Expect(post("/users/auth/reset-password", map[string]string{"token": token, "password": "789"}).StatusCode).
			To(Equal(http.StatusUnprocessableEntity))
	})

	It("rejects an unknown reset token", func() {
		Expect(post("/users/auth/reset-password", map[string]string{"token": "wrong", "password": "456"}).StatusCode).
			To(Equal(http.StatusUnprocessableEntity))
	})

	It("rejects a reset without a password", func() {
		Expect(register("erin@example.com", "123").StatusCode).To(Equal(http.StatusCreated))
		Expect(post("/users/auth/send-reset-password", map[string]string{"email": "erin@example.com"}).StatusCode).
			To(Equal(http.StatusNoContent))

		token := mailedToken("erin@example.com")
		Expect(post("/users/auth/reset-password", map[string]string{"token": token}).StatusCode).
			To(Equal(http.StatusUnprocessableEntity))
	})

	It("rejects a duplicate email", func() {
		Expect(register("frank@example.com", "123").StatusCode).To(Equal(http.StatusCreated))
		Expect(register("frank@example.com", "456").StatusCode).To(Equal(http.StatusUnprocessableEntity))
	})

	It("serves the current user for a bearer token", func() {
		Expect(register("grace@example.com", "123").StatusCode).To(Equal(http.StatusCreated))
		resp := login("grace@example.com", "123")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var body struct {
			Token string `json:"token"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())

		req, err := http.NewRequest(http.MethodGet, server.URL+"/users/me", nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Authorization", "Bearer "+body.Token)
		me, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer me.Body.Close()
		Expect(me.StatusCode).To(Equal(http.StatusOK))
	})

	It("keeps the stored secret when a credential is saved again", func() {
		c := &credential.Credential{
			Kind:      credential.KindPasswordReset,
			OwnerID:   ulid.Make().String(),
			OwnerType: user.TypeName,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		Expect(credentials.Save(ctx, c)).To(Succeed())
		original := c.Secret

		c.Secret = "replacement-secret"
		Expect(credentials.Save(ctx, c)).To(Succeed())
		Expect(c.Secret).To(Equal(original))

		redeemed, err := credentials.Redeem(ctx, credential.KindPasswordReset, original)
		Expect(err).NotTo(HaveOccurred())
		Expect(redeemed.ID).To(Equal(c.ID))

		_, err = credentials.Redeem(ctx, credential.KindPasswordReset, "replacement-secret")
		Expect(err).To(HaveOccurred())
		Expect(auth.KindOf(err)).To(Equal(auth.KindUnprocessable))
	})

	It("purges expired credentials", func() {
		_, err := pool.Exec(ctx,
			`INSERT INTO credentials (id, kind, owner_id, owner_type, secret, expires_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ulid.Make().String(), credential.KindPasswordReset, "orphan", user.TypeName,
			"expired-secret", time.Now().Add(-time.Hour), time.Now().Add(-2*time.Hour))
		Expect(err).NotTo(HaveOccurred())

		n, err := credentials.PurgeExpired(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically(">=", 1))
	})
})
