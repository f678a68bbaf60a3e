// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package accounts_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/holochat/internal/auth"
	authpg "github.com/holomush/holochat/internal/auth/postgres"
)

const password = "Correct-Horse9"

type apiResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type apiToken struct {
	TokenID string    `json:"token_id"`
	Result  apiResult `json:"result"`
}

func post(path string, body any, out any) int {
	payload, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())
	resp, err := http.Post(api.URL+path, "application/json", bytes.NewReader(payload))
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	return resp.StatusCode
}

func register(username, email, pw string) (int, apiResult) {
	var res apiResult
	status := post("/v1/accounts", map[string]string{"username": username, "email": email, "password": pw}, &res)
	return status, res
}

func requestToken(email, secret string) (int, apiToken) {
	var res apiToken
	status := post("/v1/tokens", map[string]string{"email": email, "password": secret}, &res)
	return status, res
}

func identityCount() int {
	var n int
	Expect(pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n)).To(Succeed())
	return n
}

var _ = Describe("Account lifecycle", func() {
	It("verifies the email with the code, then accepts only the password", func() {
		status, res := register("alice", "alice@example.com", password)
		Expect(status).To(Equal(http.StatusCreated))
		Expect(res.Success).To(BeTrue())

		code := mail.codeFor("alice@example.com")
		Expect(code).NotTo(BeEmpty())

		status, tok := requestToken("alice@example.com", password)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(tok.TokenID).To(BeEmpty())

		status, tok = requestToken("alice@example.com", code)
		Expect(status).To(Equal(http.StatusOK))
		Expect(tok.TokenID).NotTo(BeEmpty())

		req, err := http.NewRequest(http.MethodGet, api.URL+"/v1/tokens/self", nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Authorization", "Bearer "+tok.TokenID)
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		status, _ = requestToken("alice@example.com", code)
		Expect(status).To(Equal(http.StatusUnauthorized))

		status, tok = requestToken("Alice@Example.com", password)
		Expect(status).To(Equal(http.StatusOK))
		Expect(tok.Result.Success).To(BeTrue())
	})

	It("rejects duplicates regardless of case", func() {
		status, _ := register("bob", "bob@example.com", password)
		Expect(status).To(Equal(http.StatusCreated))

		status, res := register("BOB", "other@example.com", password)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(res.Message).To(ContainSubstring("already taken"))

		status, res = register("robert", "BOB@example.com", password)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(res.Message).To(ContainSubstring("already registered"))
	})

	It("creates nothing for a weak password", func() {
		before := identityCount()

		status, res := register("carol", "carol@example.com", "weak")
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(res.Success).To(BeFalse())
		Expect(identityCount()).To(Equal(before))
	})

	It("admits exactly one of two concurrent registrations for the same username", func() {
		var wg sync.WaitGroup
		statuses := make([]int, 2)
		for i, email := range []string{"dave1@example.com", "dave2@example.com"} {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				statuses[i], _ = register("dave", email, password)
			}()
		}
		wg.Wait()

		Expect(statuses).To(ConsistOf(http.StatusCreated, http.StatusBadRequest))
	})

	It("answers an unknown account like a wrong password", func() {
		status, unknown := requestToken("nobody@example.com", password)
		Expect(status).To(Equal(http.StatusUnauthorized))

		register("erin", "erin@example.com", password)
		status, wrong := requestToken("erin@example.com", "Wrong-Horse9")
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(wrong.Result.Message).To(Equal(unknown.Result.Message))
	})

	It("throttles repeated token requests per email", func() {
		for range maxAttempts {
			status, _ := requestToken("mallory@example.com", "guess")
			Expect(status).To(Equal(http.StatusUnauthorized))
		}
		status, tok := requestToken("mallory@example.com", "guess")
		Expect(status).To(Equal(http.StatusTooManyRequests))
		Expect(tok.Result.Success).To(BeFalse())
	})
})

var _ = Describe("Session token storage", func() {
	It("accepts tokens issued the week before a daylight saving change", func() {
		cfg, err := pgxpool.ParseConfig(dsn)
		Expect(err).NotTo(HaveOccurred())
		cfg.ConnConfig.RuntimeParams["timezone"] = "America/New_York"
		nyPool, err := pgxpool.NewWithConfig(ctx, cfg)
		Expect(err).NotTo(HaveOccurred())
		defer nyPool.Close()

		identity, err := auth.NewIdentity("frank", "frank@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(authpg.NewIdentityRepository(nyPool).Create(ctx, identity)).To(Succeed())

		ny, err := time.LoadLocation("America/New_York")
		Expect(err).NotTo(HaveOccurred())
		// US clocks move forward on 2026-03-08.
		issuedAt := time.Date(2026, 3, 5, 12, 0, 0, 0, ny)
		session, err := auth.NewSessionToken(identity.ID, auth.HashSessionToken("dst-token"), auth.DefaultApplication, issuedAt)
		Expect(err).NotTo(HaveOccurred())

		tokens := authpg.NewSessionTokenRepository(nyPool)
		Expect(tokens.Create(ctx, session)).To(Succeed())

		got, err := tokens.GetByTokenHash(ctx, session.TokenHash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ExpiresAt.Sub(got.IssuedAt)).To(Equal(auth.SessionTokenExpiry))
	})
})
