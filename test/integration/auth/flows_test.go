// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

//go:build integration

package auth_test

import (
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/tasklane/tasklane/internal/auth"
)

const password = "correct-horse-42"

func signup(email, username string) auth.AuthResponse {
	GinkgoHelper()
	var resp auth.AuthResponse
	Expect(call(http.MethodPost, "/auth/signup", map[string]string{
		"email": email, "username": username, "password": password,
	}, "", &resp)).To(Equal(http.StatusCreated))
	return resp
}

var _ = Describe("Session lifecycle", func() {
	It("signs up, refreshes with rotation and detects replay", func() {
		created := signup("rotation@example.com", "rotation")
		Expect(created.User.Email).To(Equal("rotation@example.com"))
		Expect(created.User.EmailVerified).To(BeFalse())

		var rotated auth.TokenPair
		Expect(call(http.MethodPost, "/auth/refresh", map[string]string{
			"refresh_token": created.Tokens.RefreshToken,
		}, "", &rotated)).To(Equal(http.StatusOK))
		Expect(rotated.RefreshToken).NotTo(Equal(created.Tokens.RefreshToken))

		var replay apiError
		Expect(call(http.MethodPost, "/auth/refresh", map[string]string{
			"refresh_token": created.Tokens.RefreshToken,
		}, "", &replay)).To(Equal(http.StatusUnauthorized))
		Expect(replay.Error.Message).To(Equal(auth.MsgInvalidToken))
	})

	It("lets exactly one concurrent refresh win", func() {
		created := signup("race@example.com", "race")

		const racers = 6
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			codes []int
		)
		for range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				code := call(http.MethodPost, "/auth/refresh", map[string]string{
					"refresh_token": created.Tokens.RefreshToken,
				}, "", nil)
				mu.Lock()
				codes = append(codes, code)
				mu.Unlock()
			}()
		}
		wg.Wait()

		ok := 0
		for _, c := range codes {
			if c == http.StatusOK {
				ok++
			} else {
				Expect(c).To(Equal(http.StatusUnauthorized))
			}
		}
		Expect(ok).To(Equal(1))
	})

	It("signs in by username and signs out every device", func() {
		signup("devices@example.com", "devices")

		var second auth.AuthResponse
		Expect(call(http.MethodPost, "/auth/signin", map[string]string{
			"identifier": "DEVICES", "password": password,
		}, "", &second)).To(Equal(http.StatusOK))
		Expect(env.outbox.Sent(auth.NotifyNewLogin, "devices@example.com")).To(HaveLen(1))

		var revoked struct {
			Revoked int64 `json:"revoked"`
		}
		Expect(call(http.MethodPost, "/auth/signout-all", nil, second.Tokens.AccessToken, &revoked)).To(Equal(http.StatusOK))
		Expect(revoked.Revoked).To(Equal(int64(2)))

		Expect(call(http.MethodPost, "/auth/refresh", map[string]string{
			"refresh_token": second.Tokens.RefreshToken,
		}, "", nil)).To(Equal(http.StatusUnauthorized))
	})
})

var _ = Describe("Password reset", func() {
	It("resets once with the mailed token and revokes sessions", func() {
		created := signup("reset@example.com", "resetter")

		var accepted auth.MessageResponse
		Expect(call(http.MethodPost, "/auth/password-reset/request", map[string]string{
			"email": "Reset@Example.com",
		}, "", &accepted)).To(Equal(http.StatusAccepted))
		Expect(accepted.Message).To(Equal(auth.MsgResetRequested))

		mail, ok := env.outbox.Last(auth.NotifyPasswordReset, "reset@example.com")
		Expect(ok).To(BeTrue())
		Expect(mail.Token).NotTo(BeEmpty())

		body := map[string]string{"token": mail.Token, "new_password": "brand-new-secret-7"}
		Expect(call(http.MethodPost, "/auth/password-reset/confirm", body, "", nil)).To(Equal(http.StatusOK))
		Expect(call(http.MethodPost, "/auth/password-reset/confirm", body, "", nil)).To(Equal(http.StatusBadRequest))

		Expect(call(http.MethodPost, "/auth/refresh", map[string]string{
			"refresh_token": created.Tokens.RefreshToken,
		}, "", nil)).To(Equal(http.StatusUnauthorized))

		Expect(call(http.MethodPost, "/auth/signin", map[string]string{
			"identifier": "reset@example.com", "password": "brand-new-secret-7",
		}, "", nil)).To(Equal(http.StatusOK))
	})

	It("answers identically for unknown emails", func() {
		var accepted auth.MessageResponse
		Expect(call(http.MethodPost, "/auth/password-reset/request", map[string]string{
			"email": "ghost@example.com",
		}, "", &accepted)).To(Equal(http.StatusAccepted))
		Expect(accepted.Message).To(Equal(auth.MsgResetRequested))
		Expect(env.outbox.Sent(auth.NotifyPasswordReset, "ghost@example.com")).To(BeEmpty())
	})
})

var _ = Describe("Email verification", func() {
	It("verifies with the mailed token", func() {
		created := signup("verify@example.com", "verifier")

		Expect(call(http.MethodPost, "/auth/send-verification", nil, created.Tokens.AccessToken, nil)).To(Equal(http.StatusAccepted))
		mail, ok := env.outbox.Last(auth.NotifyEmailVerification, "verify@example.com")
		Expect(ok).To(BeTrue())

		var verified auth.MessageResponse
		Expect(call(http.MethodPost, "/auth/verify-email", map[string]string{"token": mail.Token}, "", &verified)).To(Equal(http.StatusOK))
		Expect(verified.Message).To(Equal(auth.MsgEmailVerified))

		var signedIn auth.AuthResponse
		Expect(call(http.MethodPost, "/auth/signin", map[string]string{
			"identifier": "verify@example.com", "password": password,
		}, "", &signedIn)).To(Equal(http.StatusOK))
		Expect(signedIn.User.EmailVerified).To(BeTrue())
	})
})

var _ = Describe("Account management", func() {
	It("changes the password and then deletes the account", func() {
		created := signup("manage@example.com", "manager")
		bearer := created.Tokens.AccessToken

		Expect(call(http.MethodPost, "/auth/password/change", map[string]string{
			"current_password": password, "new_password": "rotated-secret-99",
		}, bearer, nil)).To(Equal(http.StatusOK))

		Expect(call(http.MethodDelete, "/auth/account", map[string]string{
			"password": "rotated-secret-99",
		}, bearer, nil)).To(Equal(http.StatusOK))

		var gone apiError
		Expect(call(http.MethodPost, "/auth/signin", map[string]string{
			"identifier": "manage@example.com", "password": "rotated-secret-99",
		}, "", &gone)).To(Equal(http.StatusUnauthorized))
		Expect(gone.Error.Message).To(Equal(auth.MsgInvalidCredentials))

		var rows int
		Expect(env.pool.QueryRow(env.ctx,
			`SELECT count(*) FROM refresh_tokens WHERE user_id = $1`, created.User.ID).Scan(&rows)).To(Succeed())
		Expect(rows).To(BeZero())
	})
})
