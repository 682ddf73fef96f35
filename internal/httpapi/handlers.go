// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tasklane/tasklane/internal/auth"
)

// Password fields are capped well above any real password so a client
// cannot make the hasher chew on megabytes.
type signupRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=1024"`
}

type signinRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=1024"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=4096"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required,max=512"`
	NewPassword string `json:"new_password" validate:"required,max=1024"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=1024"`
	NewPassword     string `json:"new_password" validate:"required,max=1024"`
}

type deleteAccountRequest struct {
	Password string `json:"password" validate:"required,max=1024"`
}

type verifyEmailRequest struct {
	Token string `json:"token" validate:"required,max=512"`
}

type revokedResponse struct {
	Revoked int64 `json:"revoked"`
}

type handlers struct {
	svc      Service
	logger   *slog.Logger
	validate *requestValidator
}

func (h *handlers) routes(r chi.Router) {
	r.Post("/signup", h.signup)
	r.Post("/signin", h.signin)
	r.Post("/signout", h.signout)
	r.Post("/refresh", h.refresh)
	r.Post("/password-reset/request", h.requestPasswordReset)
	r.Post("/password-reset/confirm", h.confirmPasswordReset)
	r.Post("/verify-email", h.verifyEmail)
	r.Post("/resend-verification", h.resendVerification)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth("read", "account"))
		r.Post("/signout-all", h.signoutAll)
		r.Post("/send-verification", h.sendVerification)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth("manage", "account"))
		r.Post("/password/change", h.changePassword)
		r.Delete("/account", h.deleteAccount)
	})
}

func (h *handlers) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Signup(r.Context(), auth.SignupRequest{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Client:   clientInfo(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *handlers) signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Signin(r.Context(), req.Identifier, req.Password, clientInfo(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) signout(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Signout(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) signoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	n, err := h.svc.SignoutAllDevices(r.Context(), claims.UserID, clientInfo(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revokedResponse{Revoked: n})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, err := h.svc.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *handlers) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.RequestPasswordReset(r.Context(), req.Email, clientInfo(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *handlers) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword, clientInfo(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword, clientInfo(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) deleteAccount(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	var req deleteAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.DeleteAccount(r.Context(), claims.UserID, req.Password, clientInfo(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) sendVerification(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	resp, err := h.svc.SendVerificationEmail(r.Context(), claims.UserID, clientInfo(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.VerifyEmail(r.Context(), req.Token, clientInfo(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.ResendVerificationEmail(r.Context(), req.Email, clientInfo(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}
