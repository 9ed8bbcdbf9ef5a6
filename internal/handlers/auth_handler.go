package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dhruvbuilds/strategia-connect/internal/middleware"
	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/services"
	"github.com/dhruvbuilds/strategia-connect/internal/session"
	"github.com/dhruvbuilds/strategia-connect/internal/verify"
)

// AuthHandler covers allowlist verification, signup, login and the organizer
// code.
type AuthHandler struct {
	sessions  *session.Manager
	registry  *verify.Registry
	recaptcha *services.RecaptchaVerifier
}

func NewAuthHandler(sessions *session.Manager, registry *verify.Registry, recaptcha *services.RecaptchaVerifier) *AuthHandler {
	return &AuthHandler{sessions: sessions, registry: registry, recaptcha: recaptcha}
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req models.VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := c.Verify(ctx, req.Email, req.Phone)
	if err != nil {
		writeError(w, "Verify", err)
		return
	}
	if !res.Verified() {
		log.Printf("[Verify] session=%s failed reason=%q", c.ID(), res.Reason)
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(res))
}

type signupBody struct {
	models.SignupRequest
	RecaptchaToken string `json:"recaptchaToken"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req signupBody
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(h.registry.Interests, h.registry.Goals); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	if h.recaptcha.Enabled() {
		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()
		ip := middleware.ClientIP(r)
		passed, reason, err := h.recaptcha.Verify(ctx, req.RecaptchaToken, ip)
		if err != nil {
			log.Printf("[Signup] recaptcha error ip=%s err=%v", ip, err)
			writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to verify reCAPTCHA"))
			return
		}
		if !passed {
			log.Printf("[Signup] recaptcha failed ip=%s reason=%s", ip, reason)
			writeJSON(w, http.StatusForbidden, models.NewErrorResponse("reCAPTCHA verification failed"))
			return
		}
	}

	res, err := c.Signup(req.SignupRequest)
	if err != nil {
		writeError(w, "Signup", err)
		return
	}
	if res.Existing {
		writeJSON(w, http.StatusConflict, models.APIResponse{
			Success: false,
			Error:   "An account already exists for this email, please log in",
			Data:    res,
		})
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(res))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req models.VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := c.Login(ctx, req.Email, req.Phone)
	if err != nil {
		writeError(w, "Login", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(res))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	c.Logout()
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(c.State()))
}

func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req models.AdminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := c.AdminLogin(req.Code); err != nil {
		writeError(w, "AdminLogin", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(c.State()))
}

func (h *AuthHandler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	c.AdminLogout()
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(c.State()))
}
