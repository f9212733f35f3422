package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/punchcardhq/punchcard/internal/middleware"
	"github.com/punchcardhq/punchcard/internal/store"
)

const sessionTTL = 7 * 24 * time.Hour

type AuthHandler struct {
	staff    *store.StaffStore
	sessions *store.SessionStore
	logger   *slog.Logger
}

func NewAuthHandler(staff *store.StaffStore, sessions *store.SessionStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{staff: staff, sessions: sessions, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid_argument", "invalid JSON")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid_argument", "email and password are required")
		return
	}

	staff, err := h.staff.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("staff lookup failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "storage_error", "login failed")
		return
	}
	// Same response for unknown email and wrong password.
	if staff == nil || bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(req.Password)) != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	sess, err := h.sessions.Create(staff.ID, sessionTTL)
	if err != nil {
		h.logger.Error("create session failed", "staff_id", staff.ID, "error", err)
		errorJSON(w, http.StatusInternalServerError, "storage_error", "login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, staff)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Delete(cookie.Value); err != nil {
			h.logger.Warn("delete session failed", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
