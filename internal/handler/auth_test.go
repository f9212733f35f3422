package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/punchcardhq/punchcard/internal/database"
	"github.com/punchcardhq/punchcard/internal/middleware"
	"github.com/punchcardhq/punchcard/internal/store"
)

func setupAuthHandler(t *testing.T) (*AuthHandler, *store.SessionStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	staff := store.NewStaffStore(db)
	sessions := store.NewSessionStore(db)
	if _, err := staff.Create("barista@example.com", "Sam", "correct horse", false); err != nil {
		t.Fatalf("create staff: %v", err)
	}
	return NewAuthHandler(staff, sessions, discardLogger()), sessions
}

func postLogin(h *AuthHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestLoginSuccess(t *testing.T) {
	h, sessions := setupAuthHandler(t)

	rec := postLogin(h, `{"email":"barista@example.com","password":"correct horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	sess, err := sessions.GetByToken(cookie.Value)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess == nil {
		t.Error("cookie does not resolve to a session")
	}

	if bytes.Contains(rec.Body.Bytes(), []byte("password_hash")) {
		t.Error("response leaks the password hash")
	}
}

func TestLoginRejections(t *testing.T) {
	h, _ := setupAuthHandler(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"wrong password", `{"email":"barista@example.com","password":"nope"}`, http.StatusUnauthorized},
		{"unknown email", `{"email":"ghost@example.com","password":"correct horse"}`, http.StatusUnauthorized},
		{"missing fields", `{}`, http.StatusUnprocessableEntity},
		{"bad json", `{`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postLogin(h, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if cookie := sessionCookie(rec); cookie != nil {
				t.Error("no session cookie should be set on failure")
			}
		})
	}
}

func TestLogout(t *testing.T) {
	h, sessions := setupAuthHandler(t)

	rec := postLogin(h, `{"email":"barista@example.com","password":"correct horse"}`)
	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: cookie.Value})
	rec = httptest.NewRecorder()
	h.Logout(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}

	sess, err := sessions.GetByToken(cookie.Value)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess != nil {
		t.Error("session should be deleted after logout")
	}

	expired := sessionCookie(rec)
	if expired == nil || expired.MaxAge != -1 {
		t.Error("logout should expire the session cookie")
	}
}
