// README: Tests for Firebase auth middleware and role gating.
package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"rideflow/internal/http/middleware"
	"rideflow/internal/infra"
)

// stubVerifier is a test double for infra.TokenVerifier.
type stubVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func newTestRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"uid":  middleware.CallerUID(c),
			"role": middleware.CallerRole(c),
		})
	})
	r.GET("/admin", middleware.RequireRole("admin"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func doRequest(r *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingHeader(t *testing.T) {
	r := newTestRouter(&stubVerifier{token: &infra.FirebaseToken{UID: "user1"}})
	if w := doRequest(r, "/test", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_InvalidBearerPrefix(t *testing.T) {
	r := newTestRouter(&stubVerifier{token: &infra.FirebaseToken{UID: "user1"}})
	if w := doRequest(r, "/test", "Token sometoken"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_VerifierError(t *testing.T) {
	r := newTestRouter(&stubVerifier{err: errors.New("bad token")})
	if w := doRequest(r, "/test", "Bearer invalidtoken"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidToken_UIDAndRolePopulated(t *testing.T) {
	token := &infra.FirebaseToken{
		UID:    "driver123",
		Claims: map[string]interface{}{"role": "driver"},
	}
	r := newTestRouter(&stubVerifier{token: token})
	w := doRequest(r, "/test", "Bearer validtoken")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "driver123") {
		t.Errorf("expected uid driver123 in body, got %s", body)
	}
	if !strings.Contains(body, "driver") {
		t.Errorf("expected role driver in body, got %s", body)
	}
}

func TestAuth_ValidToken_NoRoleClaim(t *testing.T) {
	token := &infra.FirebaseToken{
		UID:    "rider456",
		Claims: map[string]interface{}{},
	}
	r := newTestRouter(&stubVerifier{token: token})
	w := doRequest(r, "/test", "Bearer validtoken")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rider456") {
		t.Errorf("expected uid rider456 in body")
	}
}

func TestRequireRole_WrongRoleForbidden(t *testing.T) {
	token := &infra.FirebaseToken{
		UID:    "rider1",
		Claims: map[string]interface{}{"role": "rider"},
	}
	r := newTestRouter(&stubVerifier{token: token})
	if w := doRequest(r, "/admin", "Bearer validtoken"); w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestRequireRole_MatchingRoleAllowed(t *testing.T) {
	token := &infra.FirebaseToken{
		UID:    "admin1",
		Claims: map[string]interface{}{"role": "admin"},
	}
	r := newTestRouter(&stubVerifier{token: token})
	if w := doRequest(r, "/admin", "Bearer validtoken"); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
