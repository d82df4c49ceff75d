package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/security"
	"github.com/sandeepkv93/session-authority-service/internal/service"
)

type stubValidator struct {
	identity *service.Identity
	err      error
	sawToken string
}

func (v *stubValidator) Validate(_ context.Context, raw string) (*service.Identity, error) {
	v.sawToken = raw
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

func protectedHandler(t *testing.T, wantUserID uint) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("identity missing from context")
		}
		if identity.UserID != wantUserID {
			t.Fatalf("identity user=%d want %d", identity.UserID, wantUserID)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthMiddlewareAcceptsCookie(t *testing.T) {
	validator := &stubValidator{identity: &service.Identity{UserID: 7, Role: domain.RoleUser, SessionID: "s1"}}
	h := AuthMiddleware(validator, false)(protectedHandler(t, 7))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: security.AccessTokenCookie, Value: "cookie-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d want 204", rec.Code)
	}
	if validator.sawToken != "cookie-token" {
		t.Fatalf("validator saw %q", validator.sawToken)
	}
}

func TestAuthMiddlewareAcceptsBearerHeader(t *testing.T) {
	validator := &stubValidator{identity: &service.Identity{UserID: 7, Role: domain.RoleUser, SessionID: "s1"}}
	h := AuthMiddleware(validator, false)(protectedHandler(t, 7))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d want 204", rec.Code)
	}
	if validator.sawToken != "header-token" {
		t.Fatalf("validator saw %q", validator.sawToken)
	}
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	validator := &stubValidator{}
	h := AuthMiddleware(validator, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached without a token")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401", rec.Code)
	}
}

func TestAuthMiddlewareInvalidSessionClearsCookies(t *testing.T) {
	validator := &stubValidator{err: service.ErrSessionInvalid}
	h := AuthMiddleware(validator, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached with an invalid session")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: security.AccessTokenCookie, Value: "stale"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401", rec.Code)
	}
	cleared := 0
	for _, c := range rec.Result().Cookies() {
		if (c.Name == security.AccessTokenCookie || c.Name == security.RefreshTokenCookie) && c.MaxAge < 0 {
			cleared++
		}
	}
	if cleared != 2 {
		t.Fatalf("cleared %d auth cookies, want 2", cleared)
	}
}

func TestAuthMiddlewareRegistryOutageIsNotInvalidity(t *testing.T) {
	validator := &stubValidator{err: errors.New("session registry: connection refused")}
	h := AuthMiddleware(validator, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached during registry outage")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			t.Fatal("cookies cleared on an infrastructure error")
		}
	}
}

func TestAuthMiddlewareMalformedToken(t *testing.T) {
	validator := &stubValidator{err: service.ErrTokenInvalid}
	h := AuthMiddleware(validator, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached with a malformed token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401", rec.Code)
	}
}
