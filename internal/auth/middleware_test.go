package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler(t *testing.T, wantClaims bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); ok != wantClaims {
			t.Fatalf("claims in context = %v, want %v", ok, wantClaims)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AcceptsBearerToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, "ops", []string{ScopeWrite}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/layers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	Middleware(secret, ScopeWrite)(okHandler(t, true)).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMiddleware_RejectsMissingAndInvalidTokens(t *testing.T) {
	secret := []byte("test-secret")
	handler := Middleware(secret, ScopeWrite)(okHandler(t, true))

	for _, header := range []string{"", "Bearer not-a-token", "Basic dXNlcjpwYXNz"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/layers", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("Authorization %q: expected 401, got %d", header, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("missing WWW-Authenticate header")
		}
	}
}

func TestMiddleware_RequiresScope(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, "viewer", nil, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/layers/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	Middleware(secret, ScopeWrite)(okHandler(t, true)).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestMiddleware_DisabledWithoutSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/layers", nil)
	rr := httptest.NewRecorder()

	Middleware(nil, ScopeWrite)(okHandler(t, false)).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", rr.Code)
	}
}

func TestMiddleware_QueryTokenOnlyForStreamUpgrade(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, "ops", []string{ScopeWrite}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	handler := Middleware(secret, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timelines/t1/stream?token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	rr := httptest.NewRecorder()
	handler(okHandler(t, true)).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for stream upgrade, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/timelines?token="+token, nil)
	rr = httptest.NewRecorder()
	handler(okHandler(t, true)).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for query token outside stream, got %d", rr.Code)
	}
}
