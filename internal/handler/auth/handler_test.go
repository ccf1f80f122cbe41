package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	authService "github.com/mri-lab/mri-console/internal/service/auth"
)

func setupRouter(t *testing.T) (*chi.Mux, *authService.Service) {
	t.Helper()
	svc, err := authService.NewService(authService.Config{Secret: "s", TTL: time.Hour, AdminKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := chi.NewRouter()
	New(svc, nil).RegisterRoutes(r)
	return r, svc
}

func login(r http.Handler, username, password string) *httptest.ResponseRecorder {
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestTokenIssuesVerifiableJWT(t *testing.T) {
	r, svc := setupRouter(t)

	resp := login(r, "admin", "admin123")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body tokenResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Role != "admin" || body.Username != "admin" {
		t.Fatalf("unexpected token response %+v", body)
	}
	if _, err := svc.Verify(body.AccessToken); err != nil {
		t.Fatalf("expected verifiable token, got %v", err)
	}
}

func TestTokenRejectsBadPassword(t *testing.T) {
	r, _ := setupRouter(t)
	if resp := login(r, "doctor", "nope"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestRegister(t *testing.T) {
	r, _ := setupRouter(t)

	post := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := post(`{"username":"nurse","email":"n@x","password":"pw","role":"user"}`); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if code := post(`{"username":"nurse","password":"pw"}`); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate, got %d", code)
	}
	if code := post(`{"username":"boss","password":"pw","role":"admin","admin_key":"wrong"}`); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if resp := login(r, "nurse", "pw"); resp.Code != http.StatusOK {
		t.Fatalf("expected registered user to log in, got %d", resp.Code)
	}
}
