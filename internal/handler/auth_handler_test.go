package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"safarapi-auth/internal/config"
	"safarapi-auth/internal/model"
	"safarapi-auth/internal/service"
	"safarapi-auth/internal/token"
	"safarapi-auth/internal/util"
)

type stubAuthProvider struct {
	registerStatus *service.RegistrationStatus
	registerErr    error
	verifyResult   *service.VerifyResult
	verifyErr      error
	loginToken     string
	loginErr       error
	logoutErr      error
	deactivateErr  error
	resetTTL       int
	resetTTLErr    error
	resetErr       error

	loggedOutToken   string
	deactivatedPhone string
	deactivatedToken string
}

func (s *stubAuthProvider) RequestLoginOrRegister(ctx context.Context, phone string) (*service.RegistrationStatus, error) {
	return s.registerStatus, s.registerErr
}

func (s *stubAuthProvider) VerifyOtp(ctx context.Context, phone, code string) (*service.VerifyResult, error) {
	return s.verifyResult, s.verifyErr
}

func (s *stubAuthProvider) LoginWithPassword(ctx context.Context, phone, password string) (string, error) {
	return s.loginToken, s.loginErr
}

func (s *stubAuthProvider) Logout(ctx context.Context, tokenString string) error {
	s.loggedOutToken = tokenString
	return s.logoutErr
}

func (s *stubAuthProvider) DeactivateAccount(ctx context.Context, phone, tokenString string) error {
	s.deactivatedPhone = phone
	s.deactivatedToken = tokenString
	return s.deactivateErr
}

func (s *stubAuthProvider) RequestPasswordReset(ctx context.Context, phone string) (int, error) {
	return s.resetTTL, s.resetTTLErr
}

func (s *stubAuthProvider) ResetPassword(ctx context.Context, phone, code, newPassword, confirmation string) error {
	return s.resetErr
}

type stubVerifier struct {
	claims *token.Claims
	err    error
}

func (s *stubVerifier) Verify(ctx context.Context, tokenString string) (*token.Claims, error) {
	return s.claims, s.err
}

type stubHealth struct{ err error }

func (s *stubHealth) HealthCheck() error { return s.err }

func newTestRouter(auth *stubAuthProvider, verifier *stubVerifier) chi.Router {
	cfg := &config.Config{}
	h := NewAuthHandler(auth, &stubHealth{}, util.Get())
	return NewRouter(cfg, h, verifier, util.Get())
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestRegisterSuccess(t *testing.T) {
	auth := &stubAuthProvider{
		registerStatus: &service.RegistrationStatus{
			Phone:      "09123456789",
			HasAccount: false,
			OtpTTL:     120,
		},
	}
	router := newTestRouter(auth, &stubVerifier{})

	rec := postJSON(t, router, "/api/v1/register", map[string]string{"phone": "09123456789"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Errorf("expected success envelope, got %+v", resp)
	}
	data := resp.Data.(map[string]interface{})
	if data["otp_ttl"].(float64) != 120 {
		t.Errorf("expected otp_ttl 120, got %v", data["otp_ttl"])
	}
}

func TestRegisterRateLimited(t *testing.T) {
	auth := &stubAuthProvider{
		registerErr: &service.RateLimitedError{Remaining: 90},
	}
	router := newTestRouter(auth, &stubVerifier{})

	rec := postJSON(t, router, "/api/v1/register", map[string]string{"phone": "09123456789"}, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	resp := decodeResponse(t, rec)
	if resp.Success {
		t.Error("expected failure envelope")
	}
	data := resp.Data.(map[string]interface{})
	if data["otp_ttl"].(float64) != 90 {
		t.Errorf("expected otp_ttl 90 in payload, got %v", data["otp_ttl"])
	}
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", service.ErrInvalidInput, http.StatusBadRequest},
		{"invalid otp", service.ErrOtpInvalidOrExpired, http.StatusUnprocessableEntity},
		{"token failure", service.ErrTokenIssuance, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := &stubAuthProvider{verifyErr: tc.err}
			router := newTestRouter(auth, &stubVerifier{})

			rec := postJSON(t, router, "/api/v1/verify-otp",
				map[string]string{"phone": "09123456789", "otp": "1234"}, nil)
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestVerifyOtpSuccess(t *testing.T) {
	auth := &stubAuthProvider{
		verifyResult: &service.VerifyResult{
			Token: "issued-token",
			Account: &model.Account{
				AccountID:  "acc-1",
				Phone:      "09123456789",
				HasAccount: true,
			},
		},
	}
	router := newTestRouter(auth, &stubVerifier{})

	rec := postJSON(t, router, "/api/v1/verify-otp",
		map[string]string{"phone": "09123456789", "otp": "1234"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	if data["token"] != "issued-token" {
		t.Errorf("expected token in payload, got %v", data["token"])
	}
	user := data["user"].(map[string]interface{})
	if user["has_account"] != true {
		t.Errorf("expected has_account in user payload, got %v", user)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	auth := &stubAuthProvider{loginErr: service.ErrInvalidCredentials}
	router := newTestRouter(auth, &stubVerifier{})

	rec := postJSON(t, router, "/api/v1/login_password",
		map[string]string{"phone": "09123456789", "password": "wrong"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestForgetPasswordAccountNotFound(t *testing.T) {
	auth := &stubAuthProvider{resetTTLErr: service.ErrAccountNotFound}
	router := newTestRouter(auth, &stubVerifier{})

	rec := postJSON(t, router, "/api/v1/forget-password",
		map[string]string{"phone": "09123456789"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestLogoutRequiresToken(t *testing.T) {
	auth := &stubAuthProvider{}
	router := newTestRouter(auth, &stubVerifier{claims: &token.Claims{}})

	rec := postJSON(t, router, "/api/v1/logout", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without bearer token, got %d", rec.Code)
	}

	rec = postJSON(t, router, "/api/v1/logout", nil,
		map[string]string{"Authorization": "Bearer abc123"})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with bearer token, got %d", rec.Code)
	}
	if auth.loggedOutToken != "abc123" {
		t.Errorf("expected raw token forwarded, got %q", auth.loggedOutToken)
	}
}

func TestLogoutRejectsInvalidToken(t *testing.T) {
	auth := &stubAuthProvider{}
	router := newTestRouter(auth, &stubVerifier{err: token.ErrInvalidToken})

	rec := postJSON(t, router, "/api/v1/logout", nil,
		map[string]string{"Authorization": "Bearer bad"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid token, got %d", rec.Code)
	}
}

func TestDeactivateUsesClaimsPhone(t *testing.T) {
	auth := &stubAuthProvider{}
	router := newTestRouter(auth, &stubVerifier{claims: &token.Claims{Phone: "09123456789"}})

	rec := postJSON(t, router, "/api/v1/account/deactivate", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without bearer token, got %d", rec.Code)
	}

	rec = postJSON(t, router, "/api/v1/account/deactivate", nil,
		map[string]string{"Authorization": "Bearer abc123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d", rec.Code)
	}
	if auth.deactivatedPhone != "09123456789" {
		t.Errorf("expected phone taken from claims, got %q", auth.deactivatedPhone)
	}
	if auth.deactivatedToken != "abc123" {
		t.Errorf("expected raw token forwarded, got %q", auth.deactivatedToken)
	}
}

func TestDeactivateAccountNotFound(t *testing.T) {
	auth := &stubAuthProvider{deactivateErr: service.ErrAccountNotFound}
	router := newTestRouter(auth, &stubVerifier{claims: &token.Claims{Phone: "09123456789"}})

	rec := postJSON(t, router, "/api/v1/account/deactivate", nil,
		map[string]string{"Authorization": "Bearer abc123"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestResetPasswordRequiresAuth(t *testing.T) {
	auth := &stubAuthProvider{}
	router := newTestRouter(auth, &stubVerifier{claims: &token.Claims{}})

	body := map[string]string{
		"phone":                 "09123456789",
		"otp":                   "1234",
		"password":              "new-password-1",
		"password_confirmation": "new-password-1",
	}

	rec := postJSON(t, router, "/api/v1/reset-password", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without bearer token, got %d", rec.Code)
	}

	rec = postJSON(t, router, "/api/v1/reset-password", body,
		map[string]string{"Authorization": "Bearer abc123"})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with bearer token, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&stubAuthProvider{}, &stubVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
