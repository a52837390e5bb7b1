package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"safarapi-auth/internal/service"
	"safarapi-auth/internal/util"
)

// AuthProvider is the slice of the auth protocol the HTTP layer consumes.
type AuthProvider interface {
	RequestLoginOrRegister(ctx context.Context, phone string) (*service.RegistrationStatus, error)
	VerifyOtp(ctx context.Context, phone, code string) (*service.VerifyResult, error)
	LoginWithPassword(ctx context.Context, phone, password string) (string, error)
	Logout(ctx context.Context, tokenString string) error
	DeactivateAccount(ctx context.Context, phone, tokenString string) error
	RequestPasswordReset(ctx context.Context, phone string) (int, error)
	ResetPassword(ctx context.Context, phone, code, newPassword, confirmation string) error
}

// HealthChecker reports storage reachability for the health endpoint.
type HealthChecker interface {
	HealthCheck() error
}

// AuthHandler handles HTTP requests for the auth protocol.
type AuthHandler struct {
	auth   AuthProvider
	health HealthChecker
	logger *zap.Logger
}

func NewAuthHandler(auth AuthProvider, health HealthChecker, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		health: health,
		logger: logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

type registerRequest struct {
	Phone string `json:"phone"`
}

type verifyOtpRequest struct {
	Phone string `json:"phone"`
	Otp   string `json:"otp"`
}

type passwordLoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	Phone                string `json:"phone"`
	Otp                  string `json:"otp"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// RegisterRoutes registers all auth routes.
func (h *AuthHandler) RegisterRoutes(router chi.Router, verifier TokenVerifier) {
	router.Post("/register", h.Register)
	router.Post("/verify-otp", h.VerifyOtp)
	router.Post("/login_password", h.LoginWithPassword)
	router.Post("/forget-password", h.ForgetPassword)

	router.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(verifier))
		r.Post("/logout", h.Logout)
		r.Post("/account/deactivate", h.DeactivateAccount)
		r.Post("/reset-password", h.ResetPassword)
	})
}

// Register handles the login-or-register request
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	status, err := h.auth.RequestLoginOrRegister(ctx, req.Phone)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to start registration")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(status, "Registration request accepted"))
	h.logger.Info("Registration requested via HTTP",
		util.Bool("has_account", status.HasAccount),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Register"),
	)
}

// VerifyOtp handles OTP verification and token issuance
func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req verifyOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.auth.VerifyOtp(ctx, req.Phone, req.Otp)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to verify OTP")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Verification successful"))
	h.logger.Info("OTP verified via HTTP",
		util.String("account_id", result.Account.AccountID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "VerifyOtp"),
	)
}

// LoginWithPassword handles password-based login
func (h *AuthHandler) LoginWithPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req passwordLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	tokenString, err := h.auth.LoginWithPassword(ctx, req.Phone, req.Password)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to log in")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(
		map[string]string{"token": tokenString}, "Login successful"))
	h.logger.Info("Password login via HTTP",
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "LoginWithPassword"),
	)
}

// Logout invalidates the presented bearer token
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawToken := RawTokenFromContext(ctx)
	if err := h.auth.Logout(ctx, rawToken); err != nil {
		h.respondWithServiceError(w, err, "Failed to log out")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

// DeactivateAccount soft-deletes the caller's account and revokes the token
func (h *AuthHandler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	claims := ClaimsFromContext(ctx)
	if claims == nil {
		h.respondWithError(w, http.StatusUnauthorized, errors.New("missing token claims"), "Unauthorized")
		return
	}

	rawToken := RawTokenFromContext(ctx)
	if err := h.auth.DeactivateAccount(ctx, claims.Phone, rawToken); err != nil {
		h.respondWithServiceError(w, err, "Failed to deactivate account")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Account deactivated"))
	h.logger.Info("Account deactivated via HTTP",
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "DeactivateAccount"),
	)
}

// ForgetPassword handles the password-reset OTP request
func (h *AuthHandler) ForgetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	ttl, err := h.auth.RequestPasswordReset(ctx, req.Phone)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to request password reset")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(
		map[string]int{"otp_ttl": ttl}, "Password reset code sent"))
	h.logger.Info("Password reset requested via HTTP",
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "ForgetPassword"),
	)
}

// ResetPassword verifies the reset OTP and installs the new password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	err := h.auth.ResetPassword(ctx, req.Phone, req.Otp, req.Password, req.PasswordConfirmation)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to reset password")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Password updated"))
	h.logger.Info("Password reset via HTTP",
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "ResetPassword"),
	)
}

// HealthCheck reports service and storage health
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.HealthCheck(); err != nil {
			h.respondWithError(w, http.StatusServiceUnavailable, err, "Storage unreachable")
			return
		}
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(
		map[string]string{"status": "healthy"}, "Service is healthy"))
}

// respondWithServiceError maps protocol errors to HTTP status codes. Rate
// limit rejections carry the remaining seconds so clients can render a
// countdown.
func (h *AuthHandler) respondWithServiceError(w http.ResponseWriter, err error, message string) {
	var rateErr *service.RateLimitedError
	if errors.As(err, &rateErr) {
		resp := errorResponse(rateErr, message)
		resp.Data = map[string]int{"otp_ttl": rateErr.Remaining}
		h.logger.Warn("HTTP rate limited",
			util.Int("remaining", rateErr.Remaining),
		)
		h.respondWithJSON(w, http.StatusTooManyRequests, resp)
		return
	}

	h.respondWithError(w, h.getStatusCode(err), err, message)
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *AuthHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrOtpInvalidOrExpired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTokenIssuance):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// respondWithJSON sends a JSON response
func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}
