package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/virangk414141/vimesta2/internal/auth"
	"github.com/virangk414141/vimesta2/internal/directory"
	"github.com/virangk414141/vimesta2/internal/middleware"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService  *auth.Service
	validate     *validator.Validate
	phoneLimiter *middleware.RateLimiter
	botLink      string
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service, botLink string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validator.New(),
		// 3 code requests per 10 minutes per phone
		phoneLimiter: middleware.NewRateLimiter(10*time.Minute, 3),
		botLink:      botLink,
	}
}

// requestOTPRequest is the request body for POST /api/auth/request-otp
type requestOTPRequest struct {
	Phone string `json:"phone" validate:"required"`
}

// verifyOTPRequest is the request body for POST /api/auth/verify-otp
type verifyOTPRequest struct {
	Phone string `json:"phone" validate:"required"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID          string `json:"id"`
	Phone       string `json:"phone_number"`
	FirstName   string `json:"first_name,omitempty"`
	StorageUsed int64  `json:"storage_used"`
}

// verifyOTPResponse is the JSON response for verify-otp
type verifyOTPResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	User      userResponse `json:"user"`
}

// HandleRequestOTP handles POST /api/auth/request-otp
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "phone is required")
		return
	}

	if !h.phoneLimiter.Allow("phone:" + directory.NormalizePhone(req.Phone)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	err := h.authService.RequestCode(r.Context(), req.Phone)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, map[string]string{"message": "otp_sent"})
	case errors.Is(err, auth.ErrIdentityNotLinked):
		respondWithJSON(w, http.StatusBadRequest, map[string]string{
			"error":    "phone_not_linked",
			"message":  "Open the Telegram bot and share your phone number first.",
			"bot_link": h.botLink,
		})
	default:
		log.Printf("request code failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to send verification code")
	}
}

// HandleVerifyOTP handles POST /api/auth/verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	req.OTP = strings.TrimSpace(req.OTP)
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "phone and a 6-digit otp are required")
		return
	}

	user, token, err := h.authService.VerifyCode(r.Context(), req.Phone, req.OTP, clientIP(r), r.UserAgent())
	if err != nil {
		var invalid *auth.InvalidCodeError
		switch {
		case errors.As(err, &invalid):
			respondWithError(w, http.StatusBadRequest, invalid.Error())
		case errors.Is(err, auth.ErrChallengeNotFound),
			errors.Is(err, auth.ErrChallengeExpired),
			errors.Is(err, auth.ErrTooManyAttempts),
			errors.Is(err, auth.ErrIdentityNotLinked):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("verify code failed: %v", err)
			respondWithError(w, http.StatusInternalServerError, "verification failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, verifyOTPResponse{
		Token:     token,
		TokenType: "bearer",
		User: userResponse{
			ID:          user.ID.String(),
			Phone:       user.PhoneNumber,
			FirstName:   user.FirstName,
			StorageUsed: user.StorageUsed,
		},
	})
}

// HandleVerifyAuth handles GET /api/auth/verify (requires auth middleware)
func (h *AuthHandler) HandleVerifyAuth(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, userResponse{
		ID:          user.ID.String(),
		Phone:       user.PhoneNumber,
		FirstName:   user.FirstName,
		StorageUsed: user.StorageUsed,
	})
}

// profileResponse is the full account view for GET /api/user/profile
type profileResponse struct {
	userResponse
	TelegramID int64  `json:"telegram_id"`
	CreatedAt  string `json:"created_at"`
	LastLogin  string `json:"last_login"`
}

// HandleProfile handles GET /api/user/profile (requires auth middleware)
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, profileResponse{
		userResponse: userResponse{
			ID:          user.ID.String(),
			Phone:       user.PhoneNumber,
			FirstName:   user.FirstName,
			StorageUsed: user.StorageUsed,
		},
		TelegramID: user.TelegramID,
		CreatedAt:  user.CreatedAt.Format(time.RFC3339),
		LastLogin:  user.LastLogin.Format(time.RFC3339),
	})
}

// HandleLogout handles POST /api/auth/logout (requires auth middleware)
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.authService.Logout(r.Context(), token); err != nil {
		log.Printf("logout failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "logged_out"})
}

// clientIP extracts the caller address, honoring proxies.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}
