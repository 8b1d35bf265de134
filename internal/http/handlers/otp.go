package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/talktalk/server/internal/auth"
	"github.com/talktalk/server/internal/middleware"
	"github.com/talktalk/server/internal/model"
	"github.com/talktalk/server/internal/relay"
	"github.com/talktalk/server/internal/store"
)

func isRateLimitErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "rate limit")
}

// OtpHandler handles OTP request and verification endpoints
type OtpHandler struct {
	otpProvider     auth.OtpProvider
	jwtService      *auth.JWTService
	identities      *store.IdentityStore
	presence        *relay.Presence
	devMode         bool
	ipLimiter       *middleware.RateLimiter
	verifyIPLimiter *middleware.RateLimiter
}

// NewOtpHandler creates a new OTP handler
func NewOtpHandler(
	otpProvider auth.OtpProvider,
	jwtService *auth.JWTService,
	identities *store.IdentityStore,
	presence *relay.Presence,
	devMode bool,
) *OtpHandler {
	// IP rate limiters: 10 per 10min for request-otp, 20 per 10min for
	// verify-otp (the per-id limit lives in the provider)
	return &OtpHandler{
		otpProvider:     otpProvider,
		jwtService:      jwtService,
		identities:      identities,
		presence:        presence,
		devMode:         devMode,
		ipLimiter:       middleware.NewRateLimiter(10*60*time.Second, 10),
		verifyIPLimiter: middleware.NewRateLimiter(10*60*time.Second, 20),
	}
}

// requestOTPRequest is the request body for POST /request-otp
type requestOTPRequest struct {
	ID string `json:"id"`
}

// requestOTPResponse is the JSON response for request-otp
type requestOTPResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	DevOTP  string `json:"dev_otp,omitempty"`
}

// verifyOTPRequest is the request body for POST /verify-otp
type verifyOTPRequest struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// verifyOTPResponse is the JSON response for verify-otp
type verifyOTPResponse struct {
	OK          bool           `json:"ok"`
	Identity    model.Identity `json:"identity"`
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
}

// HandleRequestOTP handles POST /request-otp
func (h *OtpHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		respondWithError(w, http.StatusBadRequest, "id is required")
		return
	}

	if !h.ipLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if err := h.otpProvider.RequestOTP(r.Context(), req.ID); err != nil {
		logMaskedID(req.ID, "Failed to request OTP", err)
		if isRateLimitErr(err) {
			respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to request OTP")
		return
	}

	response := requestOTPResponse{OK: true, Message: "otp_sent"}
	if h.devMode {
		response.DevOTP = auth.DevOTP
	}
	respondWithJSON(w, http.StatusOK, response)
}

// HandleVerifyOTP handles POST /verify-otp. On success the identity is
// created or re-verified in place and the roster is broadcast to every live
// connection.
func (h *OtpHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	req.Code = strings.TrimSpace(req.Code)
	if req.ID == "" || req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "id and code are required")
		return
	}

	if !h.verifyIPLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if err := h.otpProvider.VerifyOTP(r.Context(), req.ID, req.Code); err != nil {
		logMaskedID(req.ID, "OTP verification failed", err)
		respondWithError(w, http.StatusUnauthorized, "invalid or expired OTP")
		return
	}

	identity := h.identities.Verify(req.ID, req.Name, req.Avatar)
	h.presence.BroadcastRoster()

	token, err := h.jwtService.SignAccessToken(identity.ID)
	if err != nil {
		logMaskedID(req.ID, "Failed to sign access token", err)
		respondWithError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	respondWithJSON(w, http.StatusOK, verifyOTPResponse{
		OK:          true,
		Identity:    identity,
		AccessToken: token,
		TokenType:   "bearer",
	})
}
