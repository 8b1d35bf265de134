package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	otpExpiry            = 5 * time.Minute
	maxAttempts          = 5
	minAttemptDelay      = 2 * time.Second
	requestWindow        = 10 * time.Minute
	maxRequestsPerWindow = 3

	// DevOTP is the fixed code accepted in dev mode.
	DevOTP = "123456"
)

// otpSession is one pending verification, single-use.
type otpSession struct {
	hash          []byte
	expiresAt     time.Time
	attemptCount  int
	lastAttemptAt time.Time
}

// OtpStub implements OtpProvider with an in-memory keyed store. Only salted
// hashes of codes are kept; plaintext codes are never stored or logged.
type OtpStub struct {
	salt    string
	devMode bool

	mu       sync.Mutex
	sessions map[string]*otpSession
	requests map[string][]time.Time
}

// NewOtpStub creates a new OTP provider
func NewOtpStub(salt string, devMode bool) *OtpStub {
	return &OtpStub{
		salt:     salt,
		devMode:  devMode,
		sessions: make(map[string]*otpSession),
		requests: make(map[string][]time.Time),
	}
}

// RequestOTP creates or replaces an OTP session for the identity.
// Rate limit: max 3 requests per 10 min per id. In dev mode the session
// accepts the fixed dev code; otherwise a 6-digit code is generated and only
// its hash is stored.
func (p *OtpStub) RequestOTP(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-requestWindow)
	recent := make([]time.Time, 0, len(p.requests[id]))
	for _, t := range p.requests[id] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= maxRequestsPerWindow {
		p.requests[id] = recent
		return fmt.Errorf("rate limit exceeded: max %d OTP requests per %v per id", maxRequestsPerWindow, requestWindow)
	}
	p.requests[id] = append(recent, now)

	code := generateOTPCode()
	if p.devMode {
		code = DevOTP
	}
	p.sessions[id] = &otpSession{
		hash:      hashOTP(id, code, p.salt),
		expiresAt: now.Add(otpExpiry),
	}
	// Never log or return the plaintext OTP
	_ = code
	return nil
}

// VerifyOTP verifies the code against the active session: attempt limit 5,
// min 2s between attempts, hash comparison, then the session is consumed.
func (p *OtpStub) VerifyOTP(_ context.Context, id, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[id]
	now := time.Now()
	if !ok || now.After(session.expiresAt) {
		return fmt.Errorf("invalid or expired OTP")
	}

	if !session.lastAttemptAt.IsZero() && now.Sub(session.lastAttemptAt) < minAttemptDelay {
		return fmt.Errorf("too many attempts, try again later")
	}
	session.lastAttemptAt = now
	session.attemptCount++
	if session.attemptCount >= maxAttempts {
		delete(p.sessions, id)
		return fmt.Errorf("invalid or expired OTP")
	}

	if !constantTimeCompare(hashOTP(id, code, p.salt), session.hash) {
		return fmt.Errorf("invalid or expired OTP")
	}

	// Single use
	delete(p.sessions, id)
	return nil
}

func generateOTPCode() string {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	code := rng.Intn(900000) + 100000
	return fmt.Sprintf("%06d", code)
}

// hashOTP returns SHA-256(id:code:salt)
func hashOTP(id, code, salt string) []byte {
	data := fmt.Sprintf("%s:%s:%s", id, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hash[:]
}

func constantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var result int
	for i := 0; i < len(a); i++ {
		result |= int(a[i]) ^ int(b[i])
	}
	return result == 0
}
