package auth

import "context"

// OtpProvider defines the interface for OTP operations
type OtpProvider interface {
	RequestOTP(ctx context.Context, id string) error
	VerifyOTP(ctx context.Context, id, code string) error
}
