package providers

import "context"

// AuthProvider turns a client ID token into verified claims.
type AuthProvider interface {
	VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error)
}

type TokenClaims struct {
	UID         string `json:"uid"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}
