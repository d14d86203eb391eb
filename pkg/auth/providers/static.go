package providers

import (
	"context"
	"fmt"
	"strings"
)

var _ AuthProvider = &StaticAuthProvider{}

// StaticAuthProvider trusts tokens of the form "uid" or "uid:+phone".
// It is meant for local development against the in-memory store.
type StaticAuthProvider struct{}

func NewStaticAuthProvider() *StaticAuthProvider {
	return &StaticAuthProvider{}
}

func (p *StaticAuthProvider) VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error) {
	uid, phoneNumber, _ := strings.Cut(strings.TrimSpace(idToken), ":")
	if uid == "" {
		return nil, fmt.Errorf("error verifying token: empty uid")
	}
	return &TokenClaims{
		UID:         uid,
		PhoneNumber: phoneNumber,
	}, nil
}
