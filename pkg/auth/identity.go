package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cbodonnell/gameportal/pkg/auth/providers"
)

var ErrUnauthenticated = errors.New("not logged in")

// Identity holds the signed-in user of one session.
type Identity struct {
	lock   sync.RWMutex
	claims *providers.TokenClaims
}

func NewIdentity() *Identity {
	return &Identity{}
}

// Login verifies idToken with provider and signs its user in.
func (i *Identity) Login(ctx context.Context, provider providers.AuthProvider, idToken string) (*providers.TokenClaims, error) {
	claims, err := provider.VerifyToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.claims != nil && i.claims.UID != claims.UID {
		return nil, fmt.Errorf("already logged in as %s", i.claims.UID)
	}
	i.claims = claims
	return claims, nil
}

func (i *Identity) CurrentUserID() (string, error) {
	i.lock.RLock()
	defer i.lock.RUnlock()
	if i.claims == nil {
		return "", ErrUnauthenticated
	}
	return i.claims.UID, nil
}

// PhoneNumber returns the verified phone number of the user, if any.
func (i *Identity) PhoneNumber() (string, error) {
	i.lock.RLock()
	defer i.lock.RUnlock()
	if i.claims == nil {
		return "", ErrUnauthenticated
	}
	return i.claims.PhoneNumber, nil
}
