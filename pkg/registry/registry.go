// Package registry guards the listeners of a session so that every
// one-time setup runs once and every match is watched once.
//
// A Registry is owned by the session's event loop and is not safe for
// concurrent use.
package registry

import (
	"fmt"

	"github.com/cbodonnell/gameportal/pkg/models"
)

const (
	SetupListenToMyMatchesList = "listenToMyMatchesList"
	SetupListenToSignals       = "listenToSignals"
	SetupFetchGamesList        = "fetchGamesList"
	SetupWriteUser             = "writeUser"
)

// MatchHandle identifies one match subscription.
type MatchHandle struct {
	MatchID string
	// Ordinal is the position of the subscription in the session.
	Ordinal int
}

type Registry struct {
	registered map[string]bool
	subscribed map[string]MatchHandle
}

func New() *Registry {
	return &Registry{
		registered: make(map[string]bool),
		subscribed: make(map[string]MatchHandle),
	}
}

// RegisterOnce marks the setup routine name as run.
func (r *Registry) RegisterOnce(name string) error {
	if r.registered[name] {
		return models.NewProgrammingError("RegisterOnce", fmt.Errorf("%w: %s", models.ErrDuplicateSetup, name))
	}
	r.registered[name] = true
	return nil
}

func (r *Registry) IsRegistered(name string) bool {
	return r.registered[name]
}

// SubscribeMatch adds matchID to the subscribed set.
func (r *Registry) SubscribeMatch(matchID string) (MatchHandle, error) {
	if _, ok := r.subscribed[matchID]; ok {
		return MatchHandle{}, models.NewProgrammingError("SubscribeMatch", fmt.Errorf("%w: %s", models.ErrDuplicateSubscribe, matchID))
	}
	h := MatchHandle{MatchID: matchID, Ordinal: len(r.subscribed)}
	r.subscribed[matchID] = h
	return h, nil
}

func (r *Registry) IsSubscribed(matchID string) bool {
	_, ok := r.subscribed[matchID]
	return ok
}

func (r *Registry) SubscribedCount() int {
	return len(r.subscribed)
}
