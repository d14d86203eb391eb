// Package signals relays short-lived peer handshake messages through each
// user's mailbox in the store.
//
// Mailbox entries are read at most once: every delivery is deleted from
// the store as soon as it is seen, and the relay keeps a time-limited
// backlog of what it received.
package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/registry"
	"github.com/cbodonnell/gameportal/pkg/store"
)

// DefaultStaleness is how long a received signal stays in the backlog.
const DefaultStaleness = 5 * time.Minute

type Identity interface {
	CurrentUserID() (string, error)
}

type signalDocument struct {
	AddedByUID string            `json:"addedByUid"`
	Timestamp  store.Timestamp   `json:"timestamp"`
	SignalType models.SignalType `json:"signalType"`
	SignalData string            `json:"signalData"`
}

// Relay is owned by the session's event loop and is not safe for
// concurrent use.
type Relay struct {
	store     store.Store
	identity  Identity
	registry  *registry.Registry
	clock     clock.Clock
	staleness time.Duration
	logger    *log.Logger

	onSignals func([]models.SignalEntry)
	onFatal   func(error)

	backlog map[string]models.SignalEntry
	// captured holds every entry id taken from the mailbox, including ones
	// dropped as invalid or pruned as stale.
	captured map[string]struct{}
}

type NewRelayOptions struct {
	Store    store.Store
	Identity Identity
	Registry *registry.Registry
	// Clock decides which signals are stale. Defaults to the wall clock.
	Clock clock.Clock
	// Staleness defaults to DefaultStaleness.
	Staleness time.Duration
	Logger    *log.Logger
	// OnSignals receives the backlog every time new signals arrive.
	OnSignals func([]models.SignalEntry)
	// OnFatal receives errors raised inside watch callbacks.
	OnFatal func(error)
}

func NewRelay(opts NewRelayOptions) *Relay {
	r := &Relay{
		store:     opts.Store,
		identity:  opts.Identity,
		registry:  opts.Registry,
		clock:     opts.Clock,
		staleness: opts.Staleness,
		logger:    opts.Logger,
		onSignals: opts.OnSignals,
		onFatal:   opts.OnFatal,
		backlog:   make(map[string]models.SignalEntry),
		captured:  make(map[string]struct{}),
	}
	if r.registry == nil {
		r.registry = registry.New()
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.staleness <= 0 {
		r.staleness = DefaultStaleness
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	return r
}

// SendSignal writes a signal into toUserID's mailbox. The entry is removed
// if this connection drops before the recipient reads it.
func (r *Relay) SendSignal(ctx context.Context, toUserID string, signalType models.SignalType, signalData string) error {
	if err := models.ValidateSignal(signalType, signalData); err != nil {
		return err
	}
	userID, err := r.identity.CurrentUserID()
	if err != nil {
		return err
	}

	mailbox := models.SignalsPath(toUserID)
	path := store.JoinPath(mailbox, r.store.NewID(mailbox))
	doc := signalDocument{
		AddedByUID: userID,
		Timestamp:  store.ServerTimestamp(),
		SignalType: signalType,
		SignalData: signalData,
	}
	if err := store.Write(ctx, r.store, path, doc); err != nil {
		return err
	}
	if err := r.store.OnDisconnectRemove(ctx, path); err != nil {
		return fmt.Errorf("failed to register removal of %s: %w", path, err)
	}
	return nil
}

// ListenToSignals watches the current user's mailbox until ctx is done.
func (r *Relay) ListenToSignals(ctx context.Context) error {
	userID, err := r.identity.CurrentUserID()
	if err != nil {
		return err
	}
	if err := r.registry.RegisterOnce(registry.SetupListenToSignals); err != nil {
		return err
	}
	mailbox := models.SignalsPath(userID)
	err = r.store.Watch(ctx, mailbox, func(snap store.Snapshot) {
		r.onMailbox(ctx, snap)
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", mailbox, err)
	}
	return nil
}

func (r *Relay) onMailbox(ctx context.Context, snap store.Snapshot) {
	if !snap.Exists() {
		return
	}
	raw := map[string]json.RawMessage{}
	if err := snap.Unmarshal(&raw); err != nil {
		r.fail(models.NewProgrammingError("onMailbox", fmt.Errorf("%s: %w", snap.Path(), err)))
		return
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		if _, ok := r.captured[id]; !ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	sort.Strings(ids)

	// the captured entries are deleted before anything else looks at them
	deletes := make(map[string]interface{}, len(ids))
	for _, id := range ids {
		r.captured[id] = struct{}{}
		deletes[id] = nil
	}
	if err := store.Merge(ctx, r.store, snap.Path(), deletes); err != nil {
		r.fail(err)
	}

	for _, id := range ids {
		doc := signalDocument{}
		if err := json.Unmarshal(raw[id], &doc); err != nil {
			r.logger.Warn("Dropping malformed signal %s: %v", id, err)
			continue
		}
		if err := models.ValidateSignal(doc.SignalType, doc.SignalData); err != nil {
			r.logger.Warn("Dropping signal %s from %s: %v", id, doc.AddedByUID, err)
			continue
		}
		r.backlog[id] = models.SignalEntry{
			SignalID:   id,
			AddedByUID: doc.AddedByUID,
			Timestamp:  doc.Timestamp,
			SignalType: doc.SignalType,
			SignalData: doc.SignalData,
		}
	}

	backlog := r.Backlog()
	r.logger.Trace("Received %d signals, backlog has %d", len(ids), len(backlog))
	if r.onSignals != nil {
		r.onSignals(backlog)
	}
}

// Backlog drops stale signals and returns the rest, oldest first.
func (r *Relay) Backlog() []models.SignalEntry {
	cutoff := r.clock.Now().Add(-r.staleness).UnixMilli()
	entries := make([]models.SignalEntry, 0, len(r.backlog))
	for id, entry := range r.backlog {
		if entry.Timestamp.Millis() < cutoff {
			delete(r.backlog, id)
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Timestamp.Millis() != b.Timestamp.Millis() {
			return a.Timestamp.Millis() < b.Timestamp.Millis()
		}
		return a.SignalID < b.SignalID
	})
	return entries
}

func (r *Relay) fail(err error) {
	r.logger.Error("Signal relay failed: %v", err)
	if r.onFatal != nil {
		r.onFatal(err)
	}
}
