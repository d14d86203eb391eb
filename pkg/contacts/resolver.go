// Package contacts maps address-book phone numbers to portal users and
// fetches their display names.
package contacts

import (
	"context"
	"fmt"
	"sync"

	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const maxConcurrentLookups = 16

type phoneNumberDocument struct {
	UserID    string          `json:"userId"`
	Timestamp store.Timestamp `json:"timestamp"`
}

type publicFieldsDocument struct {
	DisplayName string `json:"displayName"`
}

// Resolver is safe for concurrent use. Lookups run on their own
// goroutines and OnUserInfo is called from the goroutine of the call
// that produced the change.
type Resolver struct {
	store  store.Store
	logger *log.Logger

	onUserInfo func(map[string]models.UserInfo)

	lock          sync.Mutex
	userIDToInfo  map[string]models.UserInfo
	phoneToUserID map[string]string

	names singleflight.Group
}

type NewResolverOptions struct {
	Store  store.Store
	Logger *log.Logger
	// OnUserInfo receives a copy of everything known after each change.
	OnUserInfo func(map[string]models.UserInfo)
}

func NewResolver(opts NewResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		store:         opts.Store,
		logger:        logger,
		onUserInfo:    opts.OnUserInfo,
		userIDToInfo:  make(map[string]models.UserInfo),
		phoneToUserID: make(map[string]string),
	}
}

// UpdateUserIDsAndPhoneNumbers looks up every phone number not already
// resolved and merges the registered ones into the known users. Numbers
// with no portal user are left out. Nothing is read unless every number
// is valid.
func (r *Resolver) UpdateUserIDsAndPhoneNumbers(ctx context.Context, phoneNumbers []string) error {
	pending := make([]string, 0, len(phoneNumbers))
	queued := make(map[string]bool, len(phoneNumbers))
	for _, raw := range phoneNumbers {
		phone, err := models.NormalizePhoneNumber(raw)
		if err != nil {
			return err
		}
		if queued[phone] || r.isKnown(phone) {
			continue
		}
		queued[phone] = true
		pending = append(pending, phone)
	}

	var resultsLock sync.Mutex
	found := make(map[string]string, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for _, phone := range pending {
		phone := phone
		g.Go(func() error {
			path := models.PhoneNumberPath(phone)
			snap, err := r.store.ReadOnce(gctx, path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			var doc phoneNumberDocument
			if err := snap.Unmarshal(&doc); err != nil {
				return fmt.Errorf("failed to decode %s: %w", path, err)
			}
			if doc.UserID == "" {
				return nil
			}
			resultsLock.Lock()
			found[phone] = doc.UserID
			resultsLock.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.lock.Lock()
	for phone, userID := range found {
		r.phoneToUserID[phone] = userID
		info := r.userIDToInfo[userID]
		info.UserID = userID
		info.PhoneNumber = phone
		r.userIDToInfo[userID] = info
	}
	snapshot := r.copyLocked()
	r.lock.Unlock()

	r.logger.Debug("Resolved %d of %d phone numbers", len(found), len(pending))
	r.publish(snapshot)
	return nil
}

// DisplayName returns the public display name of userID. Concurrent calls
// for the same user share one read.
func (r *Resolver) DisplayName(ctx context.Context, userID string) (string, error) {
	if name, ok := r.cachedName(userID); ok {
		return name, nil
	}
	v, err, _ := r.names.Do(userID, func() (interface{}, error) {
		if name, ok := r.cachedName(userID); ok {
			return name, nil
		}
		path := models.PublicFieldsPath(userID)
		snap, err := r.store.ReadOnce(ctx, path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		if !snap.Exists() {
			return "", &store.MissingDataError{Path: path}
		}
		var doc publicFieldsDocument
		if err := snap.Unmarshal(&doc); err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", path, err)
		}

		r.lock.Lock()
		info := r.userIDToInfo[userID]
		info.UserID = userID
		info.DisplayName = doc.DisplayName
		r.userIDToInfo[userID] = info
		snapshot := r.copyLocked()
		r.lock.Unlock()

		r.publish(snapshot)
		return doc.DisplayName, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// UserInfo returns what is known about userID.
func (r *Resolver) UserInfo(userID string) (models.UserInfo, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	info, ok := r.userIDToInfo[userID]
	return info, ok
}

func (r *Resolver) UserIDToInfo() map[string]models.UserInfo {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.copyLocked()
}

func (r *Resolver) isKnown(phone string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	_, ok := r.phoneToUserID[phone]
	return ok
}

func (r *Resolver) cachedName(userID string) (string, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	info, ok := r.userIDToInfo[userID]
	if !ok || info.DisplayName == "" {
		return "", false
	}
	return info.DisplayName, true
}

func (r *Resolver) copyLocked() map[string]models.UserInfo {
	m := make(map[string]models.UserInfo, len(r.userIDToInfo))
	for k, v := range r.userIDToInfo {
		m[k] = v
	}
	return m
}

func (r *Resolver) publish(snapshot map[string]models.UserInfo) {
	if r.onUserInfo != nil {
		r.onUserInfo(snapshot)
	}
}
