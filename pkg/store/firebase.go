package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/db"
	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const DefaultPollInterval = time.Second

type FirebaseDatabaseOptions struct {
	ProjectID       string
	DatabaseURL     string
	CredentialsFile string
}

// NewFirebaseDatabaseClient creates a Realtime Database client
// authenticated with a service account credentials file.
func NewFirebaseDatabaseClient(ctx context.Context, opts FirebaseDatabaseOptions) (*db.Client, error) {
	cfg := &firebase.Config{
		ProjectID:   opts.ProjectID,
		DatabaseURL: opts.DatabaseURL,
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, cfg, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing app: %v", err)
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Database client: %v", err)
	}
	return client, nil
}

var _ Store = &FirebaseStore{}
var _ Disconnector = &FirebaseStore{}

// FirebaseStore is one connection to a Firebase Realtime Database over
// its REST API. Watches poll with ETags and fire only when the value
// changes. Removals registered with OnDisconnectRemove run on Disconnect.
type FirebaseStore struct {
	client       *db.Client
	pollInterval time.Duration

	lock     sync.Mutex
	cleanups []string
}

type NewFirebaseStoreOptions struct {
	Client       *db.Client
	PollInterval time.Duration
}

func NewFirebaseStore(opts NewFirebaseStoreOptions) *FirebaseStore {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &FirebaseStore{
		client:       opts.Client,
		pollInterval: interval,
	}
}

func (s *FirebaseStore) Watch(ctx context.Context, path string, fn WatchFunc) error {
	ref := s.client.NewRef(path)
	var raw json.RawMessage
	etag, err := ref.GetWithETag(ctx, &raw)
	if err != nil {
		return fmt.Errorf("failed to attach watch to %s: %v", path, err)
	}
	fn(NewSnapshot(path, raw))

	go s.poll(ctx, ref, path, etag, fn)
	return nil
}

func (s *FirebaseStore) poll(ctx context.Context, ref *db.Ref, path string, etag string, fn WatchFunc) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var raw json.RawMessage
			changed, newETag, err := ref.GetIfChanged(ctx, etag, &raw)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("Failed to poll %s: %v", path, err)
				continue
			}
			if !changed {
				continue
			}
			etag = newETag
			fn(NewSnapshot(path, raw))
		}
	}
}

func (s *FirebaseStore) ReadOnce(ctx context.Context, path string) (Snapshot, error) {
	var raw json.RawMessage
	if err := s.client.NewRef(path).Get(ctx, &raw); err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %v", path, err)
	}
	return NewSnapshot(path, raw), nil
}

func (s *FirebaseStore) Set(ctx context.Context, path string, value interface{}) error {
	ref := s.client.NewRef(path)
	if value == nil {
		return ref.Delete(ctx)
	}
	return ref.Set(ctx, value)
}

func (s *FirebaseStore) Update(ctx context.Context, path string, values map[string]interface{}) error {
	return s.client.NewRef(path).Update(ctx, values)
}

func (s *FirebaseStore) NewID(path string) string {
	return uuid.Must(uuid.NewV7()).String()
}

func (s *FirebaseStore) OnDisconnectRemove(ctx context.Context, path string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cleanups = append(s.cleanups, CleanPath(path))
	return nil
}

// Disconnect deletes every path registered with OnDisconnectRemove
// in one multi-path update.
func (s *FirebaseStore) Disconnect(ctx context.Context) error {
	s.lock.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	s.lock.Unlock()

	if len(cleanups) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(cleanups))
	for _, path := range cleanups {
		values[strings.TrimPrefix(path, "/")] = nil
	}
	if err := s.client.NewRef("/").Update(ctx, values); err != nil {
		return fmt.Errorf("failed to run disconnect cleanup: %v", err)
	}
	return nil
}
