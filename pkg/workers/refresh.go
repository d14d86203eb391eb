package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cbodonnell/gameportal/pkg/catalog"
	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/store"
)

type CatalogRefreshWorker struct {
	catalog  *catalog.Catalog
	source   catalog.Source
	clock    clock.Clock
	interval time.Duration
	onChange func([]*models.GameSpec)

	last []byte
}

type NewCatalogRefreshWorkerOptions struct {
	Catalog  *catalog.Catalog
	Source   catalog.Source
	Clock    clock.Clock
	Interval time.Duration
	// OnChange receives the full list whenever a refresh changed it.
	OnChange func([]*models.GameSpec)
}

// NewCatalogRefreshWorker creates a worker that periodically reloads the
// catalog from its source, so games imported while the server runs
// become playable.
func NewCatalogRefreshWorker(opts NewCatalogRefreshWorkerOptions) *CatalogRefreshWorker {
	c := opts.Clock
	if c == nil {
		c = clock.New()
	}
	w := &CatalogRefreshWorker{
		catalog:  opts.Catalog,
		source:   opts.Source,
		clock:    c,
		interval: opts.Interval,
		onChange: opts.OnChange,
	}
	w.last = fingerprint(w.catalog.List())
	return w
}

func (w *CatalogRefreshWorker) Start(ctx context.Context) {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}

// Refresh reloads the catalog once and reports whether it changed.
func (w *CatalogRefreshWorker) Refresh(ctx context.Context) bool {
	if err := w.catalog.Load(ctx, w.source); err != nil {
		if store.IsMissingData(err) {
			log.Debug("Game catalog is still empty")
			return false
		}
		log.Error("Failed to refresh game catalog: %v", err)
		return false
	}
	games := w.catalog.List()
	current := fingerprint(games)
	if bytes.Equal(current, w.last) {
		return false
	}
	w.last = current
	log.Info("Game catalog changed, %d games", len(games))
	if w.onChange != nil {
		w.onChange(games)
	}
	return true
}

func fingerprint(games []*models.GameSpec) []byte {
	b, err := json.Marshal(games)
	if err != nil {
		return nil
	}
	return b
}
