// Package catalog holds the games a portal can host, loaded from the
// remote store or from a catalog database.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cbodonnell/gameportal/pkg/models"
)

// Source loads every game spec of a catalog.
type Source interface {
	LoadGameSpecs(ctx context.Context) ([]*models.GameSpec, error)
}

// Catalog is safe for concurrent use.
type Catalog struct {
	lock  sync.RWMutex
	games map[string]*models.GameSpec
}

func New() *Catalog {
	return &Catalog{
		games: make(map[string]*models.GameSpec),
	}
}

// Load validates every spec from src and adds them to the catalog. If any
// spec is invalid the catalog is left unchanged.
func (c *Catalog) Load(ctx context.Context, src Source) error {
	specs, err := src.LoadGameSpecs(ctx)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("game spec %s: %w", spec.GameSpecID, err)
		}
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	for _, spec := range specs {
		c.games[spec.GameSpecID] = spec
	}
	return nil
}

// Put validates and adds one spec.
func (c *Catalog) Put(spec *models.GameSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("game spec %s: %w", spec.GameSpecID, err)
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.games[spec.GameSpecID] = spec
	return nil
}

func (c *Catalog) GameSpec(gameSpecID string) (*models.GameSpec, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	spec, ok := c.games[gameSpecID]
	return spec, ok
}

// List returns the games ordered by name, then id.
func (c *Catalog) List() []*models.GameSpec {
	c.lock.RLock()
	list := make([]*models.GameSpec, 0, len(c.games))
	for _, spec := range c.games {
		list = append(list, spec)
	}
	c.lock.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].GameName != list[j].GameName {
			return list[i].GameName < list[j].GameName
		}
		return list[i].GameSpecID < list[j].GameSpecID
	})
	return list
}

func (c *Catalog) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.games)
}
