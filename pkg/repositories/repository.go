package repositories

import (
	"context"

	"github.com/cbodonnell/gameportal/pkg/models"
)

// Repository stores the game catalog in a relational database.
type Repository interface {
	Close(ctx context.Context) error
	// ListGameSpecs returns every game ordered by id.
	ListGameSpecs(ctx context.Context) ([]*models.GameSpec, error)
	// GetGameSpec returns *ErrNotFound if no game has the id.
	GetGameSpec(ctx context.Context, gameSpecID string) (*models.GameSpec, error)
	// SaveGameSpec inserts the game or replaces the stored one.
	SaveGameSpec(ctx context.Context, spec *models.GameSpec) error
}
