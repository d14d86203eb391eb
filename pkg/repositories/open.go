package repositories

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Open connects to the catalog database named by url. sqlite://{path}
// opens a SQLite file; postgres:// and postgresql:// URLs connect to
// Postgres. Migrations are read from migrationsDir/{sqlite,postgres}.
func Open(ctx context.Context, url string, migrationsDir string) (Repository, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		repo, err := NewSQLiteRepository(ctx, path, filepath.Join(migrationsDir, "sqlite"))
		if err != nil {
			return nil, err
		}
		return repo, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		repo, err := NewPostgresRepository(ctx, url, filepath.Join(migrationsDir, "postgres"))
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported catalog url %q", url)
	}
}
