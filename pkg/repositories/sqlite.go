package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cbodonnell/gameportal/pkg/models"
	_ "github.com/mattn/go-sqlite3"
)

var _ Repository = &SQLiteRepository{}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string, migrations string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	err = runMigrations(ctx, migrations, func(ctx context.Context, q string) error {
		_, err := db.ExecContext(ctx, q)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) ListGameSpecs(ctx context.Context) ([]*models.GameSpec, error) {
	q := `
	SELECT game_spec_id, game_name, pieces FROM game_specs ORDER BY game_spec_id;
	`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query game specs: %v", err)
	}
	defer rows.Close()

	var specs []*models.GameSpec
	for rows.Next() {
		var id, name string
		var pieces []byte
		if err := rows.Scan(&id, &name, &pieces); err != nil {
			return nil, fmt.Errorf("failed to scan game spec: %v", err)
		}
		spec, err := decodeGameSpec(id, name, pieces)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate game specs: %v", err)
	}
	return specs, nil
}

func (r *SQLiteRepository) GetGameSpec(ctx context.Context, gameSpecID string) (*models.GameSpec, error) {
	q := `
	SELECT game_name, pieces FROM game_specs WHERE game_spec_id = ?;
	`
	var name string
	var pieces []byte
	if err := r.db.QueryRowContext(ctx, q, gameSpecID).Scan(&name, &pieces); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{GameSpecID: gameSpecID}
		}
		return nil, fmt.Errorf("failed to scan game spec: %v", err)
	}
	return decodeGameSpec(gameSpecID, name, pieces)
}

func (r *SQLiteRepository) SaveGameSpec(ctx context.Context, spec *models.GameSpec) error {
	pieces, err := json.Marshal(spec.Pieces)
	if err != nil {
		return fmt.Errorf("failed to encode pieces of %s: %v", spec.GameSpecID, err)
	}
	q := `
	INSERT OR REPLACE INTO game_specs (game_spec_id, game_name, pieces, updated_at)
	VALUES (?, ?, ?, ?);
	`
	_, err = r.db.ExecContext(ctx, q, spec.GameSpecID, spec.GameName, string(pieces), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert game spec: %v", err)
	}

	return nil
}

func decodeGameSpec(id, name string, pieces []byte) (*models.GameSpec, error) {
	spec := &models.GameSpec{GameSpecID: id, GameName: name}
	if err := json.Unmarshal(pieces, &spec.Pieces); err != nil {
		return nil, fmt.Errorf("failed to decode pieces of %s: %v", id, err)
	}
	return spec, nil
}
