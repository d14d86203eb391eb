package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/jackc/pgx/v5"
)

var _ Repository = &PostgresRepository{}

type PostgresRepository struct {
	conn *pgx.Conn
}

// NewPostgresRepository connects to connStr and applies the migrations
// in the migrations directory, if one is given.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string, migrations string) (*PostgresRepository, error) {
	conn, err := connectDb(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if migrations != "" {
		err := runMigrations(ctx, migrations, func(ctx context.Context, q string) error {
			_, err := conn.Exec(ctx, q)
			return err
		})
		if err != nil {
			conn.Close(ctx)
			return nil, err
		}
	}
	return &PostgresRepository{
		conn: conn,
	}, nil
}

func connectDb(ctx context.Context, connStr string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	err = conn.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database)
	if err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("unable to query database: %v", err)
	}

	log.Info("Connected to %s as %s", database, username)

	return conn, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) ListGameSpecs(ctx context.Context) ([]*models.GameSpec, error) {
	rows, err := r.conn.Query(ctx, "SELECT game_spec_id, game_name, pieces FROM game_specs ORDER BY game_spec_id")
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

func (r *PostgresRepository) GetGameSpec(ctx context.Context, gameSpecID string) (*models.GameSpec, error) {
	q := `
	SELECT game_name, pieces FROM game_specs WHERE game_spec_id = $1;
	`
	var name string
	var pieces []byte
	if err := r.conn.QueryRow(ctx, q, gameSpecID).Scan(&name, &pieces); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{GameSpecID: gameSpecID}
		}
		return nil, fmt.Errorf("failed to scan game spec: %v", err)
	}
	return decodeGameSpec(gameSpecID, name, pieces)
}

func (r *PostgresRepository) SaveGameSpec(ctx context.Context, spec *models.GameSpec) error {
	pieces, err := json.Marshal(spec.Pieces)
	if err != nil {
		return fmt.Errorf("failed to encode pieces of %s: %v", spec.GameSpecID, err)
	}
	q := `
	INSERT INTO game_specs (game_spec_id, game_name, pieces, updated_at) VALUES ($1, $2, $3, $4)
	ON CONFLICT (game_spec_id) DO UPDATE SET game_name = $2, pieces = $3, updated_at = $4;
	`
	_, err = r.conn.Exec(ctx, q, spec.GameSpecID, spec.GameName, string(pieces), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert game spec: %v", err)
	}

	return nil
}
