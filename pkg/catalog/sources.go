package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/repositories"
	"github.com/cbodonnell/gameportal/pkg/store"
)

var _ Source = &StoreSource{}
var _ Source = &RepositorySource{}
var _ Source = &FileSource{}
var _ Sink = &StoreSource{}
var _ Sink = &RepositorySource{}

// Sink stores game specs.
type Sink interface {
	SaveGameSpec(ctx context.Context, spec *models.GameSpec) error
}

// StoreSource reads the catalog from /gamePortal/gameSpecs.
type StoreSource struct {
	store store.Store
}

func NewStoreSource(s store.Store) *StoreSource {
	return &StoreSource{store: s}
}

type gameSpecDocument struct {
	GameSpecID string    `json:"gameSpecId"`
	GameName   string    `json:"gameName"`
	Pieces     pieceList `json:"pieces"`
}

// pieceList decodes pieces stored as an array or as an index-keyed object.
type pieceList []models.PieceSpec

func (l *pieceList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]models.PieceSpec)(l))
	}
	byKey := map[string]models.PieceSpec{}
	if err := json.Unmarshal(b, &byKey); err != nil {
		return err
	}
	list := make([]models.PieceSpec, len(byKey))
	for key, piece := range byKey {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= len(list) {
			return fmt.Errorf("%w: piece key %q", models.ErrMalformedPieceIndex, key)
		}
		list[index] = piece
	}
	*l = list
	return nil
}

// LoadGameSpecs returns a *store.MissingDataError if the catalog is empty.
func (s *StoreSource) LoadGameSpecs(ctx context.Context) ([]*models.GameSpec, error) {
	snap, err := s.store.ReadOnce(ctx, models.GameSpecsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read game specs: %w", err)
	}
	if !snap.Exists() {
		return nil, &store.MissingDataError{Path: models.GameSpecsPath}
	}
	docs := map[string]gameSpecDocument{}
	if err := snap.Unmarshal(&docs); err != nil {
		return nil, fmt.Errorf("failed to decode game specs: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	specs := make([]*models.GameSpec, 0, len(ids))
	for _, id := range ids {
		doc := docs[id]
		specs = append(specs, &models.GameSpec{
			GameSpecID: id,
			GameName:   doc.GameName,
			Pieces:     doc.Pieces,
		})
	}
	return specs, nil
}

// SaveGameSpec writes spec under its id.
func (s *StoreSource) SaveGameSpec(ctx context.Context, spec *models.GameSpec) error {
	return store.Write(ctx, s.store, models.GameSpecPath(spec.GameSpecID), spec)
}

// RepositorySource reads the catalog from a relational repository.
type RepositorySource struct {
	repo repositories.Repository
}

func NewRepositorySource(repo repositories.Repository) *RepositorySource {
	return &RepositorySource{repo: repo}
}

func (s *RepositorySource) LoadGameSpecs(ctx context.Context) ([]*models.GameSpec, error) {
	specs, err := s.repo.ListGameSpecs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list game specs: %w", err)
	}
	return specs, nil
}

func (s *RepositorySource) SaveGameSpec(ctx context.Context, spec *models.GameSpec) error {
	return s.repo.SaveGameSpec(ctx, spec)
}

// FileSource reads a JSON array of game specs from a file.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) LoadGameSpecs(ctx context.Context) ([]*models.GameSpec, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	var specs []*models.GameSpec
	if err := json.Unmarshal(b, &specs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return specs, nil
}

// Import validates every spec of src, then saves them all to dst.
func Import(ctx context.Context, src Source, dst Sink) (int, error) {
	specs, err := src.LoadGameSpecs(ctx)
	if err != nil {
		return 0, err
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return 0, fmt.Errorf("game %s: %w", spec.GameSpecID, err)
		}
	}
	for i, spec := range specs {
		if err := dst.SaveGameSpec(ctx, spec); err != nil {
			return i, fmt.Errorf("failed to save game %s: %w", spec.GameSpecID, err)
		}
	}
	return len(specs), nil
}
