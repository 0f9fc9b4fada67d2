package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spacefeed/spacefeed/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// Store writes row records into per-collection tables. Each collection
// carries a unique index on url_id, so deduplication is a single conditional
// insert instead of a racy lookup-then-insert pair: the backend rejects the
// second write for a key and the store reports it as a duplicate outcome.
type Store struct {
	client *Client
	logger *slog.Logger

	mu       sync.Mutex
	prepared map[string]struct{}
}

// NewStore creates a record store on top of an open client.
func NewStore(client *Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:   client,
		logger:   logger,
		prepared: make(map[string]struct{}),
	}
}

// EnsureCollection defines the collection's table, fields, and the unique
// url_id index. The DDL is idempotent; results are cached so each collection
// is prepared at most once per process.
func (s *Store) EnsureCollection(ctx context.Context, collection string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}

	s.mu.Lock()
	_, ok := s.prepared[collection]
	s.mu.Unlock()
	if ok {
		return nil
	}

	// Table names cannot be parameterized in SurrealQL; validateCollection
	// keeps the interpolation safe.
	sql := fmt.Sprintf(`
		DEFINE TABLE IF NOT EXISTS %[1]s SCHEMAFULL;
		DEFINE FIELD IF NOT EXISTS url_id ON %[1]s TYPE string;
		DEFINE FIELD IF NOT EXISTS input_url ON %[1]s TYPE string;
		DEFINE FIELD IF NOT EXISTS status ON %[1]s TYPE string DEFAULT "pending";
		DEFINE INDEX IF NOT EXISTS url_id_unique ON %[1]s FIELDS url_id UNIQUE;
	`, collection)

	if _, err := s.client.Query(ctx, sql, nil); err != nil {
		return fmt.Errorf("prepare collection %s: %w", collection, err)
	}

	s.mu.Lock()
	s.prepared[collection] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("collection prepared", "collection", collection)
	return nil
}

// Insert stores one record, reporting whether it was inserted, skipped as a
// duplicate of an existing url_id, or rejected by the backend.
func (s *Store) Insert(ctx context.Context, collection string, rec models.RowRecord) (models.Outcome, error) {
	if err := validateCollection(collection); err != nil {
		return models.OutcomeError, err
	}

	sql := fmt.Sprintf("INSERT INTO %s { url_id: $url_id, input_url: $input_url, status: $status }", collection)
	_, err := s.client.Query(ctx, sql, map[string]any{
		"url_id":    rec.URLID,
		"input_url": rec.InputURL,
		"status":    rec.Status,
	})
	if err != nil {
		if errors.Is(wrapQueryError(err), ErrDuplicate) {
			return models.OutcomeDuplicate, nil
		}
		return models.OutcomeError, fmt.Errorf("insert into %s: %w", collection, err)
	}

	return models.OutcomeInserted, nil
}

// Find returns the record stored under url_id, or ErrNotFound.
func (s *Store) Find(ctx context.Context, collection, urlID string) (*models.RowRecord, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT url_id, input_url, status FROM %s WHERE url_id = $url_id LIMIT 1", collection)
	results, err := surrealdb.Query[[]models.RowRecord](ctx, s.client.db, sql, map[string]any{
		"url_id": urlID,
	})
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, ErrNotFound
	}
	return &(*results)[0].Result[0], nil
}

// Count returns the number of records in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if err := validateCollection(collection); err != nil {
		return 0, err
	}

	type countRow struct {
		Count int `json:"count"`
	}
	sql := fmt.Sprintf("SELECT count() AS count FROM %s GROUP ALL", collection)
	results, err := surrealdb.Query[[]countRow](ctx, s.client.db, sql, nil)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}

// validateCollection rejects names that are unsafe to interpolate into
// SurrealQL. Collection names are sanitized upstream when derived from file
// names; this guards direct callers.
func validateCollection(collection string) error {
	if collection == "" {
		return errors.New("empty collection name")
	}
	for _, r := range collection {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("invalid collection name %q", collection)
		}
	}
	return nil
}
