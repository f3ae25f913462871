package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/sqlc-dev/pqtype"
)

// SQLStore keeps entries in the cache_entries table.
type SQLStore struct {
	db      *sqlx.DB
	queries *repository.Queries
}

// NewSQLStore creates a SQLStore.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, queries: repository.New(db)}
}

func (s *SQLStore) Get(ctx context.Context, key string, now time.Time) (*domain.CacheEntry, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	n, err := qtx.TouchCacheEntry(ctx, repository.TouchCacheEntryParams{QueryHash: key, Now: now})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	row, err := qtx.GetCacheEntry(ctx, repository.GetCacheEntryParams{QueryHash: key, Now: now})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return entryFromRow(row)
}

func (s *SQLStore) Set(ctx context.Context, entry domain.CacheEntry) error {
	var filters pqtype.NullRawMessage
	if len(entry.Filters) > 0 {
		raw, err := json.Marshal(entry.Filters)
		if err != nil {
			return err
		}
		filters = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	return s.queries.UpsertCacheEntry(ctx, repository.UpsertCacheEntryParams{
		QueryHash: entry.QueryHash,
		Query:     entry.Query,
		Filters:   filters,
		Results:   entry.Results,
		CreatedAt: entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
	})
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.queries.DeleteCacheEntry(ctx, key)
	return err
}

func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.queries.DeleteExpiredCacheEntries(ctx, now)
}

func (s *SQLStore) Stats(ctx context.Context, now time.Time) (domain.CacheStats, error) {
	row, err := s.queries.GetCacheStats(ctx, now)
	if err != nil {
		return domain.CacheStats{}, err
	}
	return domain.CacheStats{
		Entries:   row.Entries,
		Expired:   row.Expired,
		TotalHits: row.TotalHits,
	}, nil
}

func entryFromRow(row repository.CacheEntry) (*domain.CacheEntry, error) {
	entry := &domain.CacheEntry{
		QueryHash: row.QueryHash,
		Query:     row.Query,
		Results:   json.RawMessage(row.Results),
		CreatedAt: row.CreatedAt.UTC(),
		ExpiresAt: row.ExpiresAt.UTC(),
		HitCount:  row.HitCount,
	}
	if row.Filters.Valid && len(row.Filters.RawMessage) > 0 {
		if err := json.Unmarshal(row.Filters.RawMessage, &entry.Filters); err != nil {
			return nil, fmt.Errorf("decode cached filters: %w", err)
		}
	}
	return entry, nil
}
