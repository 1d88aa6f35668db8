// Package aggregator persists analytics snapshots to PostgreSQL and restores
// the live aggregator from the newest one at startup.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/postgres"
)

// Schema creates the snapshot table. It is safe to run on every start.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		data        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at_idx
		ON analytics_snapshots (captured_at DESC)`,
}

// Store persists aggregated analytics snapshots.
type Store struct {
	db     *postgres.Client
	retain int
	logger *slog.Logger
}

// NewStore creates a store keeping at most retain snapshots; 0 keeps all.
func NewStore(db *postgres.Client, retain int) *Store {
	return &Store{
		db:     db,
		retain: retain,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// Migrate creates the snapshot table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.Migrate(ctx, Schema...); err != nil {
		return fmt.Errorf("migrating analytics schema: %w", err)
	}
	return nil
}

// SaveSnapshot inserts stats and prunes snapshots beyond the retention
// count in the same transaction.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.Stats) error {
	data, err := encodeStats(stats)
	if err != nil {
		return err
	}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
			data, time.Now().UTC(),
		); err != nil {
			return err
		}
		if s.retain <= 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM analytics_snapshots WHERE id NOT IN (
				SELECT id FROM analytics_snapshots ORDER BY captured_at DESC LIMIT $1
			)`,
			s.retain,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Info("analytics snapshot saved",
		"total_searches", stats.TotalSearches,
		"documents_loaded", stats.DocumentsLoaded,
	)
	return nil
}

// LatestSnapshot loads the most recent snapshot. It returns nil, nil if no
// snapshot exists yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.Snapshot, error) {
	var (
		data       []byte
		capturedAt time.Time
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data, captured_at FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data, &capturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	stats, err := decodeStats(data)
	if err != nil {
		return nil, err
	}
	return &analytics.Snapshot{Stats: stats, CapturedAt: capturedAt}, nil
}

// ListSnapshots returns the last limit snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Snapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data, captured_at FROM analytics_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.Snapshot
	for rows.Next() {
		var (
			data       []byte
			capturedAt time.Time
		)
		if err := rows.Scan(&data, &capturedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		stats, err := decodeStats(data)
		if err != nil {
			s.logger.Warn("skipping corrupt snapshot", "captured_at", capturedAt, "error", err)
			continue
		}
		snapshots = append(snapshots, analytics.Snapshot{Stats: stats, CapturedAt: capturedAt})
	}
	return snapshots, rows.Err()
}

// Restore seeds agg from the newest snapshot, if there is one.
func (s *Store) Restore(ctx context.Context, agg *analytics.Aggregator) error {
	snap, err := s.LatestSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		s.logger.Info("no analytics snapshot to restore")
		return nil
	}
	agg.Restore(snap.Stats)
	return nil
}

// StartPeriodicSave snapshots agg every interval and once more when ctx is
// cancelled. The returned wait blocks until that final snapshot is written,
// so callers can defer it ahead of closing the database.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval, "retain", s.retain)
	return func() { <-done }
}

func encodeStats(stats analytics.Stats) ([]byte, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("marshaling stats: %w", err)
	}
	return data, nil
}

func decodeStats(data []byte) (analytics.Stats, error) {
	var stats analytics.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return stats, nil
}
