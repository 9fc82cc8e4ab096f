// Package worker rebuilds persisted summaries from stored transactions in
// response to ingestion events and purges expired cache entries.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finsight/internal/aggregate"
	"finsight/internal/amqp"
	"finsight/internal/core"
)

// Store is the slice of persistence the worker needs.
type Store interface {
	QueryTransactions(ctx context.Context, userID string, rng core.DateRange) ([]core.Transaction, error)
	PutCachedSummary(ctx context.Context, userID string, summary core.TransactionSummary) error
	DeleteExpiredCachedSummaries(ctx context.Context, maxAge time.Duration) (int64, error)
}

// RefreshWorker recomputes a user's persisted summary from stored rows after
// each ingestion. Recomputing from the database rather than trusting the
// event keeps the cache consistent with upsert deduplication.
type RefreshWorker struct {
	store  Store
	maxAge time.Duration
}

func NewRefreshWorker(store Store, maxAge time.Duration) *RefreshWorker {
	return &RefreshWorker{store: store, maxAge: maxAge}
}

// HandleIngestion processes a single ingestion event.
func (w *RefreshWorker) HandleIngestion(ctx context.Context, msg *amqp.IngestionMessage) error {
	slog.InfoContext(ctx, "Processing ingestion event",
		"event_id", msg.EventID,
		"user_id", msg.UserID,
		"start_date", msg.StartDate,
		"end_date", msg.EndDate)

	rng := msg.Range()
	if err := rng.Validate(); err != nil {
		// A malformed event can never succeed; drop it instead of requeueing.
		slog.ErrorContext(ctx, "Dropping ingestion event with invalid range",
			"event_id", msg.EventID, "error", err)
		return nil
	}

	transactions, err := w.store.QueryTransactions(ctx, msg.UserID, rng)
	if err != nil {
		return fmt.Errorf("query stored transactions: %w", err)
	}

	summary := aggregate.Summarize(transactions, rng)
	if err := w.store.PutCachedSummary(ctx, msg.UserID, summary); err != nil {
		return fmt.Errorf("store refreshed summary: %w", err)
	}

	slog.InfoContext(ctx, "Refreshed summary from stored transactions",
		"event_id", msg.EventID,
		"user_id", msg.UserID,
		"transaction_count", len(transactions))

	return nil
}

// PurgeExpired deletes persisted summaries older than the freshness window.
func (w *RefreshWorker) PurgeExpired(ctx context.Context) error {
	n, err := w.store.DeleteExpiredCachedSummaries(ctx, w.maxAge)
	if err != nil {
		return fmt.Errorf("purge expired summaries: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Purged expired summaries", "count", n)
	}
	return nil
}

// RunPeriodicPurge purges on the given interval until ctx is cancelled. An
// initial purge runs immediately to recover from worker downtime.
func (w *RefreshWorker) RunPeriodicPurge(ctx context.Context, interval time.Duration) {
	if err := w.PurgeExpired(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup purge failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.PurgeExpired(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic purge failed", "error", err)
			}
		}
	}
}
