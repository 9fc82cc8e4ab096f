// Package finance orchestrates summary retrieval, budget management, and the
// tiered cache over the persistence gateway and the connector pool.
package finance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/aggregate"
	"finsight/internal/budget"
	"finsight/internal/cache"
	"finsight/internal/categorize"
	"finsight/internal/core"
)

// Service answers summary, budget, and progress requests. Reads go through
// the in-process cache, then the persisted cache, then a live fetch, and fall
// back to stored transactions when the live tier fails.
type Service struct {
	gateway   Gateway
	fetcher   Fetcher
	memCache  *cache.SummaryCache
	publisher Publisher
	freshness time.Duration
	now       func() time.Time
}

// NewService wires the service. publisher may be nil; freshness bounds how
// old a persisted summary may be before a live fetch is attempted.
func NewService(gateway Gateway, fetcher Fetcher, memCache *cache.SummaryCache, publisher Publisher, freshness time.Duration) *Service {
	return &Service{
		gateway:   gateway,
		fetcher:   fetcher,
		memCache:  memCache,
		publisher: publisher,
		freshness: freshness,
		now:       time.Now,
	}
}

// GetFinancialSummary returns the summary for the range, defaulting missing
// bounds to the current month so far. With refresh set, both cache tiers are
// bypassed; the stored-transaction fallback still applies when the live fetch
// fails.
func (s *Service) GetFinancialSummary(ctx context.Context, userID, startDate, endDate string, refresh bool) (core.TransactionSummary, error) {
	if userID == "" {
		return core.TransactionSummary{}, core.ErrEmptyUserID
	}

	rng, err := s.resolveRange(startDate, endDate)
	if err != nil {
		return core.TransactionSummary{}, err
	}

	key := cache.Key(userID, rng)
	if !refresh {
		if summary, ok := s.memCache.Get(key); ok {
			slog.DebugContext(ctx, "Summary served from memory cache", "user_id", userID, "start_date", rng.StartDate, "end_date", rng.EndDate)
			return summary, nil
		}
		cached, err := s.gateway.GetCachedSummary(ctx, userID, rng)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to read cached summary", "user_id", userID, "error", err)
			// Treat as a miss and try the live tier.
		} else if cached != nil && cached.Fresh(s.now(), s.freshness) {
			// Keep the stored entry's remaining lifetime so a memory hit
			// never outlives the freshness window.
			s.memCache.SetWithExpiry(key, cached.Summary, cached.CreatedAt.Add(s.freshness))
			slog.InfoContext(ctx, "Summary served from stored cache", "user_id", userID, "age", s.now().Sub(cached.CreatedAt).String())
			return cached.Summary, nil
		}
	}

	summary, liveErr := s.ingest(ctx, userID, rng)
	if liveErr == nil {
		return summary, nil
	}

	// Live tier failed: serve stored transactions if any cover the range.
	stored, err := s.gateway.QueryTransactions(ctx, userID, rng)
	if err != nil {
		slog.ErrorContext(ctx, "Stored fallback query failed", "user_id", userID, "error", err)
		return core.TransactionSummary{}, fmt.Errorf("stored fallback: %w", err)
	}
	if len(stored) > 0 {
		slog.WarnContext(ctx, "Serving stored transactions after live fetch failure",
			"user_id", userID, "transaction_count", len(stored), "live_error", liveErr)
		return aggregate.Summarize(stored, rng), nil
	}

	return core.TransactionSummary{}, liveErr
}

// ingest runs a live fetch across the user's institutions, categorizes and
// persists the result, and refreshes both cache tiers.
func (s *Service) ingest(ctx context.Context, userID string, rng core.DateRange) (core.TransactionSummary, error) {
	institutions, err := s.gateway.ListConnectedInstitutions(ctx, userID)
	if err != nil {
		return core.TransactionSummary{}, fmt.Errorf("list institutions: %w", err)
	}
	if len(institutions) == 0 {
		return core.TransactionSummary{}, core.ErrNoInstitutions
	}

	result := s.fetcher.FetchAll(ctx, institutions, rng)
	for _, f := range result.Failures {
		slog.WarnContext(ctx, "Institution fetch failed",
			"user_id", userID, "institution_id", f.InstitutionID, "institution_name", f.InstitutionName, "error", f.Err)
	}
	if result.AllFailed() {
		if result.AllAuthRequired() {
			return core.TransactionSummary{}, result.Failures[0].Err
		}
		return core.TransactionSummary{}, core.ErrNoDataAvailable
	}

	transactions := categorize.Apply(userID, result.Transactions)

	for _, t := range transactions {
		if err := s.gateway.UpsertTransaction(ctx, t); err != nil {
			// Keep serving the live result even when a row fails to store.
			slog.ErrorContext(ctx, "Failed to store transaction",
				"user_id", userID, "external_id", t.ExternalID, "error", err)
		}
	}

	summary := aggregate.Summarize(transactions, rng)

	if err := s.gateway.PutCachedSummary(ctx, userID, summary); err != nil {
		slog.ErrorContext(ctx, "Failed to store cached summary", "user_id", userID, "error", err)
	}
	s.memCache.Set(cache.Key(userID, rng), summary)

	if s.publisher != nil {
		if err := s.publisher.PublishIngestionCompleted(ctx, userID, rng, len(transactions)); err != nil {
			slog.ErrorContext(ctx, "Failed to publish ingestion event", "user_id", userID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Live ingestion completed",
		"user_id", userID, "transaction_count", len(transactions), "failed_institutions", len(result.Failures))
	return summary, nil
}

// UpsertBudget validates and saves a monthly budget, replacing any budget for
// the same month.
func (s *Service) UpsertBudget(ctx context.Context, b core.Budget) (*core.Budget, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	saved, err := s.gateway.UpsertBudget(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("save budget: %w", err)
	}
	return saved, nil
}

// ListBudgets returns the user's budgets, most recent month first.
func (s *Service) ListBudgets(ctx context.Context, userID string, limit int) ([]core.Budget, error) {
	if userID == "" {
		return nil, core.ErrEmptyUserID
	}
	return s.gateway.ListBudgets(ctx, userID, limit)
}

// GetBudgetProgress compares a month's spend with its saved budget. An empty
// month means the current month. The month's summary supplies the spend; when
// no summary can be produced the stored expense totals are used, accepting
// zero spend for a fresh month.
func (s *Service) GetBudgetProgress(ctx context.Context, userID, month string) (core.BudgetProgress, error) {
	if userID == "" {
		return core.BudgetProgress{}, core.ErrEmptyUserID
	}
	if month == "" {
		month = core.FormatMonth(s.now())
	}
	if err := core.ValidateMonth(month); err != nil {
		return core.BudgetProgress{}, err
	}

	b, err := s.gateway.GetBudget(ctx, userID, month)
	if err != nil {
		return core.BudgetProgress{}, err
	}

	rng, err := core.MonthRange(month)
	if err != nil {
		return core.BudgetProgress{}, err
	}

	spend, total, err := s.monthSpend(ctx, userID, rng)
	if err != nil {
		return core.BudgetProgress{}, err
	}

	return budget.Compute(*b, spend, total, s.now()), nil
}

// monthSpend resolves expense totals for the range, preferring the summary
// pipeline and falling back to stored expense rows.
func (s *Service) monthSpend(ctx context.Context, userID string, rng core.DateRange) (map[string]decimal.Decimal, decimal.Decimal, error) {
	summary, err := s.GetFinancialSummary(ctx, userID, rng.StartDate, rng.EndDate, false)
	if err == nil {
		return summary.ExpenseByCategory, summary.TotalExpenses, nil
	}
	slog.WarnContext(ctx, "Using stored expense totals for budget progress", "user_id", userID, "error", err)

	spend, err := s.gateway.GroupByCategory(ctx, userID, rng, core.TypeExpense)
	if err != nil {
		return nil, decimal.Decimal{}, fmt.Errorf("group stored expenses: %w", err)
	}
	total := decimal.Zero
	for _, amount := range spend {
		total = total.Add(amount)
	}
	return spend, total, nil
}

// resolveRange defaults missing bounds to the current month so far and
// validates the result.
func (s *Service) resolveRange(startDate, endDate string) (core.DateRange, error) {
	def := core.DefaultSummaryRange(s.now())
	rng := core.DateRange{StartDate: startDate, EndDate: endDate}
	if rng.StartDate == "" {
		rng.StartDate = def.StartDate
	}
	if rng.EndDate == "" {
		rng.EndDate = def.EndDate
	}
	if err := rng.Validate(); err != nil {
		return core.DateRange{}, err
	}
	return rng, nil
}
