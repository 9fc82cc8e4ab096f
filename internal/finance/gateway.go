package finance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/connector"
	"finsight/internal/core"
)

// Gateway is the persistence surface the service needs. *storage.Repository
// satisfies it.
type Gateway interface {
	ListConnectedInstitutions(ctx context.Context, userID string) ([]core.ConnectedInstitution, error)
	UpsertTransaction(ctx context.Context, t core.Transaction) error
	QueryTransactions(ctx context.Context, userID string, rng core.DateRange) ([]core.Transaction, error)
	GroupByCategory(ctx context.Context, userID string, rng core.DateRange, txType string) (map[string]decimal.Decimal, error)
	GetBudget(ctx context.Context, userID, month string) (*core.Budget, error)
	UpsertBudget(ctx context.Context, b core.Budget) (*core.Budget, error)
	ListBudgets(ctx context.Context, userID string, limit int) ([]core.Budget, error)
	GetCachedSummary(ctx context.Context, userID string, rng core.DateRange) (*core.CachedSummary, error)
	PutCachedSummary(ctx context.Context, userID string, summary core.TransactionSummary) error
	DeleteExpiredCachedSummaries(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Fetcher fans a date-range fetch out across a user's institutions.
// *connector.Pool satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, institutions []core.ConnectedInstitution, rng core.DateRange) connector.Result
}

// Publisher emits an event after a successful live ingestion. A nil Publisher
// disables publishing.
type Publisher interface {
	PublishIngestionCompleted(ctx context.Context, userID string, rng core.DateRange, transactionCount int) error
}
