// Package storage implements the persistence gateway over SQLite. Amounts are
// stored as exact decimal strings; dates as YYYY-MM-DD text, which makes range
// queries plain lexicographic comparisons.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"finsight/internal/core"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// UpsertTransaction inserts the transaction or, when (user_id, external_id)
// already exists, replaces its mutable fields in place. Re-ingestion resends
// authoritative values, so last write wins and no duplicate row is ever
// created. transaction_type is persisted exactly as derived at categorization.
func (r *Repository) UpsertTransaction(ctx context.Context, t core.Transaction) error {
	rawCategory, err := json.Marshal(t.RawCategory)
	if err != nil {
		return &core.PersistenceError{Op: "marshal raw category", Err: err}
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions (
			user_id, external_id, institution_id, institution_name, account_id,
			amount, date, name, merchant_name, raw_category, pending,
			enhanced_category, high_level_category, confidence, transaction_type,
			stored_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, external_id) DO UPDATE SET
			institution_id      = excluded.institution_id,
			institution_name    = excluded.institution_name,
			account_id          = excluded.account_id,
			amount              = excluded.amount,
			date                = excluded.date,
			name                = excluded.name,
			merchant_name       = excluded.merchant_name,
			raw_category        = excluded.raw_category,
			pending             = excluded.pending,
			enhanced_category   = excluded.enhanced_category,
			high_level_category = excluded.high_level_category,
			confidence          = excluded.confidence,
			transaction_type    = excluded.transaction_type,
			updated_at          = excluded.updated_at`,
		t.UserID, t.ExternalID, t.InstitutionID, t.InstitutionName, t.AccountID,
		t.Amount.String(), t.Date, t.Name, t.MerchantName, string(rawCategory), boolToInt(t.Pending),
		t.EnhancedCategory, t.HighLevelCategory, t.Confidence, t.Type,
		now, now)
	if err != nil {
		return &core.PersistenceError{Op: "upsert transaction", Err: err}
	}
	return nil
}

// QueryTransactions returns the stored transactions for the user inside the
// range, bounds inclusive, oldest first.
func (r *Repository) QueryTransactions(ctx context.Context, userID string, rng core.DateRange) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, external_id, institution_id, institution_name, account_id,
		       amount, date, name, merchant_name, raw_category, pending,
		       enhanced_category, high_level_category, confidence, transaction_type
		FROM transactions
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date, id`,
		userID, rng.StartDate, rng.EndDate)
	if err != nil {
		return nil, &core.PersistenceError{Op: "query transactions", Err: err}
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, &core.PersistenceError{Op: "scan transaction", Err: err}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "iterate transactions", Err: err}
	}
	return out, nil
}

// GroupByCategory totals stored non-pending transactions of the given type by
// enhanced category. The filter is identical to the aggregator's rules, so the
// result is numerically consistent with a live run over the same rows.
func (r *Repository) GroupByCategory(ctx context.Context, userID string, rng core.DateRange, txType string) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT enhanced_category, amount
		FROM transactions
		WHERE user_id = ? AND date >= ? AND date <= ?
		  AND transaction_type = ? AND pending = 0`,
		userID, rng.StartDate, rng.EndDate, txType)
	if err != nil {
		return nil, &core.PersistenceError{Op: "group by category", Err: err}
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var category, amountStr string
		if err := rows.Scan(&category, &amountStr); err != nil {
			return nil, &core.PersistenceError{Op: "scan category total", Err: err}
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, &core.PersistenceError{Op: "parse stored amount", Err: err}
		}
		if txType == core.TypeIncome {
			amount = amount.Abs()
		}
		totals[category] = totals[category].Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "iterate category totals", Err: err}
	}
	return totals, nil
}

// GetBudget returns the budget for (user, month) or core.ErrBudgetNotFound.
func (r *Repository) GetBudget(ctx context.Context, userID, month string) (*core.Budget, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, month, total_budget, categories, created_at, updated_at
		FROM budgets WHERE user_id = ? AND month = ?`,
		userID, month)

	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrBudgetNotFound
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "get budget", Err: err}
	}
	return b, nil
}

// UpsertBudget creates or replaces the budget keyed by (user, month),
// preserving created_at on update, and returns the stored record.
func (r *Repository) UpsertBudget(ctx context.Context, b core.Budget) (*core.Budget, error) {
	categories, err := json.Marshal(b.Categories)
	if err != nil {
		return nil, &core.PersistenceError{Op: "marshal budget categories", Err: err}
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, month, total_budget, categories, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, month) DO UPDATE SET
			total_budget = excluded.total_budget,
			categories   = excluded.categories,
			updated_at   = excluded.updated_at`,
		b.UserID, b.Month, b.TotalBudget.String(), string(categories), now, now)
	if err != nil {
		return nil, &core.PersistenceError{Op: "upsert budget", Err: err}
	}

	stored, err := r.GetBudget(ctx, b.UserID, b.Month)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Budget saved",
		"user_id", b.UserID,
		"month", b.Month,
		"total_budget", b.TotalBudget.String(),
		"categories", len(b.Categories))
	return stored, nil
}

// ListBudgets returns the user's budgets, most recent month first.
func (r *Repository) ListBudgets(ctx context.Context, userID string, limit int) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, month, total_budget, categories, created_at, updated_at
		FROM budgets WHERE user_id = ?
		ORDER BY month DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list budgets", Err: err}
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, &core.PersistenceError{Op: "scan budget", Err: err}
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "iterate budgets", Err: err}
	}
	return out, nil
}

// GetCachedSummary returns the persisted summary for the exact key, or nil
// when none exists. Freshness is the caller's decision.
func (r *Repository) GetCachedSummary(ctx context.Context, userID string, rng core.DateRange) (*core.CachedSummary, error) {
	var (
		payload   string
		createdAt time.Time
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT payload, created_at FROM cached_summaries
		WHERE user_id = ? AND start_date = ? AND end_date = ?`,
		userID, rng.StartDate, rng.EndDate).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "get cached summary", Err: err}
	}

	var summary core.TransactionSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, &core.PersistenceError{Op: "unmarshal cached summary", Err: err}
	}
	return &core.CachedSummary{UserID: userID, Summary: summary, CreatedAt: createdAt}, nil
}

// PutCachedSummary overwrites the cache entry for the exact key.
func (r *Repository) PutCachedSummary(ctx context.Context, userID string, summary core.TransactionSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return &core.PersistenceError{Op: "marshal summary", Err: err}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cached_summaries (user_id, start_date, end_date, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, start_date, end_date) DO UPDATE SET
			payload    = excluded.payload,
			created_at = excluded.created_at`,
		userID, summary.DateRange.StartDate, summary.DateRange.EndDate, string(payload), time.Now().UTC())
	if err != nil {
		return &core.PersistenceError{Op: "put cached summary", Err: err}
	}
	return nil
}

// DeleteExpiredCachedSummaries purges entries older than maxAge and returns
// how many were removed.
func (r *Repository) DeleteExpiredCachedSummaries(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := r.db.ExecContext(ctx, `DELETE FROM cached_summaries WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, &core.PersistenceError{Op: "delete expired summaries", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &core.PersistenceError{Op: "count deleted summaries", Err: err}
	}
	return n, nil
}

// ListConnectedInstitutions returns the user's linked institutions. The rows
// are written by the connection flow, which lives outside this core.
func (r *Repository) ListConnectedInstitutions(ctx context.Context, userID string) ([]core.ConnectedInstitution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, institution_id, institution_name, credential_ref, connected_at, updated_at
		FROM connected_institutions WHERE user_id = ?
		ORDER BY connected_at, id`,
		userID)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list connected institutions", Err: err}
	}
	defer rows.Close()

	var out []core.ConnectedInstitution
	for rows.Next() {
		var ci core.ConnectedInstitution
		if err := rows.Scan(&ci.UserID, &ci.InstitutionID, &ci.InstitutionName,
			&ci.CredentialRef, &ci.ConnectedAt, &ci.UpdatedAt); err != nil {
			return nil, &core.PersistenceError{Op: "scan connected institution", Err: err}
		}
		out = append(out, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "iterate connected institutions", Err: err}
	}
	return out, nil
}

// UpsertConnectedInstitution stores a link keyed by (user, institution).
// Exposed for the connection flow and for seeding.
func (r *Repository) UpsertConnectedInstitution(ctx context.Context, ci core.ConnectedInstitution) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO connected_institutions (user_id, institution_id, institution_name, credential_ref, connected_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, institution_id) DO UPDATE SET
			institution_name = excluded.institution_name,
			credential_ref   = excluded.credential_ref,
			updated_at       = excluded.updated_at`,
		ci.UserID, ci.InstitutionID, ci.InstitutionName, ci.CredentialRef, now, now)
	if err != nil {
		return &core.PersistenceError{Op: "upsert connected institution", Err: err}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t           core.Transaction
		amountStr   string
		rawCategory string
		pending     int
	)
	err := s.Scan(&t.UserID, &t.ExternalID, &t.InstitutionID, &t.InstitutionName, &t.AccountID,
		&amountStr, &t.Date, &t.Name, &t.MerchantName, &rawCategory, &pending,
		&t.EnhancedCategory, &t.HighLevelCategory, &t.Confidence, &t.Type)
	if err != nil {
		return core.Transaction{}, err
	}

	t.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", amountStr, err)
	}
	if err := json.Unmarshal([]byte(rawCategory), &t.RawCategory); err != nil {
		return core.Transaction{}, fmt.Errorf("parse raw category: %w", err)
	}
	t.Pending = pending != 0
	return t, nil
}

func scanBudget(s rowScanner) (*core.Budget, error) {
	var (
		b              core.Budget
		totalStr       string
		categoriesJSON string
	)
	err := s.Scan(&b.UserID, &b.Month, &totalStr, &categoriesJSON, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	b.TotalBudget, err = decimal.NewFromString(totalStr)
	if err != nil {
		return nil, fmt.Errorf("parse total budget %q: %w", totalStr, err)
	}
	if err := json.Unmarshal([]byte(categoriesJSON), &b.Categories); err != nil {
		return nil, fmt.Errorf("parse budget categories: %w", err)
	}
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
