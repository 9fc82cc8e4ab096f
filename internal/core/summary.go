package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	// TopExpense is one entry of a summary's largest-expenses list.
	TopExpense struct {
		Name     string          `json:"name"`
		Amount   decimal.Decimal `json:"amount"`
		Date     string          `json:"date"`
		Category string          `json:"category"`
	}

	// TopIncome is one entry of a summary's largest-income list.
	TopIncome struct {
		Name   string          `json:"name"`
		Amount decimal.Decimal `json:"amount"`
		Date   string          `json:"date"`
	}

	// TransactionSummary is an immutable snapshot of aggregate statistics over
	// a set of categorized transactions. Pending transactions are excluded from
	// every total; income amounts are reported as absolute values.
	TransactionSummary struct {
		TotalExpenses              decimal.Decimal            `json:"total_expenses"`
		TotalIncome                decimal.Decimal            `json:"total_income"`
		NetCashFlow                decimal.Decimal            `json:"net_cash_flow"`
		ExpenseByCategory          map[string]decimal.Decimal `json:"expense_by_category"`
		ExpenseByHighLevelCategory map[string]decimal.Decimal `json:"expense_by_high_level_category"`
		TransactionCountByCategory map[string]int             `json:"transaction_count_by_category"`
		LargestExpenses            []TopExpense               `json:"largest_expenses"`
		LargestIncome              []TopIncome                `json:"largest_income"`
		TransactionCount           int                        `json:"transaction_count"`
		DateRange                  DateRange                  `json:"date_range"`
	}

	// CachedSummary is a persisted TransactionSummary keyed by
	// (UserID, DateRange.StartDate, DateRange.EndDate). It is valid while its
	// age is below the freshness window and is overwritten in full by every
	// successful live fetch for the same key.
	CachedSummary struct {
		UserID    string             `json:"user_id"`
		Summary   TransactionSummary `json:"summary"`
		CreatedAt time.Time          `json:"created_at"`
	}

	// BudgetCategoryProgress is per-category progress against a budget line.
	BudgetCategoryProgress struct {
		Category        string          `json:"category"`
		BudgetAmount    decimal.Decimal `json:"budget_amount"`
		SpentAmount     decimal.Decimal `json:"spent_amount"`
		RemainingAmount decimal.Decimal `json:"remaining_amount"`
		PercentageUsed  float64         `json:"percentage_used"`
		Status          string          `json:"status"`
	}

	// BudgetProgress is a derived read model comparing a month's spend with a
	// saved budget. It is computed on demand and never persisted.
	BudgetProgress struct {
		UserID          string                   `json:"user_id"`
		Month           string                   `json:"month"`
		TotalBudget     decimal.Decimal          `json:"total_budget"`
		TotalSpent      decimal.Decimal          `json:"total_spent"`
		RemainingBudget decimal.Decimal          `json:"remaining_budget"`
		PercentageUsed  float64                  `json:"percentage_used"`
		Categories      []BudgetCategoryProgress `json:"categories"`
		LastUpdated     time.Time                `json:"last_updated"`
	}
)

// Budget progress statuses. The 80% boundary is warning, the 100% boundary is
// exceeded.
const (
	StatusOnTrack  = "on_track"
	StatusWarning  = "warning"
	StatusExceeded = "exceeded"
)

// Fresh reports whether the cached summary is younger than maxAge at now.
func (c CachedSummary) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(c.CreatedAt) < maxAge
}
