// Package budget derives progress read models from a saved budget and the
// month's categorized spend.
package budget

import (
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Compute builds the progress view for a budget given the month's expense
// totals per enhanced category. Categories with a budget line but no spend
// report zero; spend in categories without a budget line contributes to the
// overall totals only.
func Compute(b core.Budget, spendByCategory map[string]decimal.Decimal, totalSpent decimal.Decimal, now time.Time) core.BudgetProgress {
	progress := core.BudgetProgress{
		UserID:          b.UserID,
		Month:           b.Month,
		TotalBudget:     b.TotalBudget,
		TotalSpent:      totalSpent,
		RemainingBudget: b.TotalBudget.Sub(totalSpent),
		PercentageUsed:  percentage(totalSpent, b.TotalBudget),
		Categories:      make([]core.BudgetCategoryProgress, 0, len(b.Categories)),
		LastUpdated:     now,
	}

	for _, item := range b.Categories {
		spent := spendByCategory[item.Category]
		pct := percentage(spent, item.Amount)
		progress.Categories = append(progress.Categories, core.BudgetCategoryProgress{
			Category:        item.Category,
			BudgetAmount:    item.Amount,
			SpentAmount:     spent,
			RemainingAmount: item.Amount.Sub(spent),
			PercentageUsed:  pct,
			Status:          statusFor(spent, item.Amount),
		})
	}

	return progress
}

// statusFor classifies spend against a limit using exact decimal comparison,
// so spending exactly 80% of the limit is already a warning and exactly 100%
// is exceeded. A zero limit means zero percent used, which is on track.
func statusFor(spent, limit decimal.Decimal) string {
	if limit.IsZero() {
		return core.StatusOnTrack
	}
	ratio := spent.Mul(hundred).Div(limit)
	switch {
	case ratio.GreaterThanOrEqual(hundred):
		return core.StatusExceeded
	case ratio.GreaterThanOrEqual(decimal.NewFromInt(80)):
		return core.StatusWarning
	default:
		return core.StatusOnTrack
	}
}

func percentage(spent, limit decimal.Decimal) float64 {
	if limit.IsZero() {
		return 0
	}
	pct, _ := spent.Mul(hundred).Div(limit).Round(2).Float64()
	return pct
}
