// Package aggregate computes summary statistics from categorized
// transactions. Summarize is a pure transform over an in-memory list and
// needs no concurrency control.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
)

// TopN bounds the largest-expenses and largest-income lists.
const TopN = 5

// Summarize builds a TransactionSummary for the given range. Pending
// transactions are skipped everywhere; income totals use absolute values;
// net cash flow is income minus expenses. The top lists are ranked descending
// by magnitude, input order breaking ties.
func Summarize(transactions []core.Transaction, rng core.DateRange) core.TransactionSummary {
	summary := core.TransactionSummary{
		TotalExpenses:              decimal.Zero,
		TotalIncome:                decimal.Zero,
		NetCashFlow:                decimal.Zero,
		ExpenseByCategory:          make(map[string]decimal.Decimal),
		ExpenseByHighLevelCategory: make(map[string]decimal.Decimal),
		TransactionCountByCategory: make(map[string]int),
		LargestExpenses:            []core.TopExpense{},
		LargestIncome:              []core.TopIncome{},
		TransactionCount:           len(transactions),
		DateRange:                  rng,
	}

	var expenses []core.TopExpense
	var income []core.TopIncome

	for _, t := range transactions {
		if t.Pending {
			continue
		}

		category := t.EnhancedCategory
		if category == "" {
			category = core.Uncategorized
		}
		highLevel := t.HighLevelCategory
		if highLevel == "" {
			highLevel = core.Uncategorized
		}

		if t.Type == core.TypeExpense {
			summary.TotalExpenses = summary.TotalExpenses.Add(t.Amount)
			summary.ExpenseByCategory[category] = summary.ExpenseByCategory[category].Add(t.Amount)
			summary.ExpenseByHighLevelCategory[highLevel] = summary.ExpenseByHighLevelCategory[highLevel].Add(t.Amount)
			expenses = append(expenses, core.TopExpense{
				Name:     t.Name,
				Amount:   t.Amount,
				Date:     t.Date,
				Category: category,
			})
		} else {
			abs := t.Amount.Abs()
			summary.TotalIncome = summary.TotalIncome.Add(abs)
			income = append(income, core.TopIncome{
				Name:   t.Name,
				Amount: abs,
				Date:   t.Date,
			})
		}

		summary.TransactionCountByCategory[category]++
	}

	summary.NetCashFlow = summary.TotalIncome.Sub(summary.TotalExpenses)

	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].Amount.GreaterThan(expenses[j].Amount)
	})
	sort.SliceStable(income, func(i, j int) bool {
		return income[i].Amount.GreaterThan(income[j].Amount)
	})

	if len(expenses) > TopN {
		expenses = expenses[:TopN]
	}
	if len(income) > TopN {
		income = income[:TopN]
	}
	summary.LargestExpenses = append(summary.LargestExpenses, expenses...)
	summary.LargestIncome = append(summary.LargestIncome, income...)

	return summary
}
