// Package categorize classifies raw bank transactions into the category
// taxonomy with a layered heuristic: provider category, then an ordered
// keyword table, then the amount-sign rule.
package categorize

import (
	"strings"

	"finsight/internal/core"
)

// Apply turns raw provider transactions into categorized transactions owned
// by userID. It is pure: deterministic for any input and free of side effects.
//
// The transaction type is derived here, exactly once, from the amount sign:
// positive amounts are expenses, zero or negative amounts are income. Income
// transactions are forced to the Income category on both levels regardless of
// any keyword match.
func Apply(userID string, raw []core.RawTransaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(raw))
	for _, rt := range raw {
		out = append(out, categorizeOne(userID, rt))
	}
	return out
}

func categorizeOne(userID string, rt core.RawTransaction) core.Transaction {
	t := core.Transaction{
		UserID:          userID,
		ExternalID:      rt.TransactionID,
		InstitutionID:   rt.InstitutionID,
		InstitutionName: rt.InstitutionName,
		AccountID:       rt.AccountID,
		Amount:          rt.Amount,
		Date:            rt.Date,
		Name:            rt.Name,
		MerchantName:    rt.MerchantName,
		RawCategory:     rt.Category,
		Pending:         rt.Pending,
	}

	// Start from the provider's top category.
	t.EnhancedCategory = core.Uncategorized
	if len(rt.Category) > 0 && rt.Category[0] != "" {
		t.EnhancedCategory = rt.Category[0]
	}
	t.Confidence = core.ConfidenceMedium

	// First matching keyword wins; table order is the tie-break.
	name := strings.ToLower(rt.Name)
	merchant := strings.ToLower(rt.MerchantName)
	for _, r := range keywordRules {
		if strings.Contains(merchant, r.keyword) || strings.Contains(name, r.keyword) {
			t.EnhancedCategory = r.category
			t.Confidence = core.ConfidenceHigh
			break
		}
	}

	t.HighLevelCategory = core.Uncategorized
	if group, ok := highLevelGroups[t.EnhancedCategory]; ok {
		t.HighLevelCategory = group
	}

	if rt.Amount.IsPositive() {
		t.Type = core.TypeExpense
	} else {
		t.Type = core.TypeIncome
		t.EnhancedCategory = core.CategoryIncome
		t.HighLevelCategory = core.CategoryIncome
	}

	return t
}
