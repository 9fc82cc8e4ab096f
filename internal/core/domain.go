package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types derived from the amount sign at categorization time.
const (
	TypeExpense = "expense"
	TypeIncome  = "income"
)

// Categorization confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
)

// Uncategorized is the default leaf and high-level category.
const Uncategorized = "Uncategorized"

// CategoryIncome overrides both category levels for income transactions.
const CategoryIncome = "Income"

type (
	// RawTransaction is a transaction as returned by the bank-aggregator API,
	// before categorization. InstitutionID and InstitutionName are stamped by
	// the connector pool, not the provider.
	RawTransaction struct {
		TransactionID   string          `json:"transaction_id"`
		AccountID       string          `json:"account_id"`
		Amount          decimal.Decimal `json:"amount"`
		Date            string          `json:"date"`
		Name            string          `json:"name"`
		MerchantName    string          `json:"merchant_name,omitempty"`
		Category        []string        `json:"category,omitempty"`
		Pending         bool            `json:"pending"`
		InstitutionID   string          `json:"institution_id,omitempty"`
		InstitutionName string          `json:"institution_name,omitempty"`
	}

	// Transaction is a categorized transaction owned by a user.
	//
	// ExternalID is the provider's transaction ID; (UserID, ExternalID) is the
	// dedup key across repeated ingestion runs. Type is derived from the amount
	// sign exactly once at categorization and persisted unchanged.
	Transaction struct {
		UserID            string          `json:"user_id"`
		ExternalID        string          `json:"external_id"`
		InstitutionID     string          `json:"institution_id"`
		InstitutionName   string          `json:"institution_name"`
		AccountID         string          `json:"account_id"`
		Amount            decimal.Decimal `json:"amount"`
		Date              string          `json:"date"`
		Name              string          `json:"name"`
		MerchantName      string          `json:"merchant_name,omitempty"`
		RawCategory       []string        `json:"raw_category,omitempty"`
		Pending           bool            `json:"pending"`
		EnhancedCategory  string          `json:"enhanced_category"`
		HighLevelCategory string          `json:"high_level_category"`
		Confidence        string          `json:"confidence"`
		Type              string          `json:"transaction_type"`
	}

	// DateRange is an inclusive date window in YYYY-MM-DD form.
	DateRange struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}

	// BudgetItem is a single category line of a monthly budget.
	BudgetItem struct {
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
		Notes    string          `json:"notes,omitempty"`
	}

	// Budget is a user's monthly budget, upserted keyed by (UserID, Month).
	// The category order is the order the user saved.
	Budget struct {
		UserID      string          `json:"user_id"`
		Month       string          `json:"month"`
		TotalBudget decimal.Decimal `json:"total_budget"`
		Categories  []BudgetItem    `json:"categories"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
	}

	// ConnectedInstitution is one linked bank connection for a user.
	// CredentialRef is opaque here; the auth collaborator owns its contents.
	ConnectedInstitution struct {
		UserID          string    `json:"user_id"`
		InstitutionID   string    `json:"institution_id"`
		InstitutionName string    `json:"institution_name"`
		CredentialRef   string    `json:"-"`
		ConnectedAt     time.Time `json:"connected_at"`
		UpdatedAt       time.Time `json:"updated_at"`
	}
)

func (r DateRange) Validate() error {
	if err := ValidateDate(r.StartDate); err != nil {
		return err
	}
	if err := ValidateDate(r.EndDate); err != nil {
		return err
	}
	if r.StartDate > r.EndDate {
		return ErrInvalidDateRange
	}
	return nil
}

// Contains reports whether the date falls inside the range, bounds included.
// ISO dates compare correctly as strings.
func (r DateRange) Contains(date string) bool {
	return date >= r.StartDate && date <= r.EndDate
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return ErrEmptyUserID
	}
	if err := ValidateMonth(b.Month); err != nil {
		return err
	}
	if b.TotalBudget.IsNegative() {
		return ErrInvalidBudgetAmount
	}
	for _, item := range b.Categories {
		if strings.TrimSpace(item.Category) == "" {
			return ErrEmptyCategory
		}
		if item.Amount.IsNegative() {
			return ErrInvalidBudgetAmount
		}
	}
	return nil
}
