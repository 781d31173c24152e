package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Transaction is a financial transaction synced from an institution.
// Category is the source-provided classification; UserCategory is the
// user's (or the rule engine's) override and is nil when unset.
type Transaction struct {
	ID           int64
	Date         string
	Description  string
	Amount       decimal.Decimal
	Source       string
	Category     string
	UserCategory *string
	Tags         []string
	ImportID     string
}

// HasTag reports whether the transaction already carries the named
// tag. Tag identity is case-insensitive.
func (t Transaction) HasTag(name string) bool {
	for _, tag := range t.Tags {
		if strings.EqualFold(tag, name) {
			return true
		}
	}
	return false
}

// Tag is a user-defined label attached to transactions through a join
// table. Names are unique case-insensitively.
type Tag struct {
	ID   int64
	Name string
}

// TransactionFilter narrows a transaction query. A nil/empty IDs slice
// means all transactions.
type TransactionFilter struct {
	IDs               []int64
	OnlyUncategorized bool
}
