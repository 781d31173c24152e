package models

// TransactionChange describes what applying the rules altered (or
// would alter, on a dry run) for a single transaction.
type TransactionChange struct {
	TransactionID int64
	Description   string
	// Category is the resolved category assignment, nil when no
	// matching rule set one or the transaction already had it.
	Category        *string
	TagsAdded       []string
	TagsRemoved     []string
	MatchedPatterns []string
}

// Empty reports whether the change would leave the transaction
// untouched. Matched patterns alone do not count: a rule can match
// without producing a new effect.
func (c TransactionChange) Empty() bool {
	return c.Category == nil && len(c.TagsAdded) == 0 && len(c.TagsRemoved) == 0
}

// ApplyResult summarizes one batch rule application. Details contains
// an entry per modified transaction only.
type ApplyResult struct {
	Processed int
	Modified  int
	Details   []TransactionChange
	Message   string
}
