package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"finagg/internal/logging"
	"finagg/internal/models"
)

// Storage is the transaction-store contract the engine requires.
// Mutations are staged in a unit of work and made durable by Commit;
// a Commit with nothing staged is a no-op.
type Storage interface {
	QueryTransactions(ctx context.Context, f models.TransactionFilter) ([]models.Transaction, error)
	SetUserCategory(ctx context.Context, transactionID int64, category *string) error
	AddTags(ctx context.Context, transactionID int64, names []string) (int, error)
	RemoveTags(ctx context.Context, transactionID int64, names []string) (int, error)
	Commit(ctx context.Context) error
}

// RuleStore persists the ordered rule list.
type RuleStore interface {
	Load() []models.Rule
	Save(rules []models.Rule) error
	CreateDefaultDocument() (bool, error)
}

// Service orchestrates rule loading, matching, conflict resolution and
// bulk application. The cached rule list is per-instance state; create
// one Service per logical operation.
type Service struct {
	store   RuleStore
	storage Storage
	logger  logging.Logger

	rules  []models.Rule
	loaded bool
}

// NewService creates a rule engine over the given rule store and
// transaction storage.
func NewService(store RuleStore, storage Storage, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Service{store: store, storage: storage, logger: logger}
}

// Rules returns the rule list, loading it from the store on first
// access. The returned slice is a copy; mutating it does not affect
// the engine.
func (s *Service) Rules() []models.Rule {
	if !s.loaded {
		s.rules = s.store.Load()
		s.loaded = true
		s.logger.WithField(logging.FieldCount, len(s.rules)).Debug("Loaded rules")
	}
	out := make([]models.Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// invalidate drops the cached rule list so the next access reloads.
func (s *Service) invalidate() {
	s.rules = nil
	s.loaded = false
}

// FindMatchingRules evaluates every rule against the description and
// returns the matches in the rule list's original order. A nil rules
// argument means the full configured list.
func (s *Service) FindMatchingRules(description string, ruleList []models.Rule) []models.Rule {
	if ruleList == nil {
		ruleList = s.Rules()
	}
	var matched []models.Rule
	for _, r := range ruleList {
		if matches(r, description, s.logger) {
			matched = append(matched, r)
		}
	}
	return matched
}

// ApplyToTransaction computes and, unless dryRun is set, stages the
// rule effects for one transaction. Category resolution is
// first-match-wins over the rule order; tag additions and removals are
// unions across all matching rules, with removals taking precedence
// when the same tag appears in both. The returned change reflects only
// effective differences against the transaction's current state, so an
// already-converged transaction yields an empty change.
//
// Staged mutations become durable when the caller commits the batch.
func (s *Service) ApplyToTransaction(ctx context.Context, tx models.Transaction, dryRun bool, ruleList []models.Rule) (models.TransactionChange, error) {
	change := models.TransactionChange{
		TransactionID: tx.ID,
		Description:   tx.Description,
	}

	matched := s.FindMatchingRules(tx.Description, ruleList)
	if len(matched) == 0 {
		return change, nil
	}

	for _, r := range matched {
		change.MatchedPatterns = append(change.MatchedPatterns, r.Pattern)
	}

	// First matching rule with a category wins; later ones are ignored.
	var resolved string
	for _, r := range matched {
		if r.Category != "" {
			resolved = r.Category
			break
		}
	}

	addSet := map[string]string{}    // lowercase -> original spelling
	removeSet := map[string]string{} // lowercase -> original spelling
	for _, r := range matched {
		for _, tag := range r.Tags {
			if _, ok := addSet[strings.ToLower(tag)]; !ok {
				addSet[strings.ToLower(tag)] = tag
			}
		}
		for _, tag := range r.RemoveTags {
			if _, ok := removeSet[strings.ToLower(tag)]; !ok {
				removeSet[strings.ToLower(tag)] = tag
			}
		}
	}
	// A tag named in both sets is a removal: removals take precedence.
	for key := range removeSet {
		delete(addSet, key)
	}

	if resolved != "" && (tx.UserCategory == nil || *tx.UserCategory != resolved) {
		change.Category = &resolved
	}
	for _, tag := range addSet {
		if !tx.HasTag(tag) {
			change.TagsAdded = append(change.TagsAdded, tag)
		}
	}
	for _, tag := range removeSet {
		if tx.HasTag(tag) {
			change.TagsRemoved = append(change.TagsRemoved, tag)
		}
	}
	sort.Strings(change.TagsAdded)
	sort.Strings(change.TagsRemoved)

	if dryRun || change.Empty() {
		return change, nil
	}

	if change.Category != nil {
		if err := s.storage.SetUserCategory(ctx, tx.ID, change.Category); err != nil {
			return change, fmt.Errorf("set category for transaction %d: %w", tx.ID, err)
		}
	}
	if len(change.TagsAdded) > 0 {
		if _, err := s.storage.AddTags(ctx, tx.ID, change.TagsAdded); err != nil {
			return change, fmt.Errorf("add tags for transaction %d: %w", tx.ID, err)
		}
	}
	if len(change.TagsRemoved) > 0 {
		if _, err := s.storage.RemoveTags(ctx, tx.ID, change.TagsRemoved); err != nil {
			return change, fmt.Errorf("remove tags for transaction %d: %w", tx.ID, err)
		}
	}

	return change, nil
}

// ApplyOptions selects the transactions and rules for a batch apply.
type ApplyOptions struct {
	TransactionIDs    []int64
	OnlyUncategorized bool
	DryRun            bool
	// RuleIndices restricts the run to the given zero-based positions
	// in the rule list. Out-of-range indices are silently dropped. Nil
	// means all rules.
	RuleIndices []int
}

// Apply runs the rule engine over the selected transactions and
// returns a summary. Mutations for the whole batch are committed once
// at the end; a dry run never touches storage. Storage failures
// propagate unmodified.
func (s *Service) Apply(ctx context.Context, opts ApplyOptions) (models.ApplyResult, error) {
	ruleList := s.Rules()
	if opts.RuleIndices != nil {
		subset := make([]models.Rule, 0, len(opts.RuleIndices))
		for _, i := range opts.RuleIndices {
			if i >= 0 && i < len(ruleList) {
				subset = append(subset, ruleList[i])
			}
		}
		ruleList = subset
	}

	if len(ruleList) == 0 {
		return models.ApplyResult{Message: "No rules defined"}, nil
	}

	txs, err := s.storage.QueryTransactions(ctx, models.TransactionFilter{
		IDs:               opts.TransactionIDs,
		OnlyUncategorized: opts.OnlyUncategorized,
	})
	if err != nil {
		return models.ApplyResult{}, fmt.Errorf("query transactions: %w", err)
	}

	result := models.ApplyResult{}
	for _, tx := range txs {
		change, err := s.ApplyToTransaction(ctx, tx, opts.DryRun, ruleList)
		if err != nil {
			return result, err
		}
		result.Processed++
		if !change.Empty() {
			result.Modified++
			result.Details = append(result.Details, change)
		}
	}

	if !opts.DryRun {
		if err := s.storage.Commit(ctx); err != nil {
			return result, fmt.Errorf("commit rule application: %w", err)
		}
	}

	s.logger.Info("Applied rules",
		logging.Field{Key: "processed", Value: result.Processed},
		logging.Field{Key: "modified", Value: result.Modified},
		logging.Field{Key: "dry_run", Value: opts.DryRun})
	return result, nil
}

// AddRule appends a rule to the list and persists it immediately.
// Unknown match types fall back to contains with a warning.
func (s *Service) AddRule(pattern, category string, tags, removeTags []string, matchType, description string) (models.Rule, error) {
	if strings.TrimSpace(pattern) == "" {
		return models.Rule{}, fmt.Errorf("rule pattern must not be empty")
	}

	mt, known := models.ParseMatchType(matchType)
	if !known {
		s.logger.Warn("Unknown match type, defaulting to contains",
			logging.Field{Key: logging.FieldMatchType, Value: matchType})
	}

	rule := models.Rule{
		Pattern:     pattern,
		MatchType:   mt,
		Category:    category,
		Tags:        tags,
		RemoveTags:  removeTags,
		Description: description,
	}

	updated := append(s.Rules(), rule)
	if err := s.store.Save(updated); err != nil {
		return models.Rule{}, err
	}
	s.invalidate()
	return rule, nil
}

// RemoveRule deletes every rule whose pattern equals the given one
// case-insensitively, persisting immediately. It reports whether
// anything was removed.
func (s *Service) RemoveRule(pattern string) (bool, error) {
	current := s.Rules()
	kept := current[:0:0]
	for _, r := range current {
		if !strings.EqualFold(r.Pattern, pattern) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(current) {
		return false, nil
	}
	if err := s.store.Save(kept); err != nil {
		return false, err
	}
	s.invalidate()
	return true, nil
}

// TestPattern evaluates an ad-hoc rule against sample descriptions
// without persisting anything, returning one verdict per sample.
// Unknown match types fall back to contains with a warning.
func (s *Service) TestPattern(pattern, matchType string, samples []string) []bool {
	mt, known := models.ParseMatchType(matchType)
	if !known {
		s.logger.Warn("Unknown match type, defaulting to contains",
			logging.Field{Key: logging.FieldMatchType, Value: matchType})
	}
	rule := models.Rule{Pattern: pattern, MatchType: mt}

	verdicts := make([]bool, len(samples))
	for i, sample := range samples {
		verdicts[i] = matches(rule, sample, s.logger)
	}
	return verdicts
}

// CreateDefaultDocument writes a starter rules file through the store.
func (s *Service) CreateDefaultDocument() (bool, error) {
	created, err := s.store.CreateDefaultDocument()
	if created {
		s.invalidate()
	}
	return created, err
}
