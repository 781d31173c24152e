package rules

import (
	"context"
	"errors"
	"strings"
	"testing"

	"finagg/internal/logging"
	"finagg/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuleStore is an in-memory RuleStore for engine tests.
type fakeRuleStore struct {
	rules   []models.Rule
	saveErr error
	loads   int
}

func (f *fakeRuleStore) Load() []models.Rule {
	f.loads++
	return append([]models.Rule{}, f.rules...)
}

func (f *fakeRuleStore) Save(rules []models.Rule) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.rules = append([]models.Rule{}, rules...)
	return nil
}

func (f *fakeRuleStore) CreateDefaultDocument() (bool, error) { return true, nil }

// fakeStorage is an in-memory Storage that records mutation and commit
// counts.
type fakeStorage struct {
	txs       map[int64]*models.Transaction
	order     []int64
	queries   int
	mutations int
	commits   int
	commitErr error
}

func newFakeStorage(txs ...models.Transaction) *fakeStorage {
	f := &fakeStorage{txs: map[int64]*models.Transaction{}}
	for i := range txs {
		tx := txs[i]
		f.txs[tx.ID] = &tx
		f.order = append(f.order, tx.ID)
	}
	return f
}

func (f *fakeStorage) QueryTransactions(_ context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	f.queries++
	var out []models.Transaction
	for _, id := range f.order {
		tx := f.txs[id]
		if len(filter.IDs) > 0 && !containsID(filter.IDs, id) {
			continue
		}
		if filter.OnlyUncategorized && tx.UserCategory != nil {
			continue
		}
		cp := *tx
		cp.Tags = append([]string{}, tx.Tags...)
		out = append(out, cp)
	}
	return out, nil
}

func (f *fakeStorage) SetUserCategory(_ context.Context, id int64, category *string) error {
	f.mutations++
	f.txs[id].UserCategory = category
	return nil
}

func (f *fakeStorage) AddTags(_ context.Context, id int64, names []string) (int, error) {
	f.mutations++
	added := 0
	for _, name := range names {
		if !f.txs[id].HasTag(name) {
			f.txs[id].Tags = append(f.txs[id].Tags, name)
			added++
		}
	}
	return added, nil
}

func (f *fakeStorage) RemoveTags(_ context.Context, id int64, names []string) (int, error) {
	f.mutations++
	removed := 0
	var kept []string
	for _, tag := range f.txs[id].Tags {
		drop := false
		for _, name := range names {
			if strings.EqualFold(tag, name) {
				drop = true
				break
			}
		}
		if drop {
			removed++
		} else {
			kept = append(kept, tag)
		}
	}
	f.txs[id].Tags = kept
	return removed, nil
}

func (f *fakeStorage) Commit(_ context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits++
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func newTestService(store *fakeRuleStore, storage *fakeStorage) *Service {
	return NewService(store, storage, &logging.MockLogger{})
}

func TestRules_LoadOnceAndDefensiveCopy(t *testing.T) {
	store := &fakeRuleStore{rules: []models.Rule{{Pattern: "wolt"}}}
	svc := newTestService(store, newFakeStorage())

	first := svc.Rules()
	second := svc.Rules()
	assert.Equal(t, 1, store.loads, "rules should be loaded once per engine lifetime")

	first[0].Pattern = "mutated"
	assert.Equal(t, "wolt", second[0].Pattern)
	assert.Equal(t, "wolt", svc.Rules()[0].Pattern)
}

func TestFindMatchingRules_PreservesOrder(t *testing.T) {
	svc := newTestService(&fakeRuleStore{rules: []models.Rule{
		{Pattern: "delivery"},
		{Pattern: "nomatch"},
		{Pattern: "wolt"},
	}}, newFakeStorage())

	matched := svc.FindMatchingRules("WOLT DELIVERY TLV", nil)
	require.Len(t, matched, 2)
	assert.Equal(t, "delivery", matched[0].Pattern)
	assert.Equal(t, "wolt", matched[1].Pattern)
}

func TestApplyToTransaction_FirstCategoryWins(t *testing.T) {
	svc := newTestService(&fakeRuleStore{rules: []models.Rule{
		{Pattern: "a", Category: "Transport"},
		{Pattern: "a", Category: "Food"},
	}}, newFakeStorage())

	tx := models.Transaction{ID: 1, Description: "a trip"}
	change, err := svc.ApplyToTransaction(context.Background(), tx, true, nil)
	require.NoError(t, err)
	require.NotNil(t, change.Category)
	assert.Equal(t, "Transport", *change.Category)
	assert.Equal(t, []string{"a", "a"}, change.MatchedPatterns)
}

func TestApplyToTransaction_TagUnion(t *testing.T) {
	svc := newTestService(&fakeRuleStore{rules: []models.Rule{
		{Pattern: "a", Tags: []string{"x"}},
		{Pattern: "a", Tags: []string{"y", "x"}},
	}}, newFakeStorage())

	tx := models.Transaction{ID: 1, Description: "a"}
	change, err := svc.ApplyToTransaction(context.Background(), tx, true, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, change.TagsAdded)
}

func TestApplyToTransaction_RemovalTakesPrecedenceOverAddition(t *testing.T) {
	svc := newTestService(&fakeRuleStore{rules: []models.Rule{
		{Pattern: "a", Tags: []string{"pending", "food"}},
		{Pattern: "a", RemoveTags: []string{"Pending"}},
	}}, newFakeStorage())

	// Tag present: removal wins, no re-add.
	tx := models.Transaction{ID: 1, Description: "a", Tags: []string{"pending"}}
	change, err := svc.ApplyToTransaction(context.Background(), tx, true, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"food"}, change.TagsAdded)
	assert.Equal(t, []string{"Pending"}, change.TagsRemoved)

	// Tag absent: it is neither added nor reported as removed.
	tx2 := models.Transaction{ID: 2, Description: "a"}
	change2, err := svc.ApplyToTransaction(context.Background(), tx2, true, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"food"}, change2.TagsAdded)
	assert.Empty(t, change2.TagsRemoved)
}

func TestApplyToTransaction_NoMatchIsEmptyChange(t *testing.T) {
	svc := newTestService(&fakeRuleStore{rules: []models.Rule{
		{Pattern: "wolt", Category: "Food"},
	}}, newFakeStorage())

	change, err := svc.ApplyToTransaction(context.Background(),
		models.Transaction{ID: 1, Description: "SBB TICKET"}, false, nil)
	require.NoError(t, err)
	assert.True(t, change.Empty())
	assert.Empty(t, change.MatchedPatterns)
}

func TestApply_EmptyRulesShortCircuits(t *testing.T) {
	storage := newFakeStorage(models.Transaction{ID: 1, Description: "wolt"})
	svc := newTestService(&fakeRuleStore{}, storage)

	result, err := svc.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 0, result.Modified)
	assert.Empty(t, result.Details)
	assert.Equal(t, "No rules defined", result.Message)
	assert.Equal(t, 0, storage.queries, "storage must not be touched")
	assert.Equal(t, 0, storage.commits)
}

func TestApply_RuleIndicesSubset(t *testing.T) {
	storage := newFakeStorage(models.Transaction{ID: 1, Description: "wolt delivery"})
	svc := newTestService(&fakeRuleStore{rules: []models.Rule{
		{Pattern: "wolt", Category: "Food"},
		{Pattern: "delivery", Category: "Delivery"},
	}}, storage)

	// Out-of-range indices are silently dropped.
	result, err := svc.Apply(context.Background(), ApplyOptions{
		DryRun:      true,
		RuleIndices: []int{1, 7, -1},
	})
	require.NoError(t, err)
	require.Len(t, result.Details, 1)
	assert.Equal(t, "Delivery", *result.Details[0].Category)

	// All indices out of range behaves like an empty rule list.
	result, err = svc.Apply(context.Background(), ApplyOptions{RuleIndices: []int{9}})
	require.NoError(t, err)
	assert.Equal(t, "No rules defined", result.Message)
}

func TestApply_DryRunHasNoStorageEffect(t *testing.T) {
	mkStorage := func() *fakeStorage {
		return newFakeStorage(
			models.Transaction{ID: 1, Description: "WOLT DELIVERY"},
			models.Transaction{ID: 2, Description: "SBB TICKET"},
		)
	}
	ruleSet := []models.Rule{{Pattern: "wolt", Category: "Food", Tags: []string{"eating-out"}}}

	dryStorage := mkStorage()
	drySvc := newTestService(&fakeRuleStore{rules: ruleSet}, dryStorage)
	dryResult, err := drySvc.Apply(context.Background(), ApplyOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 0, dryStorage.mutations)
	assert.Equal(t, 0, dryStorage.commits)
	assert.Nil(t, dryStorage.txs[1].UserCategory)
	assert.Empty(t, dryStorage.txs[1].Tags)

	// A real run over the same data reports the same counts.
	realStorage := mkStorage()
	realSvc := newTestService(&fakeRuleStore{rules: ruleSet}, realStorage)
	realResult, err := realSvc.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)

	assert.Equal(t, dryResult.Processed, realResult.Processed)
	assert.Equal(t, dryResult.Modified, realResult.Modified)
	assert.Equal(t, 1, realResult.Modified)
	assert.Equal(t, 1, realStorage.commits)
}

func TestApply_SecondRunIsIdempotent(t *testing.T) {
	storage := newFakeStorage(
		models.Transaction{ID: 1, Description: "WOLT DELIVERY"},
		models.Transaction{ID: 2, Description: "PANGO PARKING"},
	)
	svc := newTestService(&fakeRuleStore{rules: []models.Rule{
		{Pattern: "wolt", Category: "Food", Tags: []string{"eating-out"}},
		{Pattern: "pango", Category: "Transportation", Tags: []string{"parking", "car"}},
	}}, storage)

	first, err := svc.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Modified)

	second, err := svc.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Processed)
	assert.Equal(t, 0, second.Modified)
	assert.Empty(t, second.Details)
}

func TestApply_CommitsOncePerBatch(t *testing.T) {
	storage := newFakeStorage(
		models.Transaction{ID: 1, Description: "wolt one"},
		models.Transaction{ID: 2, Description: "wolt two"},
		models.Transaction{ID: 3, Description: "wolt three"},
	)
	svc := newTestService(&fakeRuleStore{rules: []models.Rule{
		{Pattern: "wolt", Category: "Food"},
	}}, storage)

	result, err := svc.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Modified)
	assert.Equal(t, 1, storage.commits)
}

func TestApply_CommitFailurePropagates(t *testing.T) {
	storage := newFakeStorage(models.Transaction{ID: 1, Description: "wolt"})
	storage.commitErr = errors.New("disk full")
	svc := newTestService(&fakeRuleStore{rules: []models.Rule{
		{Pattern: "wolt", Category: "Food"},
	}}, storage)

	_, err := svc.Apply(context.Background(), ApplyOptions{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
}

func TestApply_TransactionSelection(t *testing.T) {
	food := "Food"
	storage := newFakeStorage(
		models.Transaction{ID: 1, Description: "wolt a"},
		models.Transaction{ID: 2, Description: "wolt b", UserCategory: &food},
		models.Transaction{ID: 3, Description: "wolt c"},
	)
	svc := newTestService(&fakeRuleStore{rules: []models.Rule{
		{Pattern: "wolt", Category: "Food"},
	}}, storage)

	result, err := svc.Apply(context.Background(), ApplyOptions{
		OnlyUncategorized: true,
		DryRun:            true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	result, err = svc.Apply(context.Background(), ApplyOptions{
		TransactionIDs: []int64{3},
		DryRun:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Details, 1)
	assert.Equal(t, int64(3), result.Details[0].TransactionID)
}

// Scenario: pango rule applied to a fresh transaction, then re-applied.
func TestApply_PangoScenario(t *testing.T) {
	storage := newFakeStorage(models.Transaction{ID: 7, Description: "PANGO PARKING APP"})
	svc := newTestService(&fakeRuleStore{rules: []models.Rule{
		{Pattern: "pango", Category: "Transportation", Tags: []string{"parking", "car"}},
	}}, storage)

	change, err := svc.ApplyToTransaction(context.Background(), *storage.txs[7], false, nil)
	require.NoError(t, err)
	require.NotNil(t, change.Category)
	assert.Equal(t, "Transportation", *change.Category)
	assert.ElementsMatch(t, []string{"parking", "car"}, change.TagsAdded)
	assert.Equal(t, []string{"pango"}, change.MatchedPatterns)

	// Re-running after the effects landed yields no further change.
	change2, err := svc.ApplyToTransaction(context.Background(), *storage.txs[7], false, nil)
	require.NoError(t, err)
	assert.True(t, change2.Empty())
	assert.Equal(t, []string{"pango"}, change2.MatchedPatterns)
}

func TestAddRule_PersistsAndReloads(t *testing.T) {
	store := &fakeRuleStore{}
	svc := newTestService(store, newFakeStorage())

	rule, err := svc.AddRule("wolt", "Food", []string{"eating-out"}, nil, "contains", "food delivery")
	require.NoError(t, err)
	assert.Equal(t, models.MatchContains, rule.MatchType)
	require.Len(t, store.rules, 1)

	// Cache was invalidated: the new rule is visible.
	assert.Len(t, svc.Rules(), 1)
}

func TestAddRule_RejectsEmptyPattern(t *testing.T) {
	svc := newTestService(&fakeRuleStore{}, newFakeStorage())
	_, err := svc.AddRule("  ", "Food", nil, nil, "contains", "")
	assert.Error(t, err)
}

func TestAddRule_UnknownMatchTypeFallsBack(t *testing.T) {
	logger := &logging.MockLogger{}
	svc := NewService(&fakeRuleStore{}, newFakeStorage(), logger)

	rule, err := svc.AddRule("wolt", "", nil, nil, "fuzzy", "")
	require.NoError(t, err)
	assert.Equal(t, models.MatchContains, rule.MatchType)
	assert.NotEmpty(t, logger.Messages("WARN"))
}

func TestTestPattern_VerdictPerSample(t *testing.T) {
	svc := newTestService(&fakeRuleStore{}, newFakeStorage())

	verdicts := svc.TestPattern("wolt", "contains", []string{
		"WOLT DELIVERY TLV",
		"UBER EATS",
		"wolt",
	})
	assert.Equal(t, []bool{true, false, true}, verdicts)
}

func TestTestPattern_UnknownMatchTypeFallsBack(t *testing.T) {
	logger := &logging.MockLogger{}
	svc := NewService(&fakeRuleStore{}, newFakeStorage(), logger)

	verdicts := svc.TestPattern("wolt", "fuzzy", []string{"WOLT DELIVERY"})
	assert.Equal(t, []bool{true}, verdicts)
	assert.NotEmpty(t, logger.Messages("WARN"))
}

func TestRemoveRule_CaseInsensitiveExactMatch(t *testing.T) {
	store := &fakeRuleStore{rules: []models.Rule{
		{Pattern: "Wolt"},
		{Pattern: "pango"},
	}}
	svc := newTestService(store, newFakeStorage())

	removed, err := svc.RemoveRule("WOLT")
	require.NoError(t, err)
	assert.True(t, removed)
	require.Len(t, store.rules, 1)
	assert.Equal(t, "pango", store.rules[0].Pattern)

	removed, err = svc.RemoveRule("nothing")
	require.NoError(t, err)
	assert.False(t, removed)
}
