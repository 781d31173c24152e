// Package integration exercises the rule engine against the real
// SQLite storage adapter and the YAML rule store together.
package integration

import (
	"context"
	"path/filepath"
	"testing"

	"finagg/internal/logging"
	"finagg/internal/models"
	"finagg/internal/rules"
	"finagg/internal/rulestore"
	"finagg/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *storage.Store
	svc   *rules.Service
}

func newFixture(t *testing.T, ruleList []models.Rule) *fixture {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.Open(filepath.Join(dir, "finagg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ruleStore := rulestore.NewStore(filepath.Join(dir, "rules.yaml"), &logging.MockLogger{})
	require.NoError(t, ruleStore.Save(ruleList))

	store := storage.NewStore(db, &logging.MockLogger{})
	return &fixture{
		store: store,
		svc:   rules.NewService(ruleStore, store, &logging.MockLogger{}),
	}
}

func (f *fixture) insert(t *testing.T, date, description string, amount string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := f.store.InsertTransaction(ctx, models.Transaction{
		Date:        date,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Commit(ctx))
	return id
}

func TestApplyRules_EndToEnd(t *testing.T) {
	f := newFixture(t, []models.Rule{
		{Pattern: "pango", Category: "Transportation", Tags: []string{"parking", "car"}},
		{Pattern: "wolt", Category: "Food", Tags: []string{"eating-out"}},
		{Pattern: "refund", RemoveTags: []string{"eating-out"}},
	})
	ctx := context.Background()

	pangoID := f.insert(t, "2024-03-01", "PANGO PARKING APP", "-12")
	f.insert(t, "2024-03-02", "WOLT DELIVERY TLV", "-42.50")
	f.insert(t, "2024-03-03", "SALARY", "12000")

	// Dry run computes changes without persisting anything.
	dry, err := f.svc.Apply(ctx, rules.ApplyOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, dry.Processed)
	assert.Equal(t, 2, dry.Modified)

	txs, err := f.store.QueryTransactions(ctx, models.TransactionFilter{})
	require.NoError(t, err)
	for _, tx := range txs {
		assert.Nil(t, tx.UserCategory)
		assert.Empty(t, tx.Tags)
	}

	// The real run reports the same counts and persists.
	applied, err := f.svc.Apply(ctx, rules.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, dry.Processed, applied.Processed)
	assert.Equal(t, dry.Modified, applied.Modified)

	txs, err = f.store.QueryTransactions(ctx, models.TransactionFilter{IDs: []int64{pangoID}})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.NotNil(t, txs[0].UserCategory)
	assert.Equal(t, "Transportation", *txs[0].UserCategory)
	assert.ElementsMatch(t, []string{"parking", "car"}, txs[0].Tags)

	// Re-running converges to zero modifications.
	again, err := f.svc.Apply(ctx, rules.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, again.Processed)
	assert.Equal(t, 0, again.Modified)
	assert.Empty(t, again.Details)
}

func TestApplyRules_RemoveTagsEndToEnd(t *testing.T) {
	f := newFixture(t, []models.Rule{
		{Pattern: "refund", RemoveTags: []string{"eating-out"}},
	})
	ctx := context.Background()

	id := f.insert(t, "2024-03-05", "WOLT REFUND", "42.50")
	_, err := f.store.AddTags(ctx, id, []string{"eating-out"})
	require.NoError(t, err)
	require.NoError(t, f.store.Commit(ctx))

	result, err := f.svc.Apply(ctx, rules.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Modified)
	require.Len(t, result.Details, 1)
	assert.Equal(t, []string{"eating-out"}, result.Details[0].TagsRemoved)

	txs, err := f.store.QueryTransactions(ctx, models.TransactionFilter{IDs: []int64{id}})
	require.NoError(t, err)
	assert.Empty(t, txs[0].Tags)
}

func TestApplyRules_UncategorizedFilterEndToEnd(t *testing.T) {
	f := newFixture(t, []models.Rule{
		{Pattern: "wolt", Category: "Food"},
	})
	ctx := context.Background()

	keepID := f.insert(t, "2024-03-01", "WOLT ONE", "-10")
	skipID := f.insert(t, "2024-03-02", "WOLT TWO", "-20")

	manual := "Eating Out"
	require.NoError(t, f.store.SetUserCategory(ctx, skipID, &manual))
	require.NoError(t, f.store.Commit(ctx))

	result, err := f.svc.Apply(ctx, rules.ApplyOptions{OnlyUncategorized: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Details, 1)
	assert.Equal(t, keepID, result.Details[0].TransactionID)

	// The manual category is untouched.
	txs, err := f.store.QueryTransactions(ctx, models.TransactionFilter{IDs: []int64{skipID}})
	require.NoError(t, err)
	require.NotNil(t, txs[0].UserCategory)
	assert.Equal(t, "Eating Out", *txs[0].UserCategory)
}
