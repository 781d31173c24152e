// Package report renders rule-application results and transaction
// listings for the CLI.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"finagg/internal/logging"
	"finagg/internal/models"

	"github.com/gocarina/gocsv"
)

// changeRow is the CSV shape of one TransactionChange.
type changeRow struct {
	TransactionID int64  `csv:"transaction_id"`
	Description   string `csv:"description"`
	Category      string `csv:"category"`
	TagsAdded     string `csv:"tags_added"`
	TagsRemoved   string `csv:"tags_removed"`
	MatchedRules  string `csv:"matched_rules"`
}

// transactionRow is the CSV shape of one exported transaction.
type transactionRow struct {
	ID           int64  `csv:"id"`
	Date         string `csv:"date"`
	Description  string `csv:"description"`
	Amount       string `csv:"amount"`
	Source       string `csv:"source"`
	Category     string `csv:"category"`
	UserCategory string `csv:"user_category"`
	Tags         string `csv:"tags"`
}

// Summary renders a short human-readable summary of an apply run.
func Summary(result models.ApplyResult, dryRun bool) string {
	if result.Message != "" {
		return result.Message
	}

	var b strings.Builder
	verb := "modified"
	if dryRun {
		verb = "would modify"
	}
	fmt.Fprintf(&b, "Processed %d transactions, %s %d\n", result.Processed, verb, result.Modified)
	for _, d := range result.Details {
		fmt.Fprintf(&b, "  #%d %s", d.TransactionID, d.Description)
		if d.Category != nil {
			fmt.Fprintf(&b, " -> %s", *d.Category)
		}
		if len(d.TagsAdded) > 0 {
			fmt.Fprintf(&b, " +[%s]", strings.Join(d.TagsAdded, ", "))
		}
		if len(d.TagsRemoved) > 0 {
			fmt.Fprintf(&b, " -[%s]", strings.Join(d.TagsRemoved, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// WriteApplyCSV writes the per-transaction change details to a CSV
// file.
func WriteApplyCSV(result models.ApplyResult, path string, logger logging.Logger) error {
	if logger == nil {
		logger = logging.GetLogger()
	}

	rows := make([]changeRow, 0, len(result.Details))
	for _, d := range result.Details {
		row := changeRow{
			TransactionID: d.TransactionID,
			Description:   d.Description,
			TagsAdded:     strings.Join(d.TagsAdded, "|"),
			TagsRemoved:   strings.Join(d.TagsRemoved, "|"),
			MatchedRules:  strings.Join(d.MatchedPatterns, "|"),
		}
		if d.Category != nil {
			row.Category = *d.Category
		}
		rows = append(rows, row)
	}

	return writeCSV(rows, path, logger)
}

// WriteTransactionsCSV exports transactions to a CSV file.
func WriteTransactionsCSV(transactions []models.Transaction, path string, logger logging.Logger) error {
	if logger == nil {
		logger = logging.GetLogger()
	}

	rows := make([]transactionRow, 0, len(transactions))
	for _, t := range transactions {
		row := transactionRow{
			ID:          t.ID,
			Date:        t.Date,
			Description: t.Description,
			Amount:      t.Amount.String(),
			Source:      t.Source,
			Category:    t.Category,
			Tags:        strings.Join(t.Tags, "|"),
		}
		if t.UserCategory != nil {
			row.UserCategory = *t.UserCategory
		}
		rows = append(rows, row)
	}

	return writeCSV(rows, path, logger)
}

func writeCSV[T any](rows []T, path string, logger logging.Logger) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating CSV file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close file")
		}
	}()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("error writing CSV file: %w", err)
	}

	logger.WithField(logging.FieldCount, len(rows)).Debug("Wrote CSV report")
	return nil
}
