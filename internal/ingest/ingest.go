// Package ingest imports institution CSV exports into the local
// transaction database with duplicate suppression.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"finagg/internal/logging"
	"finagg/internal/models"
	"finagg/internal/storage"

	"github.com/agnivade/levenshtein"
	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Row is the CSV shape produced by the institution scrapers/exports.
type Row struct {
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Amount      string `csv:"amount"`
	Category    string `csv:"category"`
}

// Summary reports the outcome of one import run.
type Summary struct {
	ImportID   string
	Imported   int
	Duplicates int
	Skipped    int
}

// Importer reads CSV rows and stages new transactions. Rows that
// duplicate an existing same-date transaction (exact match, or
// description similarity at or above DedupeThreshold with an equal
// amount) are dropped.
type Importer struct {
	Store           *storage.Store
	DedupeThreshold float64
	// Delimiter is the CSV field separator; zero means comma.
	Delimiter rune
	Logger    logging.Logger
}

// NewImporter creates an importer over the given store.
func NewImporter(store *storage.Store, dedupeThreshold float64, logger logging.Logger) *Importer {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Importer{Store: store, DedupeThreshold: dedupeThreshold, Logger: logger}
}

// Import reads the CSV file, stages the non-duplicate rows under a new
// import batch and commits. Rows with a missing date, description or
// unparseable amount are skipped with a warning, not a failure.
func (im *Importer) Import(ctx context.Context, filePath, source string) (Summary, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Summary{}, fmt.Errorf("open import file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			im.Logger.WithError(err).Warn("Failed to close import file")
		}
	}()

	// Configure gocsv for the institution's delimiter, then reset to
	// the default for other callers.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		if im.Delimiter != 0 {
			r.Comma = im.Delimiter
		}
		return r
	})
	defer gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return csv.NewReader(in)
	})

	var rows []Row
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return Summary{}, fmt.Errorf("parse import file: %w", err)
	}

	summary := Summary{ImportID: uuid.NewString()}
	// Transactions staged in this batch, keyed by date, so a file
	// containing its own duplicates is also deduplicated.
	staged := map[string][]models.Transaction{}

	for i, row := range rows {
		if strings.TrimSpace(row.Date) == "" || strings.TrimSpace(row.Description) == "" {
			im.Logger.Warn("Skipping row without date or description",
				logging.Field{Key: "row", Value: i + 1})
			summary.Skipped++
			continue
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(row.Amount))
		if err != nil {
			im.Logger.WithError(err).Warn("Skipping row with malformed amount",
				logging.Field{Key: "row", Value: i + 1})
			summary.Skipped++
			continue
		}

		tx := models.Transaction{
			Date:        row.Date,
			Description: strings.TrimSpace(row.Description),
			Amount:      amount,
			Source:      source,
			Category:    row.Category,
			ImportID:    summary.ImportID,
		}

		existing, err := im.Store.TransactionsOnDate(ctx, tx.Date)
		if err != nil {
			im.Store.Rollback()
			return summary, fmt.Errorf("look up transactions on %s: %w", tx.Date, err)
		}
		existing = append(existing, staged[tx.Date]...)

		if dup := im.findDuplicate(tx, existing); dup != nil {
			im.Logger.Debug("Skipping duplicate transaction",
				logging.Field{Key: "description", Value: tx.Description},
				logging.Field{Key: logging.FieldTransactionID, Value: dup.ID})
			summary.Duplicates++
			continue
		}

		if _, err := im.Store.InsertTransaction(ctx, tx); err != nil {
			im.Store.Rollback()
			return summary, fmt.Errorf("insert transaction: %w", err)
		}
		staged[tx.Date] = append(staged[tx.Date], tx)
		summary.Imported++
	}

	if err := im.Store.RecordImport(ctx, summary.ImportID, filepath.Base(filePath), source, summary.Imported); err != nil {
		im.Store.Rollback()
		return summary, fmt.Errorf("record import: %w", err)
	}
	if err := im.Store.Commit(ctx); err != nil {
		return summary, fmt.Errorf("commit import: %w", err)
	}

	im.Logger.Info("Imported transactions",
		logging.Field{Key: logging.FieldFile, Value: filePath},
		logging.Field{Key: logging.FieldSource, Value: source},
		logging.Field{Key: "imported", Value: summary.Imported},
		logging.Field{Key: "duplicates", Value: summary.Duplicates},
		logging.Field{Key: "skipped", Value: summary.Skipped})
	return summary, nil
}

// findDuplicate returns the first existing same-date transaction the
// candidate duplicates, or nil.
func (im *Importer) findDuplicate(candidate models.Transaction, existing []models.Transaction) *models.Transaction {
	for i := range existing {
		e := &existing[i]
		if !e.Amount.Equal(candidate.Amount) {
			continue
		}
		if strings.EqualFold(e.Description, candidate.Description) {
			return e
		}
		if Similarity(e.Description, candidate.Description) >= im.DedupeThreshold {
			return e
		}
	}
	return nil
}

// Similarity returns a normalized levenshtein similarity in [0,1]
// between two descriptions, case-insensitively. Identical strings are
// 1; strings with nothing in common approach 0.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
