package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"finagg/internal/logging"
	"finagg/internal/models"

	"github.com/shopspring/decimal"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is the transaction storage adapter. Mutations are staged in a
// single lazily-opened SQL transaction and made durable by Commit, so
// a batch is never partially visible. Reads go through the open unit
// of work when one exists.
type Store struct {
	db     *sql.DB
	tx     *sql.Tx
	logger logging.Logger
}

// NewStore creates a Store over an opened database.
func NewStore(db *sql.DB, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) begin() (querier, error) {
	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return nil, fmt.Errorf("begin unit of work: %w", err)
		}
		s.tx = tx
	}
	return s.tx, nil
}

// Commit durably persists all staged changes. A Commit without staged
// changes is a no-op.
func (s *Store) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

// Rollback discards any staged changes.
func (s *Store) Rollback() {
	if s.tx == nil {
		return
	}
	if err := s.tx.Rollback(); err != nil {
		s.logger.WithError(err).Warn("Failed to roll back unit of work")
	}
	s.tx = nil
}

// QueryTransactions returns transactions matching the filter, each
// with its tag names loaded.
func (s *Store) QueryTransactions(ctx context.Context, f models.TransactionFilter) ([]models.Transaction, error) {
	var where []string
	var args []interface{}

	if len(f.IDs) > 0 {
		placeholders := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.OnlyUncategorized {
		where = append(where, "(user_category IS NULL OR user_category = '')")
	}

	query := `SELECT id, date, description, amount, source, category, user_category, COALESCE(import_id, '')
		FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, id"

	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &amount, &t.Source, &t.Category, &t.UserCategory, &t.ImportID); err != nil {
			return nil, err
		}
		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %d has malformed amount %q: %w", t.ID, amount, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		tags, err := s.tagNames(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Tags = tags
	}
	return out, nil
}

func (s *Store) tagNames(ctx context.Context, transactionID int64) ([]string, error) {
	rows, err := s.q().QueryContext(ctx, `
	SELECT t.name FROM tags t
	JOIN transaction_tags tt ON tt.tag_id = t.id
	WHERE tt.transaction_id = ?
	ORDER BY t.name`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SetUserCategory stages an idempotent category assignment; nil clears
// the user category.
func (s *Store) SetUserCategory(ctx context.Context, transactionID int64, category *string) error {
	q, err := s.begin()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `UPDATE transactions SET user_category = ? WHERE id = ?`, category, transactionID)
	return err
}

// AddTags stages tag associations, creating tags on demand. Tag
// identity is case-insensitive; already-present associations are
// no-ops. Returns the number of associations actually added.
func (s *Store) AddTags(ctx context.Context, transactionID int64, names []string) (int, error) {
	q, err := s.begin()
	if err != nil {
		return 0, err
	}

	added := 0
	for _, name := range names {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO tags(name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return added, fmt.Errorf("create tag %q: %w", name, err)
		}

		var tagID int64
		if err := q.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID); err != nil {
			return added, fmt.Errorf("look up tag %q: %w", name, err)
		}

		res, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO transaction_tags(transaction_id, tag_id) VALUES (?, ?)`,
			transactionID, tagID)
		if err != nil {
			return added, fmt.Errorf("tag transaction %d with %q: %w", transactionID, name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return added, err
		}
		added += int(n)
	}
	return added, nil
}

// RemoveTags stages removal of tag associations; absent associations
// are no-ops. Returns the number of associations actually removed.
func (s *Store) RemoveTags(ctx context.Context, transactionID int64, names []string) (int, error) {
	q, err := s.begin()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range names {
		res, err := q.ExecContext(ctx, `
		DELETE FROM transaction_tags
		WHERE transaction_id = ? AND tag_id IN (SELECT id FROM tags WHERE name = ?)`,
			transactionID, name)
		if err != nil {
			return removed, fmt.Errorf("untag transaction %d from %q: %w", transactionID, name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, nil
}

// InsertTransaction stages a new transaction row and returns its id.
func (s *Store) InsertTransaction(ctx context.Context, t models.Transaction) (int64, error) {
	q, err := s.begin()
	if err != nil {
		return 0, err
	}

	var importID interface{}
	if t.ImportID != "" {
		importID = t.ImportID
	}
	res, err := q.ExecContext(ctx, `
	INSERT INTO transactions(date, description, amount, source, category, user_category, import_id)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Date, t.Description, t.Amount.String(), t.Source, t.Category, t.UserCategory, importID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordImport stages an import-batch record.
func (s *Store) RecordImport(ctx context.Context, id, filename, source string, rowCount int) error {
	q, err := s.begin()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
	INSERT INTO imports(id, filename, source, row_count) VALUES (?, ?, ?, ?)`,
		id, filename, source, rowCount)
	return err
}

// TransactionsOnDate returns the transactions booked on the given
// date, used for duplicate detection on import.
func (s *Store) TransactionsOnDate(ctx context.Context, date string) ([]models.Transaction, error) {
	rows, err := s.q().QueryContext(ctx, `
	SELECT id, date, description, amount, source, category, user_category, COALESCE(import_id, '')
	FROM transactions WHERE date = ? ORDER BY id`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &amount, &t.Source, &t.Category, &t.UserCategory, &t.ImportID); err != nil {
			return nil, err
		}
		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %d has malformed amount %q: %w", t.ID, amount, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := s.q().QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
