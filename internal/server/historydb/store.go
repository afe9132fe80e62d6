// Package historydb persists execution results in an embedded SQLite
// database so they survive server restarts.
package historydb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id          TEXT PRIMARY KEY,
	file_name   TEXT NOT NULL,
	operator    TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS history_rows (
	history_id  TEXT NOT NULL REFERENCES history(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	user_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	eppns       TEXT NOT NULL,
	emails      TEXT NOT NULL,
	user_groups TEXT NOT NULL,
	category    INTEGER NOT NULL,
	diagnostic  TEXT NOT NULL,
	PRIMARY KEY (history_id, position)
);
CREATE INDEX IF NOT EXISTS idx_history_rows_category
	ON history_rows (history_id, category, position);
`

// Store is a SQLite-backed history store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes one execution result atomically. Saving an existing id fails:
// history entries are immutable.
func (s *Store) Save(ctx context.Context, historyID string, info domain.FileInfo, rows []domain.DiffRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO history (id, file_name, operator, started_at, finished_at) VALUES (?, ?, ?, ?, ?)`,
		historyID, info.FileName, info.Operator,
		info.StartedAt.UTC().Format(time.RFC3339Nano),
		info.FinishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert history %s: %w", historyID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO history_rows (history_id, position, user_id, name, eppns, emails, user_groups, category, diagnostic)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare rows: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		_, err = stmt.ExecContext(ctx, historyID, i,
			row.UserID, row.Name,
			encodeList(row.EPPNs), encodeList(row.Emails), encodeList(row.Groups),
			int(row.Category), row.Diagnostic)
		if err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Page reads one page of a stored result. The summary covers the whole
// entry regardless of the category filter or page bounds.
func (s *Store) Page(ctx context.Context, historyID string, page, size int, filter domain.CategorySet) (domain.HistoryResult, error) {
	var out domain.HistoryResult

	var startedAt, finishedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT file_name, operator, started_at, finished_at FROM history WHERE id = ?`, historyID).
		Scan(&out.FileInfo.FileName, &out.FileInfo.Operator, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return domain.HistoryResult{}, &domain.NotFoundError{Resource: "history", ID: historyID}
	}
	if err != nil {
		return domain.HistoryResult{}, fmt.Errorf("read history %s: %w", historyID, err)
	}
	if out.FileInfo.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return domain.HistoryResult{}, fmt.Errorf("parse started_at: %w", err)
	}
	if out.FileInfo.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return domain.HistoryResult{}, fmt.Errorf("parse finished_at: %w", err)
	}

	if out.Summary, err = s.summary(ctx, historyID); err != nil {
		return domain.HistoryResult{}, err
	}

	query := `SELECT user_id, name, eppns, emails, user_groups, category, diagnostic
		FROM history_rows WHERE history_id = ?`
	args := []any{historyID}
	if !filter.IsEmpty() {
		ords := filter.Ordinals()
		query += ` AND category IN (?` + strings.Repeat(",?", len(ords)-1) + `)`
		for _, o := range ords {
			args = append(args, o)
		}
	}
	query += ` ORDER BY position LIMIT ? OFFSET ?`
	args = append(args, size, page*size)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.HistoryResult{}, fmt.Errorf("read rows: %w", err)
	}
	defer rows.Close()

	out.Rows = []domain.DiffRow{}
	for rows.Next() {
		var r domain.DiffRow
		var eppns, emails, groups string
		var category int
		if err := rows.Scan(&r.UserID, &r.Name, &eppns, &emails, &groups, &category, &r.Diagnostic); err != nil {
			return domain.HistoryResult{}, fmt.Errorf("scan row: %w", err)
		}
		if r.EPPNs, err = decodeList(eppns); err != nil {
			return domain.HistoryResult{}, fmt.Errorf("decode eppns: %w", err)
		}
		if r.Emails, err = decodeList(emails); err != nil {
			return domain.HistoryResult{}, fmt.Errorf("decode emails: %w", err)
		}
		if r.Groups, err = decodeList(groups); err != nil {
			return domain.HistoryResult{}, fmt.Errorf("decode groups: %w", err)
		}
		r.Category = domain.Category(category)
		out.Rows = append(out.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return domain.HistoryResult{}, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

func (s *Store) summary(ctx context.Context, historyID string) (domain.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM history_rows WHERE history_id = ? GROUP BY category`, historyID)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("read summary: %w", err)
	}
	defer rows.Close()

	var out domain.Summary
	for rows.Next() {
		var category, count int
		if err := rows.Scan(&category, &count); err != nil {
			return domain.Summary{}, fmt.Errorf("scan summary: %w", err)
		}
		switch domain.Category(category) {
		case domain.CategoryCreate:
			out.Create = count
		case domain.CategoryUpdate:
			out.Update = count
		case domain.CategoryDelete:
			out.Delete = count
		case domain.CategorySkip:
			out.Skip = count
		case domain.CategoryError:
			out.Error = count
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Summary{}, fmt.Errorf("iterate summary: %w", err)
	}
	return out, nil
}

func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func decodeList(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
