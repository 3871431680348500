package grid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Dialect names a database/sql driver the SQL book knows how to talk to.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "pgx"
)

// SQLBook is a Book persisted in the grid_sheets and grid_cells tables.
// Several books can share one database; every row is scoped by book id.
type SQLBook struct {
	db      *sql.DB
	dialect Dialect
	id      string
}

// NewSQLBook binds a book id to an open database. The schema must already
// exist (see Migrate).
func NewSQLBook(db *sql.DB, dialect Dialect, id string) *SQLBook {
	return &SQLBook{db: db, dialect: dialect, id: id}
}

func (b *SQLBook) ID() string { return b.id }

// q rewrites ? placeholders to the dialect's positional form.
func (b *SQLBook) q(query string) string {
	if b.dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (b *SQLBook) Sheet(ctx context.Context, name string) (Sheet, error) {
	var one int
	err := b.db.QueryRowContext(ctx,
		b.q(`SELECT 1 FROM grid_sheets WHERE book = ? AND name = ?`), b.id, name,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrSheetNotFound, b.id, name)
	}
	if err != nil {
		return nil, fmt.Errorf("grid: open sheet %s: %w", name, err)
	}
	return &sqlSheet{book: b, name: name}, nil
}

func (b *SQLBook) CreateSheet(ctx context.Context, name string, headers []string) (Sheet, error) {
	err := b.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			b.q(`SELECT COUNT(*) FROM grid_sheets WHERE book = ? AND name = ?`), b.id, name,
		).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s/%s", ErrSheetExists, b.id, name)
		}

		if _, err := tx.ExecContext(ctx,
			b.q(`INSERT INTO grid_sheets (book, name) VALUES (?, ?)`), b.id, name,
		); err != nil {
			return err
		}

		for i, h := range headers {
			if h == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				b.q(`INSERT INTO grid_cells (book, sheet, row_num, col_num, value) VALUES (?, ?, 1, ?, ?)`),
				b.id, name, i+1, h,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSheetExists) {
			return nil, err
		}
		return nil, fmt.Errorf("grid: create sheet %s: %w", name, err)
	}
	return &sqlSheet{book: b, name: name}, nil
}

// withTx runs fn in a transaction, committing on success and rolling back otherwise.
func (b *SQLBook) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type sqlSheet struct {
	book *SQLBook
	name string
}

func (s *sqlSheet) Name() string { return s.name }

func (s *sqlSheet) LastRow(ctx context.Context) (int, error) {
	return s.max(ctx, "row_num")
}

func (s *sqlSheet) LastColumn(ctx context.Context) (int, error) {
	return s.max(ctx, "col_num")
}

func (s *sqlSheet) max(ctx context.Context, column string) (int, error) {
	var n int
	err := s.book.db.QueryRowContext(ctx,
		s.book.q(`SELECT COALESCE(MAX(`+column+`), 0) FROM grid_cells WHERE book = ? AND sheet = ? AND value <> ''`),
		s.book.id, s.name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("grid: %s max %s: %w", s.name, column, err)
	}
	return n, nil
}

func (s *sqlSheet) Values(ctx context.Context, row, col, numRows, numCols int) ([][]string, error) {
	if err := checkBlock(row, col, numRows, numCols); err != nil {
		return nil, err
	}

	out := make([][]string, numRows)
	for i := range out {
		out[i] = make([]string, numCols)
	}
	if numRows == 0 || numCols == 0 {
		return out, nil
	}

	rows, err := s.book.db.QueryContext(ctx,
		s.book.q(`SELECT row_num, col_num, value FROM grid_cells
			WHERE book = ? AND sheet = ?
			  AND row_num BETWEEN ? AND ?
			  AND col_num BETWEEN ? AND ?`),
		s.book.id, s.name, row, row+numRows-1, col, col+numCols-1,
	)
	if err != nil {
		return nil, fmt.Errorf("grid: %s read values: %w", s.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r, c int
		var v string
		if err := rows.Scan(&r, &c, &v); err != nil {
			return nil, fmt.Errorf("grid: %s scan cell: %w", s.name, err)
		}
		out[r-row][c-col] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grid: %s read values: %w", s.name, err)
	}
	return out, nil
}

// SetText upserts a cell. Writing "" removes the cell.
func (s *sqlSheet) SetText(ctx context.Context, row, col int, value string) error {
	if err := checkCell(row, col); err != nil {
		return err
	}

	err := s.book.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			s.book.q(`DELETE FROM grid_cells WHERE book = ? AND sheet = ? AND row_num = ? AND col_num = ?`),
			s.book.id, s.name, row, col,
		); err != nil {
			return err
		}
		if value == "" {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			s.book.q(`INSERT INTO grid_cells (book, sheet, row_num, col_num, value) VALUES (?, ?, ?, ?, ?)`),
			s.book.id, s.name, row, col, value,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("grid: %s set (%d,%d): %w", s.name, row, col, err)
	}
	return nil
}

func (s *sqlSheet) InsertRowBefore(ctx context.Context, row int) error {
	if err := checkRow(row); err != nil {
		return err
	}

	_, err := s.book.db.ExecContext(ctx,
		s.book.q(`UPDATE grid_cells SET row_num = row_num + 1 WHERE book = ? AND sheet = ? AND row_num >= ?`),
		s.book.id, s.name, row,
	)
	if err != nil {
		return fmt.Errorf("grid: %s insert row %d: %w", s.name, row, err)
	}
	return nil
}

func (s *sqlSheet) DeleteRow(ctx context.Context, row int) error {
	if err := checkRow(row); err != nil {
		return err
	}

	err := s.book.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			s.book.q(`DELETE FROM grid_cells WHERE book = ? AND sheet = ? AND row_num = ?`),
			s.book.id, s.name, row,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			s.book.q(`UPDATE grid_cells SET row_num = row_num - 1 WHERE book = ? AND sheet = ? AND row_num > ?`),
			s.book.id, s.name, row,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("grid: %s delete row %d: %w", s.name, row, err)
	}
	return nil
}
