// Package grid defines the tabular storage port the record store is built on.
//
// A Book holds named Sheets. A Sheet is a cell grid addressed with 1-based
// row and column numbers, the same way a spreadsheet is. Every cell holds
// text; backends never reinterpret a value as a number or a date.
//
// Two backends are provided: an in-memory book for tests and development,
// and a database/sql book that persists cells in SQLite or PostgreSQL.
package grid

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by every Book and Sheet implementation.
var (
	// ErrSheetNotFound means the book has no sheet with the requested name.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrSheetExists means CreateSheet was called for a name already in use.
	ErrSheetExists = errors.New("sheet already exists")
	// ErrInvalidRange means a row, column or block size is outside the sheet.
	ErrInvalidRange = errors.New("invalid range")
)

// Book is a named collection of sheets.
type Book interface {
	ID() string
	Sheet(ctx context.Context, name string) (Sheet, error)
	CreateSheet(ctx context.Context, name string, headers []string) (Sheet, error)
}

// Sheet is the minimal cell-grid contract.
type Sheet interface {
	Name() string

	// LastRow and LastColumn report the last row/column holding a non-empty
	// cell, or 0 for an empty sheet.
	LastRow(ctx context.Context) (int, error)
	LastColumn(ctx context.Context) (int, error)

	// Values returns a numRows x numCols block starting at (row, col).
	// Cells that were never written read as "".
	Values(ctx context.Context, row, col, numRows, numCols int) ([][]string, error)

	// SetText stores value verbatim in a single cell.
	SetText(ctx context.Context, row, col int, value string) error

	// InsertRowBefore shifts row and everything below it down by one.
	InsertRowBefore(ctx context.Context, row int) error

	// DeleteRow removes row and shifts everything below it up by one.
	DeleteRow(ctx context.Context, row int) error
}

// DataRange returns every cell from (1,1) to (LastRow, LastColumn).
func DataRange(ctx context.Context, s Sheet) ([][]string, error) {
	rows, err := s.LastRow(ctx)
	if err != nil {
		return nil, err
	}
	cols, err := s.LastColumn(ctx)
	if err != nil {
		return nil, err
	}
	if rows == 0 || cols == 0 {
		return nil, nil
	}
	return s.Values(ctx, 1, 1, rows, cols)
}

// OpenOrCreate returns the named sheet, creating it with headers when it is missing.
func OpenOrCreate(ctx context.Context, b Book, name string, headers []string) (Sheet, error) {
	s, err := b.Sheet(ctx, name)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSheetNotFound) {
		return nil, err
	}
	s, err = b.CreateSheet(ctx, name, headers)
	if errors.Is(err, ErrSheetExists) {
		return b.Sheet(ctx, name)
	}
	return s, err
}

func checkCell(row, col int) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("%w: cell (%d,%d)", ErrInvalidRange, row, col)
	}
	return nil
}

func checkBlock(row, col, numRows, numCols int) error {
	if row < 1 || col < 1 || numRows < 0 || numCols < 0 {
		return fmt.Errorf("%w: block (%d,%d) %dx%d", ErrInvalidRange, row, col, numRows, numCols)
	}
	return nil
}

func checkRow(row int) error {
	if row < 1 {
		return fmt.Errorf("%w: row %d", ErrInvalidRange, row)
	}
	return nil
}
