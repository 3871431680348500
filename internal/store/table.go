// Package store provides a schema-checked record store over a grid sheet.
//
// A Table treats row 1 of a sheet as the header and every following non-blank
// row as one record. Records are addressed by the value in the "id" column.
// Schema validation runs on every operation; there is no caching, so edits
// made to the sheet by other tools are picked up on the next call.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/sheetusers/internal/grid"
)

// IDField is the header every schema must contain.
const IDField = "id"

// headerRow is the 1-based row holding column names.
const headerRow = 1

// ErrSchemaMismatch means the header row does not hold exactly the entity's
// fields, or the field set lacks "id". Every Table operation can return it.
var ErrSchemaMismatch = errors.New("schema mismatch")

// ErrIDExhausted means Insert could not draw an id that is not already used.
var ErrIDExhausted = errors.New("no free id")

// MaxIDAttempts bounds how many ids Insert draws before giving up.
var MaxIDAttempts = 10000

// Record maps header names to cell values. A missing key means "no value":
// writes skip it and leave the stored cell untouched.
type Record map[string]string

// ID returns the record's id cell.
func (r Record) ID() string { return r[IDField] }

// Fields is an entity's set of field names.
type Fields []string

// Has reports whether name is one of the fields.
func (f Fields) Has(name string) bool {
	for _, n := range f {
		if n == name {
			return true
		}
	}
	return false
}

// Table is the record store bound to one sheet of a book.
type Table struct {
	book  grid.Book
	sheet string
	ids   IDGenerator

	// mu serializes writes so locate-then-write steps of one call do not
	// interleave with another call against the same table.
	mu sync.Mutex
}

// NewTable binds a table to book/sheet. ids assigns identifiers on Insert.
func NewTable(book grid.Book, sheet string, ids IDGenerator) *Table {
	return &Table{book: book, sheet: sheet, ids: ids}
}

// Name returns the sheet name.
func (t *Table) Name() string { return t.sheet }

func (t *Table) open(ctx context.Context) (grid.Sheet, error) {
	s, err := t.book.Sheet(ctx, t.sheet)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", t.sheet, err)
	}
	return s, nil
}

// Headers returns the column names in row 1.
func (t *Table) Headers(ctx context.Context) ([]string, error) {
	s, err := t.open(ctx)
	if err != nil {
		return nil, err
	}
	return headers(ctx, s)
}

func headers(ctx context.Context, s grid.Sheet) ([]string, error) {
	cols, err := s.LastColumn(ctx)
	if err != nil {
		return nil, err
	}
	if cols == 0 {
		return nil, nil
	}
	vals, err := s.Values(ctx, headerRow, 1, 1, cols)
	if err != nil {
		return nil, err
	}
	return vals[0], nil
}

// AllIDs returns the id column for rows 1..LastRow, header cell included.
// Index i corresponds to sheet row i+1.
func (t *Table) AllIDs(ctx context.Context) ([]string, error) {
	s, err := t.open(ctx)
	if err != nil {
		return nil, err
	}
	hdr, err := headers(ctx, s)
	if err != nil {
		return nil, err
	}
	return allIDs(ctx, s, hdr)
}

func allIDs(ctx context.Context, s grid.Sheet, hdr []string) ([]string, error) {
	col := indexOf(hdr, IDField)
	if col < 0 {
		return nil, fmt.Errorf("%w: sheet %s has no %q column", ErrSchemaMismatch, s.Name(), IDField)
	}
	rows, err := s.LastRow(ctx)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, nil
	}
	vals, err := s.Values(ctx, 1, col+1, rows, 1)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(vals))
	for i, v := range vals {
		ids[i] = v[0]
	}
	return ids, nil
}

// ValidateSchema checks that fields contains "id" and that the header row
// holds exactly the same set of names.
func (t *Table) ValidateSchema(ctx context.Context, fields Fields) error {
	s, err := t.open(ctx)
	if err != nil {
		return err
	}
	_, err = t.validate(ctx, s, fields)
	return err
}

func (t *Table) validate(ctx context.Context, s grid.Sheet, fields Fields) ([]string, error) {
	if !fields.Has(IDField) {
		return nil, fmt.Errorf("%w: field set for %s is missing %q", ErrSchemaMismatch, t.sheet, IDField)
	}
	hdr, err := headers(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("store: %s headers: %w", t.sheet, err)
	}
	if len(hdr) != len(fields) {
		return nil, fmt.Errorf("%w: sheet %s has %d columns, want %d (%s)",
			ErrSchemaMismatch, t.sheet, len(hdr), len(fields), strings.Join(sorted(fields), ", "))
	}
	for _, h := range hdr {
		if !fields.Has(h) {
			return nil, fmt.Errorf("%w: sheet %s has unexpected column %q", ErrSchemaMismatch, t.sheet, h)
		}
	}
	for _, f := range fields {
		if indexOf(hdr, f) < 0 {
			return nil, fmt.Errorf("%w: sheet %s is missing column %q", ErrSchemaMismatch, t.sheet, f)
		}
	}
	return hdr, nil
}

// ReadAll returns one record per non-blank data row, in sheet order.
func (t *Table) ReadAll(ctx context.Context, fields Fields) ([]Record, error) {
	s, err := t.open(ctx)
	if err != nil {
		return nil, err
	}
	hdr, err := t.validate(ctx, s, fields)
	if err != nil {
		return nil, err
	}

	data, err := grid.DataRange(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("store: %s read: %w", t.sheet, err)
	}
	if len(data) <= headerRow {
		return nil, nil
	}

	records := make([]Record, 0, len(data)-headerRow)
	for _, row := range data[headerRow:] {
		if blank(row) {
			continue
		}
		rec := make(Record, len(hdr))
		for i, h := range hdr {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Insert assigns rec a new id (replacing any caller value), inserts a row
// directly below the header and writes every present field as text.
// rec is updated in place and also returned.
func (t *Table) Insert(ctx context.Context, rec Record, fields Fields) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.open(ctx)
	if err != nil {
		return nil, err
	}
	hdr, err := t.validate(ctx, s, fields)
	if err != nil {
		return nil, err
	}

	id, err := t.newID(ctx, s, hdr)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = Record{}
	}
	rec[IDField] = id

	const newRow = headerRow + 1
	if err := s.InsertRowBefore(ctx, newRow); err != nil {
		return nil, fmt.Errorf("store: %s insert: %w", t.sheet, err)
	}
	if err := writeRow(ctx, s, newRow, hdr, rec); err != nil {
		return nil, fmt.Errorf("store: %s insert: %w", t.sheet, err)
	}
	return rec, nil
}

// newID draws ids until one is not already in the id column. Generators
// with a small space per time window (digest) collide under bulk inserts.
func (t *Table) newID(ctx context.Context, s grid.Sheet, hdr []string) (string, error) {
	existing, err := allIDs(ctx, s, hdr)
	if err != nil {
		return "", fmt.Errorf("store: %s ids: %w", t.sheet, err)
	}
	taken := make(map[string]struct{}, len(existing))
	for _, id := range existing[min(headerRow, len(existing)):] {
		taken[id] = struct{}{}
	}

	for range MaxIDAttempts {
		id, err := t.ids.Generate(t.sheet)
		if err != nil {
			return "", fmt.Errorf("store: %s generate id: %w", t.sheet, err)
		}
		if _, dup := taken[id]; !dup {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %s after %d attempts", ErrIDExhausted, t.sheet, MaxIDAttempts)
}

// UpdateByID overwrites the present fields of the row whose id equals
// rec["id"]. It reports false when no row matches.
func (t *Table) UpdateByID(ctx context.Context, rec Record, fields Fields) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, hdr, row, err := t.locate(ctx, rec, fields)
	if err != nil || row == 0 {
		return false, err
	}
	if err := writeRow(ctx, s, row, hdr, rec); err != nil {
		return false, fmt.Errorf("store: %s update: %w", t.sheet, err)
	}
	return true, nil
}

// DeleteByID removes the row whose id equals rec["id"], shifting later rows
// up. It reports false when no row matches.
func (t *Table) DeleteByID(ctx context.Context, rec Record, fields Fields) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, _, row, err := t.locate(ctx, rec, fields)
	if err != nil || row == 0 {
		return false, err
	}
	if err := s.DeleteRow(ctx, row); err != nil {
		return false, fmt.Errorf("store: %s delete: %w", t.sheet, err)
	}
	return true, nil
}

// locate validates the schema and scans the id column for rec's id.
// row is 0 when nothing matches. The header row never matches.
func (t *Table) locate(ctx context.Context, rec Record, fields Fields) (grid.Sheet, []string, int, error) {
	s, err := t.open(ctx)
	if err != nil {
		return nil, nil, 0, err
	}
	hdr, err := t.validate(ctx, s, fields)
	if err != nil {
		return nil, nil, 0, err
	}

	id := rec.ID()
	if id == "" {
		return s, hdr, 0, nil
	}
	ids, err := allIDs(ctx, s, hdr)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("store: %s ids: %w", t.sheet, err)
	}
	for i := headerRow; i < len(ids); i++ {
		if ids[i] == id {
			return s, hdr, i + 1, nil
		}
	}
	return s, hdr, 0, nil
}

func writeRow(ctx context.Context, s grid.Sheet, row int, hdr []string, rec Record) error {
	for i, h := range hdr {
		v, ok := rec[h]
		if !ok {
			continue
		}
		if err := s.SetText(ctx, row, i+1, v); err != nil {
			return err
		}
	}
	return nil
}

func blank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func indexOf(hdr []string, name string) int {
	for i, h := range hdr {
		if h == name {
			return i
		}
	}
	return -1
}

func sorted(f Fields) []string {
	out := append([]string(nil), f...)
	sort.Strings(out)
	return out
}
