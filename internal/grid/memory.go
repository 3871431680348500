package grid

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBook is a Book held entirely in memory. It is safe for concurrent use.
type MemoryBook struct {
	id     string
	mu     sync.RWMutex
	sheets map[string]*memorySheet
}

// NewMemoryBook creates an empty in-memory book.
func NewMemoryBook(id string) *MemoryBook {
	return &MemoryBook{
		id:     id,
		sheets: make(map[string]*memorySheet),
	}
}

func (b *MemoryBook) ID() string { return b.id }

func (b *MemoryBook) Sheet(_ context.Context, name string) (Sheet, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrSheetNotFound, b.id, name)
	}
	return s, nil
}

func (b *MemoryBook) CreateSheet(_ context.Context, name string, headers []string) (Sheet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sheets[name]; ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrSheetExists, b.id, name)
	}

	s := &memorySheet{name: name}
	if len(headers) > 0 {
		s.rows = [][]string{append([]string(nil), headers...)}
	}
	b.sheets[name] = s
	return s, nil
}

// memorySheet stores rows as ragged slices; unwritten cells read as "".
type memorySheet struct {
	name string
	mu   sync.RWMutex
	rows [][]string
}

func (s *memorySheet) Name() string { return s.name }

func (s *memorySheet) LastRow(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for r := len(s.rows) - 1; r >= 0; r-- {
		for _, v := range s.rows[r] {
			if v != "" {
				return r + 1, nil
			}
		}
	}
	return 0, nil
}

func (s *memorySheet) LastColumn(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last := 0
	for _, row := range s.rows {
		for c := len(row) - 1; c >= last; c-- {
			if row[c] != "" {
				last = c + 1
				break
			}
		}
	}
	return last, nil
}

func (s *memorySheet) Values(_ context.Context, row, col, numRows, numCols int) ([][]string, error) {
	if err := checkBlock(row, col, numRows, numCols); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([][]string, numRows)
	for i := range out {
		out[i] = make([]string, numCols)
		r := row - 1 + i
		if r >= len(s.rows) {
			continue
		}
		for j := range out[i] {
			if c := col - 1 + j; c < len(s.rows[r]) {
				out[i][j] = s.rows[r][c]
			}
		}
	}
	return out, nil
}

func (s *memorySheet) SetText(_ context.Context, row, col int, value string) error {
	if err := checkCell(row, col); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.rows) < row {
		s.rows = append(s.rows, nil)
	}
	cells := s.rows[row-1]
	for len(cells) < col {
		cells = append(cells, "")
	}
	cells[col-1] = value
	s.rows[row-1] = cells
	return nil
}

func (s *memorySheet) InsertRowBefore(_ context.Context, row int) error {
	if err := checkRow(row); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.rows) < row-1 {
		s.rows = append(s.rows, nil)
	}
	s.rows = append(s.rows, nil)
	copy(s.rows[row:], s.rows[row-1:])
	s.rows[row-1] = nil
	return nil
}

func (s *memorySheet) DeleteRow(_ context.Context, row int) error {
	if err := checkRow(row); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if row > len(s.rows) {
		return nil
	}
	s.rows = append(s.rows[:row-1], s.rows[row:]...)
	return nil
}
