package grid

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openSQLiteBook returns a migrated SQL book on a private in-memory database.
func openSQLiteBook(t *testing.T) *SQLBook {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := OpenSQLite(context.Background(), fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(context.Background(), db, DialectSQLite))
	return NewSQLBook(db, DialectSQLite, "test-book")
}

// backends runs fn against every Book implementation.
func backends(t *testing.T, fn func(t *testing.T, b Book)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryBook("test-book")) })
	t.Run("sqlite", func(t *testing.T) { fn(t, openSQLiteBook(t)) })
}

func TestBook_SheetLifecycle(t *testing.T) {
	backends(t, func(t *testing.T, b Book) {
		ctx := context.Background()

		_, err := b.Sheet(ctx, "users")
		assert.ErrorIs(t, err, ErrSheetNotFound)

		s, err := b.CreateSheet(ctx, "users", []string{"id", "name"})
		require.NoError(t, err)
		assert.Equal(t, "users", s.Name())

		_, err = b.CreateSheet(ctx, "users", []string{"id"})
		assert.ErrorIs(t, err, ErrSheetExists)

		again, err := b.Sheet(ctx, "users")
		require.NoError(t, err)
		got, err := again.Values(ctx, 1, 1, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"id", "name"}}, got)
	})
}

func TestSheet_LastRowAndColumn(t *testing.T) {
	backends(t, func(t *testing.T, b Book) {
		ctx := context.Background()
		s, err := b.CreateSheet(ctx, "grid", nil)
		require.NoError(t, err)

		rows, _ := s.LastRow(ctx)
		cols, _ := s.LastColumn(ctx)
		assert.Equal(t, 0, rows)
		assert.Equal(t, 0, cols)

		require.NoError(t, s.SetText(ctx, 3, 2, "x"))
		require.NoError(t, s.SetText(ctx, 1, 4, "h"))

		rows, err = s.LastRow(ctx)
		require.NoError(t, err)
		cols, err = s.LastColumn(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, rows)
		assert.Equal(t, 4, cols)

		// Clearing the only cell in row 3 shrinks the used range.
		require.NoError(t, s.SetText(ctx, 3, 2, ""))
		rows, err = s.LastRow(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, rows)
	})
}

func TestSheet_ValuesPadsMissingCells(t *testing.T) {
	backends(t, func(t *testing.T, b Book) {
		ctx := context.Background()
		s, err := b.CreateSheet(ctx, "grid", []string{"a", "b", "c"})
		require.NoError(t, err)
		require.NoError(t, s.SetText(ctx, 2, 3, "z"))

		got, err := s.Values(ctx, 1, 1, 3, 3)
		require.NoError(t, err)
		assert.Equal(t, [][]string{
			{"a", "b", "c"},
			{"", "", "z"},
			{"", "", ""},
		}, got)

		sub, err := s.Values(ctx, 2, 2, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"", "z"}}, sub)
	})
}

func TestSheet_SetTextKeepsTextVerbatim(t *testing.T) {
	backends(t, func(t *testing.T, b Book) {
		ctx := context.Background()
		s, err := b.CreateSheet(ctx, "grid", nil)
		require.NoError(t, err)

		for i, v := range []string{"007", "1e3", "2024-01-02", " padded "} {
			require.NoError(t, s.SetText(ctx, i+1, 1, v))
			got, err := s.Values(ctx, i+1, 1, 1, 1)
			require.NoError(t, err)
			assert.Equal(t, v, got[0][0])
		}
	})
}

func TestSheet_InsertRowBefore(t *testing.T) {
	backends(t, func(t *testing.T, b Book) {
		ctx := context.Background()
		s, err := b.CreateSheet(ctx, "grid", []string{"id"})
		require.NoError(t, err)
		require.NoError(t, s.SetText(ctx, 2, 1, "first"))
		require.NoError(t, s.SetText(ctx, 3, 1, "second"))

		require.NoError(t, s.InsertRowBefore(ctx, 2))
		require.NoError(t, s.SetText(ctx, 2, 1, "new"))

		got, err := DataRange(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"id"}, {"new"}, {"first"}, {"second"}}, got)
	})
}

func TestSheet_DeleteRow(t *testing.T) {
	backends(t, func(t *testing.T, b Book) {
		ctx := context.Background()
		s, err := b.CreateSheet(ctx, "grid", []string{"id"})
		require.NoError(t, err)
		for i, v := range []string{"a", "b", "c"} {
			require.NoError(t, s.SetText(ctx, i+2, 1, v))
		}

		require.NoError(t, s.DeleteRow(ctx, 3))
		got, err := DataRange(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"id"}, {"a"}, {"c"}}, got)

		// Deleting past the used range is a no-op.
		require.NoError(t, s.DeleteRow(ctx, 50))
		rows, err := s.LastRow(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, rows)
	})
}

func TestSheet_InvalidRange(t *testing.T) {
	backends(t, func(t *testing.T, b Book) {
		ctx := context.Background()
		s, err := b.CreateSheet(ctx, "grid", nil)
		require.NoError(t, err)

		assert.ErrorIs(t, s.SetText(ctx, 0, 1, "x"), ErrInvalidRange)
		assert.ErrorIs(t, s.InsertRowBefore(ctx, 0), ErrInvalidRange)
		assert.ErrorIs(t, s.DeleteRow(ctx, -1), ErrInvalidRange)
		_, err = s.Values(ctx, 1, 0, 1, 1)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})
}

func TestOpenOrCreate(t *testing.T) {
	backends(t, func(t *testing.T, b Book) {
		ctx := context.Background()

		s, err := OpenOrCreate(ctx, b, "audit", []string{"id", "action"})
		require.NoError(t, err)
		require.NoError(t, s.SetText(ctx, 2, 1, "x"))

		// Second call must open the existing sheet, not recreate it.
		s, err = OpenOrCreate(ctx, b, "audit", []string{"other"})
		require.NoError(t, err)
		got, err := DataRange(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"id", "action"}, {"x", ""}}, got)
	})
}

func TestSQLBook_BooksAreIsolated(t *testing.T) {
	ctx := context.Background()
	first := openSQLiteBook(t)
	second := NewSQLBook(first.db, DialectSQLite, "other-book")

	_, err := first.CreateSheet(ctx, "users", []string{"id"})
	require.NoError(t, err)

	_, err = second.Sheet(ctx, "users")
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestDataRange_EmptySheet(t *testing.T) {
	s, err := NewMemoryBook("b").CreateSheet(context.Background(), "empty", nil)
	require.NoError(t, err)

	got, err := DataRange(context.Background(), s)
	require.NoError(t, err)
	assert.Nil(t, got)
}
