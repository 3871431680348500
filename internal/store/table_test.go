package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetusers/internal/grid"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFields = Fields{"id", "document", "name", "active"}

// sequentialIDs returns id-1, id-2, ... in call order.
func sequentialIDs() IDGenerator {
	n := 0
	return IDGeneratorFunc(func(string) (string, error) {
		n++
		return fmt.Sprintf("id-%d", n), nil
	})
}

func newTestTable(t *testing.T, headers []string) (*Table, grid.Sheet) {
	t.Helper()
	book := grid.NewMemoryBook("test")
	s, err := book.CreateSheet(context.Background(), "people", headers)
	require.NoError(t, err)
	return NewTable(book, "people", sequentialIDs()), s
}

func dump(t *testing.T, s grid.Sheet) [][]string {
	t.Helper()
	data, err := grid.DataRange(context.Background(), s)
	require.NoError(t, err)
	return data
}

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		fields  Fields
		wantErr bool
	}{
		{"exact order", []string{"id", "document", "name", "active"}, testFields, false},
		{"different order", []string{"name", "active", "id", "document"}, testFields, false},
		{"fields missing id", []string{"document", "name"}, Fields{"document", "name"}, true},
		{"header missing id", []string{"key", "document", "name", "active"}, testFields, true},
		{"header has extra column", []string{"id", "document", "name", "active", "email"}, testFields, true},
		{"header missing column", []string{"id", "document", "name"}, testFields, true},
		{"duplicate header hides missing column", []string{"id", "document", "name", "name"}, testFields, true},
		{"empty sheet", nil, testFields, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, _ := newTestTable(t, tt.headers)

			err := tbl.ValidateSchema(context.Background(), tt.fields)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSchemaMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOperations_FailOnSchemaMismatchBeforeWriting(t *testing.T) {
	ctx := context.Background()
	tbl, s := newTestTable(t, []string{"id", "document"})
	before := dump(t, s)

	_, err := tbl.ReadAll(ctx, testFields)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = tbl.Insert(ctx, Record{"document": "1"}, testFields)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = tbl.UpdateByID(ctx, Record{"id": "x"}, testFields)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = tbl.DeleteByID(ctx, Record{"id": "x"}, testFields)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	assert.Equal(t, before, dump(t, s))
}

func TestTable_MissingSheet(t *testing.T) {
	tbl := NewTable(grid.NewMemoryBook("b"), "ghost", sequentialIDs())

	_, err := tbl.ReadAll(context.Background(), testFields)
	assert.ErrorIs(t, err, grid.ErrSheetNotFound)
}

func TestInsert_PlacesRowBelowHeaderWithNewID(t *testing.T) {
	ctx := context.Background()
	tbl, s := newTestTable(t, []string{"id", "document", "name", "active"})

	first, err := tbl.Insert(ctx, Record{"id": "caller-id", "document": "111", "name": "ana", "active": "1"}, testFields)
	require.NoError(t, err)
	assert.Equal(t, "id-1", first.ID())

	// Absent fields are not written.
	_, err = tbl.Insert(ctx, Record{"document": "222"}, testFields)
	require.NoError(t, err)

	want := [][]string{
		{"id", "document", "name", "active"},
		{"id-2", "222", "", ""},
		{"id-1", "111", "ana", "1"},
	}
	if diff := cmp.Diff(want, dump(t, s)); diff != "" {
		t.Errorf("sheet mismatch (-want +got):\n%s", diff)
	}
}

func TestInsert_NilRecord(t *testing.T) {
	tbl, _ := newTestTable(t, []string{"id", "document", "name", "active"})

	rec, err := tbl.Insert(context.Background(), nil, testFields)
	require.NoError(t, err)
	assert.Equal(t, Record{"id": "id-1"}, rec)
}

func TestInsert_IDGeneratorFailure(t *testing.T) {
	book := grid.NewMemoryBook("b")
	s, err := book.CreateSheet(context.Background(), "people", []string(testFields))
	require.NoError(t, err)
	tbl := NewTable(book, "people", IDGeneratorFunc(func(string) (string, error) {
		return "", fmt.Errorf("entropy exhausted")
	}))

	_, err = tbl.Insert(context.Background(), Record{"document": "1"}, testFields)
	require.Error(t, err)
	assert.Equal(t, [][]string{{"id", "document", "name", "active"}}, dump(t, s))
}

func TestReadAll_SkipsBlankRowsAndMapsByHeader(t *testing.T) {
	ctx := context.Background()
	tbl, s := newTestTable(t, []string{"name", "id", "active", "document"})

	require.NoError(t, s.SetText(ctx, 2, 1, "ana"))
	require.NoError(t, s.SetText(ctx, 2, 2, "a1"))
	// row 3 left blank
	require.NoError(t, s.SetText(ctx, 4, 2, "b2"))
	require.NoError(t, s.SetText(ctx, 4, 4, "222"))

	got, err := tbl.ReadAll(ctx, testFields)
	require.NoError(t, err)

	want := []Record{
		{"name": "ana", "id": "a1", "active": "", "document": ""},
		{"name": "", "id": "b2", "active": "", "document": "222"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestReadAll_HeaderOnly(t *testing.T) {
	tbl, _ := newTestTable(t, []string(testFields))

	got, err := tbl.ReadAll(context.Background(), testFields)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdateByID_OverwritesOnlyPresentFields(t *testing.T) {
	ctx := context.Background()
	tbl, _ := newTestTable(t, []string(testFields))

	rec, err := tbl.Insert(ctx, Record{"document": "111", "name": "ana", "active": "1"}, testFields)
	require.NoError(t, err)

	ok, err := tbl.UpdateByID(ctx, Record{"id": rec.ID(), "name": "ana maría"}, testFields)
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := tbl.ReadAll(ctx, testFields)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, Record{"id": rec.ID(), "document": "111", "name": "ana maría", "active": "1"}, all[0])
}

func TestUpdateAndDelete_NotFoundLeavesTableUnchanged(t *testing.T) {
	ctx := context.Background()
	tbl, s := newTestTable(t, []string(testFields))
	_, err := tbl.Insert(ctx, Record{"document": "111"}, testFields)
	require.NoError(t, err)
	before := dump(t, s)

	for _, id := range []string{"missing", "", IDField} {
		ok, err := tbl.UpdateByID(ctx, Record{"id": id, "document": "999"}, testFields)
		require.NoError(t, err)
		assert.False(t, ok, "update %q", id)

		ok, err = tbl.DeleteByID(ctx, Record{"id": id}, testFields)
		require.NoError(t, err)
		assert.False(t, ok, "delete %q", id)
	}

	assert.Equal(t, before, dump(t, s))
}

func TestDeleteByID_ShiftsRowsUp(t *testing.T) {
	ctx := context.Background()
	tbl, s := newTestTable(t, []string(testFields))
	for _, doc := range []string{"1", "2", "3"} {
		_, err := tbl.Insert(ctx, Record{"document": doc}, testFields)
		require.NoError(t, err)
	}

	ok, err := tbl.DeleteByID(ctx, Record{"id": "id-2"}, testFields)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, [][]string{
		{"id", "document", "name", "active"},
		{"id-3", "3", "", ""},
		{"id-1", "1", "", ""},
	}, dump(t, s))
}

func TestAllIDs_IncludesHeader(t *testing.T) {
	ctx := context.Background()
	tbl, _ := newTestTable(t, []string{"document", "id", "name", "active"})
	_, err := tbl.Insert(ctx, Record{"document": "1"}, testFields)
	require.NoError(t, err)

	ids, err := tbl.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "id-1"}, ids)

	hdr, err := tbl.Headers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"document", "id", "name", "active"}, hdr)
}

func TestSQLBackedTable(t *testing.T) {
	ctx := context.Background()
	db, err := grid.OpenSQLite(ctx, "file:store_sql_table?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, grid.Migrate(ctx, db, grid.DialectSQLite))

	book := grid.NewSQLBook(db, grid.DialectSQLite, "main")
	_, err = book.CreateSheet(ctx, "people", []string(testFields))
	require.NoError(t, err)
	tbl := NewTable(book, "people", sequentialIDs())

	rec, err := tbl.Insert(ctx, Record{"document": "007", "name": "bond", "active": "1"}, testFields)
	require.NoError(t, err)

	ok, err := tbl.UpdateByID(ctx, Record{"id": rec.ID(), "active": "0"}, testFields)
	require.NoError(t, err)
	require.True(t, ok)

	all, err := tbl.ReadAll(ctx, testFields)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "007", all[0]["document"])
	assert.Equal(t, "0", all[0]["active"])

	ok, err = tbl.DeleteByID(ctx, rec, testFields)
	require.NoError(t, err)
	assert.True(t, ok)

	all, err = tbl.ReadAll(ctx, testFields)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInsert_RedrawsCollidingDigestID(t *testing.T) {
	ctx := context.Background()
	book := grid.NewMemoryBook("b")
	s, err := book.CreateSheet(ctx, "people", []string(testFields))
	require.NoError(t, err)

	draws := []int{7, 7, 8}
	var calls int
	gen := &DigestGenerator{
		Now:      func() time.Time { return time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC) },
		Location: time.UTC,
		Intn: func(int) int {
			n := draws[calls]
			calls++
			return n
		},
	}
	tbl := NewTable(book, "people", gen)

	first, err := tbl.Insert(ctx, Record{"document": "1"}, testFields)
	require.NoError(t, err)
	second, err := tbl.Insert(ctx, Record{"document": "2"}, testFields)
	require.NoError(t, err)

	assert.Equal(t, 3, calls, "second insert should draw again after a collision")
	assert.NotEqual(t, first.ID(), second.ID())

	ids, err := tbl.AllIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id", first.ID(), second.ID()}, ids)
	assert.Len(t, dump(t, s), 3)
}

func TestInsert_IDSpaceExhausted(t *testing.T) {
	ctx := context.Background()
	book := grid.NewMemoryBook("b")
	s, err := book.CreateSheet(ctx, "people", []string(testFields))
	require.NoError(t, err)
	tbl := NewTable(book, "people", IDGeneratorFunc(func(string) (string, error) { return "same", nil }))

	_, err = tbl.Insert(ctx, Record{"document": "1"}, testFields)
	require.NoError(t, err)

	_, err = tbl.Insert(ctx, Record{"document": "2"}, testFields)
	assert.ErrorIs(t, err, ErrIDExhausted)
	assert.Len(t, dump(t, s), 2, "no row is written when no id is free")
}

func TestInsert_BulkDigestIDsStayUnique(t *testing.T) {
	ctx := context.Background()
	book := grid.NewMemoryBook("b")
	_, err := book.CreateSheet(ctx, "people", []string(testFields))
	require.NoError(t, err)

	fixed := time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)
	gen := &DigestGenerator{Now: func() time.Time { return fixed }, Location: time.UTC}
	tbl := NewTable(book, "people", gen)

	seen := make(map[string]bool)
	for i := 0; i < 300; i++ {
		rec, err := tbl.Insert(ctx, Record{"document": fmt.Sprint(i)}, testFields)
		require.NoError(t, err)
		require.False(t, seen[rec.ID()], "duplicate id %s at insert %d", rec.ID(), i)
		seen[rec.ID()] = true
	}
}
