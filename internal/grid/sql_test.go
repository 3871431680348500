package grid

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockBook(t *testing.T, dialect Dialect) (*SQLBook, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLBook(db, dialect, "b1"), mock
}

func TestSQLBook_PlaceholderRewrite(t *testing.T) {
	pg := &SQLBook{dialect: DialectPostgres}
	lite := &SQLBook{dialect: DialectSQLite}

	query := `SELECT 1 FROM grid_sheets WHERE book = ? AND name = ?`
	assert.Equal(t, `SELECT 1 FROM grid_sheets WHERE book = $1 AND name = $2`, pg.q(query))
	assert.Equal(t, query, lite.q(query))
}

func TestSQLBook_SheetNotFound(t *testing.T) {
	b, mock := newMockBook(t, DialectPostgres)

	mock.ExpectQuery(`SELECT 1 FROM grid_sheets WHERE book = \$1 AND name = \$2`).
		WithArgs("b1", "users").
		WillReturnError(sql.ErrNoRows)

	_, err := b.Sheet(context.Background(), "users")
	assert.ErrorIs(t, err, ErrSheetNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBook_SheetBackendError(t *testing.T) {
	b, mock := newMockBook(t, DialectSQLite)

	mock.ExpectQuery(`SELECT 1 FROM grid_sheets`).
		WillReturnError(errors.New("connection refused"))

	_, err := b.Sheet(context.Background(), "users")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSheetNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSQLSheet_DeleteRowRollsBackOnShiftFailure(t *testing.T) {
	b, mock := newMockBook(t, DialectSQLite)
	s := &sqlSheet{book: b, name: "users"}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM grid_cells WHERE book = \? AND sheet = \? AND row_num = \?`).
		WithArgs("b1", "users", 2).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`UPDATE grid_cells SET row_num = row_num - 1`).
		WithArgs("b1", "users", 2).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := s.DeleteRow(context.Background(), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete row 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSheet_SetTextEmptyOnlyDeletes(t *testing.T) {
	b, mock := newMockBook(t, DialectSQLite)
	s := &sqlSheet{book: b, name: "users"}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM grid_cells`).
		WithArgs("b1", "users", 4, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SetText(context.Background(), 4, 2, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_WrapsGooseError(t *testing.T) {
	prev := gooseUpContext
	t.Cleanup(func() { gooseUpContext = prev })
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	err := Migrate(context.Background(), nil, DialectSQLite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid: migrate: boom")
}

func TestMigrate_UnknownDialect(t *testing.T) {
	err := Migrate(context.Background(), nil, Dialect("oracle"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
