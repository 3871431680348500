package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/sheetusers/internal/store"
)

// ErrTypeMismatch means a repository write was handed a nil user.
var ErrTypeMismatch = errors.New("user: value is not a user")

// Repository binds the record store to the users sheet.
type Repository struct {
	table *store.Table
}

// NewRepository wraps a table whose sheet holds users.
func NewRepository(table *store.Table) *Repository {
	return &Repository{table: table}
}

func checkUser(u *User) error {
	if u == nil {
		return fmt.Errorf("%w: nil", ErrTypeMismatch)
	}
	return nil
}

// GetAll returns every user in sheet order.
func (r *Repository) GetAll(ctx context.Context) ([]*User, error) {
	records, err := r.table.ReadAll(ctx, Fields)
	if err != nil {
		return nil, err
	}
	users := make([]*User, len(records))
	for i, rec := range records {
		users[i] = FromRecord(rec)
	}
	return users, nil
}

// FindByID returns the user with id, or nil when absent.
func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.find(ctx, func(u *User) bool { return value(u.ID) == id })
}

// FindByDocument returns the first user with document, or nil when absent.
func (r *Repository) FindByDocument(ctx context.Context, document string) (*User, error) {
	return r.find(ctx, func(u *User) bool { return value(u.Document) == document })
}

func (r *Repository) find(ctx context.Context, match func(*User) bool) (*User, error) {
	users, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if match(u) {
			return u, nil
		}
	}
	return nil, nil
}

// Save inserts u and stores the assigned id back into u.ID.
func (r *Repository) Save(ctx context.Context, u *User) (bool, error) {
	if err := checkUser(u); err != nil {
		return false, err
	}
	rec, err := r.table.Insert(ctx, u.Record(), Fields)
	if err != nil {
		return false, err
	}
	u.ID = ptr(rec.ID())
	return true, nil
}

// Update overwrites the set fields of the row matching u.ID.
func (r *Repository) Update(ctx context.Context, u *User) (bool, error) {
	if err := checkUser(u); err != nil {
		return false, err
	}
	return r.table.UpdateByID(ctx, u.Record(), Fields)
}

// Delete removes the row matching u.ID.
func (r *Repository) Delete(ctx context.Context, u *User) (bool, error) {
	if err := checkUser(u); err != nil {
		return false, err
	}
	return r.table.DeleteByID(ctx, u.Record(), Fields)
}
