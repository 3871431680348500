// Package user implements user management on top of the record store:
// the User entity, its repository bound to the users sheet, and the service
// holding the business rules for CRUD and authentication.
package user

import "github.com/JonMunkholm/sheetusers/internal/store"

// Field names; these are also the users sheet headers.
const (
	FieldID        = "id"
	FieldDocument  = "document"
	FieldName      = "name"
	FieldPassword  = "password"
	FieldRole      = "role"
	FieldLastLogin = "lastLogin"
	FieldActive    = "active"
)

// ActiveFlag marks an enabled account.
const ActiveFlag = "1"

// Fields is the User field set, in declaration order.
var Fields = store.Fields{
	FieldID, FieldDocument, FieldName, FieldPassword, FieldRole, FieldLastLogin, FieldActive,
}

// User is one row of the users sheet. A nil field is "not set": it is not
// written and does not overwrite the stored cell.
type User struct {
	ID        *string
	Document  *string
	Name      *string
	Password  *string
	Role      *string
	LastLogin *string
	Active    *string
}

// NewUserForCreate sets the fields a new account starts with. The account is
// active; id is assigned by the store and lastLogin stays unset.
func NewUserForCreate(document, name, password, role string) *User {
	return &User{
		Document: ptr(document),
		Name:     ptr(name),
		Password: ptr(password),
		Role:     ptr(role),
		Active:   ptr(ActiveFlag),
	}
}

// NewUserForUpdate sets every field except lastLogin.
func NewUserForUpdate(id, document, name, password, role, active string) *User {
	return &User{
		ID:       ptr(id),
		Document: ptr(document),
		Name:     ptr(name),
		Password: ptr(password),
		Role:     ptr(role),
		Active:   ptr(active),
	}
}

// NewUserForLastLogin sets only id and lastLogin.
func NewUserForLastLogin(id, lastLogin string) *User {
	return &User{ID: ptr(id), LastLogin: ptr(lastLogin)}
}

// FromRecord builds a User from a stored record. Keys missing from rec stay nil.
func FromRecord(rec store.Record) *User {
	u := &User{}
	for _, f := range u.fields() {
		if v, ok := rec[f.name]; ok {
			*f.val = ptr(v)
		}
	}
	return u
}

// Record converts u to a store record, omitting nil fields.
func (u *User) Record() store.Record {
	rec := make(store.Record, len(Fields))
	for _, f := range u.fields() {
		if *f.val != nil {
			rec[f.name] = **f.val
		}
	}
	return rec
}

// EmptyField returns the first field that is set to "" in declaration order.
func (u *User) EmptyField() (string, bool) {
	for _, f := range u.fields() {
		if p := *f.val; p != nil && *p == "" {
			return f.name, true
		}
	}
	return "", false
}

// IsActive reports whether the account flag equals ActiveFlag.
func (u *User) IsActive() bool { return value(u.Active) == ActiveFlag }

// Get returns a field value, "" when unset.
func (u *User) Get(field string) string {
	for _, f := range u.fields() {
		if f.name == field {
			return value(*f.val)
		}
	}
	return ""
}

type namedField struct {
	name string
	val  **string
}

func (u *User) fields() []namedField {
	return []namedField{
		{FieldID, &u.ID},
		{FieldDocument, &u.Document},
		{FieldName, &u.Name},
		{FieldPassword, &u.Password},
		{FieldRole, &u.Role},
		{FieldLastLogin, &u.LastLogin},
		{FieldActive, &u.Active},
	}
}

func ptr(s string) *string { return &s }

func value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
