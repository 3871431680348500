package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/sheetusers/internal/alert"
	"github.com/JonMunkholm/sheetusers/internal/audit"
	"github.com/JonMunkholm/sheetusers/internal/grid"
	"github.com/JonMunkholm/sheetusers/internal/logging"
	"github.com/JonMunkholm/sheetusers/internal/store"
	"github.com/JonMunkholm/sheetusers/internal/textutil"
)

// Messages shown to the caller for business failures.
const (
	MsgEmptyField        = "Ingrese un valor en el campo : %s"
	MsgDuplicateDocument = "Existe usuario con documento : %s"
	MsgNotFound          = "No existe el registro : %s"
	MsgEmptyCredentials  = "Los campos no pueden estar vacios!"
	MsgBadCredentials    = "Credenciales no validas!"
)

// Store is the persistence the service runs on. *Repository implements it.
type Store interface {
	GetAll(ctx context.Context) ([]*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByDocument(ctx context.Context, document string) (*User, error)
	Save(ctx context.Context, u *User) (bool, error)
	Update(ctx context.Context, u *User) (bool, error)
	Delete(ctx context.Context, u *User) (bool, error)
}

// AuditRecorder receives user events. *audit.Logger implements it.
type AuditRecorder interface {
	Log(ctx context.Context, e audit.Entry) (*audit.Entry, error)
}

// Row is one display line of ListAll:
// document, name, role, lastLogin, active ("Yes"/"No"), options.
type Row []string

// Profile is a user without the password.
type Profile struct {
	ID       string `json:"id"`
	Document string `json:"document"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Active   string `json:"active"`
}

// Session is the payload of a successful Authenticate. LastLogin is the
// value stored before this login refreshed it.
type Session struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	LastLogin string     `json:"lastLogin"`
	Menu      []MenuItem `json:"menu"`
}

// Service holds the user business rules. Mutations report their outcome as
// an alert.Result; the error return is non-nil only for contract violations
// (schema mismatch, missing sheet, nil user) that the caller must surface.
type Service struct {
	store     Store
	hasher    PasswordHasher
	clock     textutil.Clock
	loc       *time.Location
	menus     MenuResolver
	audit     AuditRecorder
	serialize bool

	// mu guards the check-then-write sequences of Save, Update and Delete.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

func WithHasher(h PasswordHasher) Option     { return func(s *Service) { s.hasher = h } }
func WithClock(c textutil.Clock) Option      { return func(s *Service) { s.clock = c } }
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }
func WithMenus(m MenuResolver) Option        { return func(s *Service) { s.menus = m } }
func WithAudit(a AuditRecorder) Option       { return func(s *Service) { s.audit = a } }

// WithSerializedWrites toggles the service-wide write lock (default on).
func WithSerializedWrites(on bool) Option { return func(s *Service) { s.serialize = on } }

// NewService builds a service over st. Defaults: bcrypt hashing, system
// clock, UTC, DefaultMenus, no audit, serialized writes.
func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store:     st,
		hasher:    BcryptHasher{},
		clock:     textutil.SystemClock,
		loc:       time.UTC,
		menus:     DefaultMenus(),
		serialize: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) lock() func() {
	if !s.serialize {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// ListAll returns one display row per user in sheet order.
func (s *Service) ListAll(ctx context.Context) ([]Row, error) {
	users, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	rows := make([]Row, len(users))
	for i, u := range users {
		active := "No"
		if u.IsActive() {
			active = "Yes"
		}
		rows[i] = Row{
			u.Get(FieldDocument),
			textutil.Capitalize(u.Get(FieldName)),
			textutil.Capitalize(u.Get(FieldRole)),
			u.Get(FieldLastLogin),
			active,
			"",
		}
	}
	return rows, nil
}

// FindByID returns the profile of id, or nil when no user has it.
func (s *Service) FindByID(ctx context.Context, id string) (*Profile, error) {
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("users: find %s: %w", id, err)
	}
	if u == nil {
		return nil, nil
	}
	return &Profile{
		ID:       u.Get(FieldID),
		Document: u.Get(FieldDocument),
		Name:     u.Get(FieldName),
		Role:     u.Get(FieldRole),
		Active:   u.Get(FieldActive),
	}, nil
}

// Save creates an active user. On success the result data is the new id.
func (s *Service) Save(ctx context.Context, document, name, password, role string) (alert.Result, error) {
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return s.fail(ctx, "save", err)
	}
	u := NewUserForCreate(document, strings.ToLower(name), hashed, strings.ToLower(role))
	if field, empty := u.EmptyField(); empty {
		return alert.Warning(fmt.Sprintf(MsgEmptyField, field)), nil
	}

	defer s.lock()()

	existing, err := s.store.FindByDocument(ctx, document)
	if err != nil {
		return s.fail(ctx, "save", err)
	}
	if existing != nil {
		return alert.Warning(fmt.Sprintf(MsgDuplicateDocument, document)), nil
	}

	ok, err := s.store.Save(ctx, u)
	if err != nil {
		return s.fail(ctx, "save", err)
	}
	if !ok {
		return alert.Warning(), nil
	}

	id := value(u.ID)
	s.record(ctx, audit.ActionUserCreate, document, id)
	return alert.Success().WithData(id), nil
}

// AdminRole is the role that DefaultMenus and EnsureAdmin treat as administrator.
const AdminRole = "admin"

// EnsureAdmin creates an admin account when no user exists yet and reports
// whether it did. A non-empty sheet is left alone.
func (s *Service) EnsureAdmin(ctx context.Context, document, name, password string) (bool, error) {
	users, err := s.store.GetAll(ctx)
	if err != nil {
		return false, fmt.Errorf("users: seed admin: %w", err)
	}
	if len(users) > 0 {
		return false, nil
	}

	res, err := s.Save(ctx, document, name, password, AdminRole)
	if err != nil {
		return false, err
	}
	if !res.OK() {
		return false, fmt.Errorf("users: seed admin: %s", res.Message)
	}
	logging.FromContext(ctx).Infow("seeded admin account", "document", document)
	return true, nil
}

// Update rewrites every field of id except lastLogin.
func (s *Service) Update(ctx context.Context, id, document, name, password, role, active string) (alert.Result, error) {
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return s.fail(ctx, "update", err)
	}
	u := NewUserForUpdate(id, document, strings.ToLower(name), hashed, strings.ToLower(role), active)
	if field, empty := u.EmptyField(); empty {
		return alert.Warning(fmt.Sprintf(MsgEmptyField, field)), nil
	}

	defer s.lock()()

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return s.fail(ctx, "update", err)
	}
	if current == nil {
		return alert.Warning(fmt.Sprintf(MsgNotFound, id)), nil
	}

	owner, err := s.store.FindByDocument(ctx, document)
	if err != nil {
		return s.fail(ctx, "update", err)
	}
	if owner != nil && value(owner.ID) != id {
		return alert.Warning(fmt.Sprintf(MsgDuplicateDocument, document)), nil
	}

	ok, err := s.store.Update(ctx, u)
	if err != nil {
		return s.fail(ctx, "update", err)
	}
	if !ok {
		return alert.Warning(), nil
	}

	s.record(ctx, audit.ActionUserUpdate, document, id)
	return alert.Success(), nil
}

// UpdateLastLogin stores ts as the lastLogin of id and reports whether a row
// was written. Unlike the other mutations it returns the raw outcome.
func (s *Service) UpdateLastLogin(ctx context.Context, id, ts string) (bool, error) {
	ok, err := s.store.Update(ctx, NewUserForLastLogin(id, ts))
	if err != nil {
		return false, fmt.Errorf("users: last login %s: %w", id, err)
	}
	return ok, nil
}

// Delete removes the user with id.
func (s *Service) Delete(ctx context.Context, id string) (alert.Result, error) {
	defer s.lock()()

	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return s.fail(ctx, "delete", err)
	}
	if u == nil {
		return alert.Warning(), nil
	}

	ok, err := s.store.Delete(ctx, u)
	if err != nil {
		return s.fail(ctx, "delete", err)
	}
	if !ok {
		return alert.Warning(), nil
	}

	s.record(ctx, audit.ActionUserDelete, u.Get(FieldDocument), id)
	return alert.Success(), nil
}

// Authenticate checks document and password against the stored user. On
// success lastLogin is refreshed and the result carries a Session.
//
// Only a request with both values empty is rejected up front; a single empty
// value falls through to the credential check.
func (s *Service) Authenticate(ctx context.Context, document, password string) (alert.Result, error) {
	if document == "" && password == "" {
		return alert.Warning(MsgEmptyCredentials), nil
	}

	u, err := s.store.FindByDocument(ctx, document)
	if err != nil {
		return s.fail(ctx, "authenticate", err)
	}
	if u == nil || !s.hasher.Verify(u.Get(FieldPassword), password) || !u.IsActive() {
		var id string
		if u != nil {
			id = u.Get(FieldID)
		}
		s.record(ctx, audit.ActionLoginFailed, document, id)
		return alert.Warning(MsgBadCredentials), nil
	}

	id := u.Get(FieldID)
	if _, err := s.UpdateLastLogin(ctx, id, textutil.Stamp(s.clock, s.loc)); err != nil {
		return s.fail(ctx, "authenticate", err)
	}
	s.rehash(ctx, u, password)
	s.record(ctx, audit.ActionLogin, document, id)

	role := u.Get(FieldRole)
	return alert.Success().WithData(Session{
		ID:        id,
		Name:      textutil.Capitalize(u.Get(FieldName)),
		Role:      textutil.Capitalize(role),
		LastLogin: u.Get(FieldLastLogin),
		Menu:      s.menus.Menu(role),
	}), nil
}

// rehash replaces a stored hash the hasher no longer considers current.
// Failures are logged; the login itself has already succeeded.
func (s *Service) rehash(ctx context.Context, u *User, password string) {
	if !s.hasher.NeedsRehash(u.Get(FieldPassword)) {
		return
	}
	log := logging.FromContext(ctx)
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		log.Warnw("password rehash failed", "user_id", u.Get(FieldID), "error", err)
		return
	}
	if _, err := s.store.Update(ctx, &User{ID: u.ID, Password: &hashed}); err != nil {
		log.Warnw("password rehash not stored", "user_id", u.Get(FieldID), "error", err)
		return
	}
	log.Infow("password hash upgraded", "user_id", u.Get(FieldID))
}

func (s *Service) record(ctx context.Context, action audit.Action, document, id string) {
	if s.audit == nil {
		return
	}
	_, err := s.audit.Log(ctx, audit.Entry{Action: action, Document: document, UserID: id})
	if err != nil {
		logging.FromContext(ctx).Warnw("audit entry dropped", "action", action, "error", err)
	}
}

// IsContractError reports whether err signals misuse or misconfiguration
// rather than a transient backend failure.
func IsContractError(err error) bool {
	return errors.Is(err, store.ErrSchemaMismatch) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, grid.ErrSheetNotFound)
}

// fail turns a store error into the caller's result. Contract errors come
// back as an error result plus the error; anything else is logged and
// reported as the default warning.
func (s *Service) fail(ctx context.Context, op string, err error) (alert.Result, error) {
	log := logging.FromContext(ctx)
	if IsContractError(err) {
		log.Errorw("user store contract violated", "op", op, "error", err)
		return alert.Error(), fmt.Errorf("users: %s: %w", op, err)
	}
	log.Warnw("user operation failed", "op", op, "error", err)
	return alert.Warning(), nil
}
