package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/JonMunkholm/sheetusers/internal/logging"
	"github.com/JonMunkholm/sheetusers/internal/store"
)

// DefaultListLimit caps List when Filter.Limit is zero.
const DefaultListLimit = 100

// Filter narrows List. Zero values match everything.
type Filter struct {
	Action   Action
	Document string
	Limit    int
}

// Logger writes and reads entries on the audit sheet.
type Logger struct {
	table *store.Table
	now   func() time.Time
}

// NewLogger binds a logger to the audit table.
func NewLogger(table *store.Table) *Logger {
	return &Logger{table: table, now: time.Now}
}

// Log appends e. Severity and CreatedAt are filled in when empty, IP and
// UserAgent are taken from ctx when not set.
func (l *Logger) Log(ctx context.Context, e Entry) (*Entry, error) {
	if e.Severity == "" {
		e.Severity = SeverityOf(e.Action)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	if e.IP == "" {
		e.IP = IPFrom(ctx)
	}
	if e.UserAgent == "" {
		e.UserAgent = UserAgentFrom(ctx)
	}

	rec, err := l.table.Insert(ctx, toRecord(e), Fields)
	if err != nil {
		return nil, fmt.Errorf("audit: log %s: %w", e.Action, err)
	}
	e.ID = rec.ID()

	logging.FromContext(ctx).Debugw("audit entry recorded",
		"action", e.Action,
		"severity", e.Severity,
		"document", e.Document,
	)
	return &e, nil
}

// List returns matching entries, newest first.
func (l *Logger) List(ctx context.Context, f Filter) ([]Entry, error) {
	entries, err := l.all(ctx)
	if err != nil {
		return nil, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	out := make([]Entry, 0, min(limit, len(entries)))
	for _, e := range entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Document != "" && e.Document != f.Document {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Prune deletes entries created before now minus olderThan and returns how
// many were removed.
func (l *Logger) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := l.all(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := l.now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if !e.CreatedAt.Before(cutoff) {
			continue
		}
		ok, err := l.table.DeleteByID(ctx, store.Record{store.IDField: e.ID}, Fields)
		if err != nil {
			return removed, fmt.Errorf("audit: prune %s: %w", e.ID, err)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (l *Logger) all(ctx context.Context) ([]Entry, error) {
	records, err := l.table.ReadAll(ctx, Fields)
	if err != nil {
		return nil, fmt.Errorf("audit: read: %w", err)
	}
	entries := make([]Entry, len(records))
	for i, rec := range records {
		entries[i] = fromRecord(rec)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func toRecord(e Entry) store.Record {
	return store.Record{
		FieldAction:    string(e.Action),
		FieldSeverity:  string(e.Severity),
		FieldDocument:  e.Document,
		FieldUserID:    e.UserID,
		FieldIP:        e.IP,
		FieldUserAgent: e.UserAgent,
		FieldCreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// fromRecord tolerates a hand-edited createdAt cell by leaving the time zero.
func fromRecord(rec store.Record) Entry {
	created, _ := time.Parse(time.RFC3339Nano, rec[FieldCreatedAt])
	return Entry{
		ID:        rec.ID(),
		Action:    Action(rec[FieldAction]),
		Severity:  Severity(rec[FieldSeverity]),
		Document:  rec[FieldDocument],
		UserID:    rec[FieldUserID],
		IP:        rec[FieldIP],
		UserAgent: rec[FieldUserAgent],
		CreatedAt: created,
	}
}
