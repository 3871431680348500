package audit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetusers/internal/grid"
	"github.com/JonMunkholm/sheetusers/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*Logger, *time.Time) {
	t.Helper()
	ctx := context.Background()
	book := grid.NewMemoryBook("audit-test")
	_, err := book.CreateSheet(ctx, "audit", Fields)
	require.NoError(t, err)

	n := 0
	ids := store.IDGeneratorFunc(func(string) (string, error) {
		n++
		return fmt.Sprintf("a%d", n), nil
	})

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewLogger(store.NewTable(book, "audit", ids))
	l.now = func() time.Time { return now }
	return l, &now
}

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		action Action
		want   Severity
	}{
		{ActionLogin, SeverityLow},
		{ActionUserCreate, SeverityLow},
		{ActionUserUpdate, SeverityMedium},
		{ActionLoginFailed, SeverityHigh},
		{ActionUserDelete, SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityOf(tt.action))
		})
	}
}

func TestLog_FillsDefaultsFromContext(t *testing.T) {
	l, now := newTestLogger(t)
	ctx := WithUserAgent(WithIP(context.Background(), "10.0.0.7"), "curl/8.0")

	e, err := l.Log(ctx, Entry{Action: ActionLoginFailed, Document: "111"})
	require.NoError(t, err)

	assert.Equal(t, "a1", e.ID)
	assert.Equal(t, SeverityHigh, e.Severity)
	assert.Equal(t, "10.0.0.7", e.IP)
	assert.Equal(t, "curl/8.0", e.UserAgent)
	assert.True(t, e.CreatedAt.Equal(*now))

	got, err := l.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *e, got[0])
}

func TestList_NewestFirstWithFilters(t *testing.T) {
	l, now := newTestLogger(t)
	ctx := context.Background()

	steps := []Entry{
		{Action: ActionUserCreate, Document: "111"},
		{Action: ActionLogin, Document: "111"},
		{Action: ActionLogin, Document: "222"},
		{Action: ActionUserDelete, Document: "111"},
	}
	for _, e := range steps {
		*now = now.Add(time.Minute)
		_, err := l.Log(ctx, e)
		require.NoError(t, err)
	}

	all, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ActionUserDelete, all[0].Action)
	assert.Equal(t, ActionUserCreate, all[3].Action)

	logins, err := l.List(ctx, Filter{Action: ActionLogin})
	require.NoError(t, err)
	require.Len(t, logins, 2)
	assert.Equal(t, "222", logins[0].Document)

	forDoc, err := l.List(ctx, Filter{Document: "111", Limit: 2})
	require.NoError(t, err)
	require.Len(t, forDoc, 2)
	assert.Equal(t, ActionUserDelete, forDoc[0].Action)
	assert.Equal(t, ActionLogin, forDoc[1].Action)
}

func TestPrune(t *testing.T) {
	l, now := newTestLogger(t)
	ctx := context.Background()

	for _, age := range []time.Duration{72 * time.Hour, 48 * time.Hour, time.Hour} {
		_, err := l.Log(ctx, Entry{Action: ActionLogin, CreatedAt: now.Add(-age)})
		require.NoError(t, err)
	}

	removed, err := l.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.True(t, left[0].CreatedAt.Equal(now.Add(-time.Hour)))

	removed, err = l.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestLog_SchemaMismatch(t *testing.T) {
	ctx := context.Background()
	book := grid.NewMemoryBook("audit-test")
	_, err := book.CreateSheet(ctx, "audit", []string{"id", "action"})
	require.NoError(t, err)
	l := NewLogger(store.NewTable(book, "audit", store.UUIDGenerator{}))

	_, err = l.Log(ctx, Entry{Action: ActionLogin})
	assert.ErrorIs(t, err, store.ErrSchemaMismatch)
}

type countingPruner struct {
	calls atomic.Int32
	err   error
	got   time.Duration
}

func (p *countingPruner) Prune(_ context.Context, olderThan time.Duration) (int, error) {
	p.calls.Add(1)
	p.got = olderThan
	return 3, p.err
}

func TestNewScheduler_RejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(&countingPruner{}, SchedulerConfig{Schedule: "not a schedule"}, nil)
	assert.Error(t, err)
}

func TestScheduler_RunOnceUsesRetention(t *testing.T) {
	p := &countingPruner{}
	s, err := NewScheduler(p, SchedulerConfig{Schedule: "@daily", RetentionDays: 7}, nil)
	require.NoError(t, err)

	s.RunOnce(context.Background())
	assert.EqualValues(t, 1, p.calls.Load())
	assert.Equal(t, 7*24*time.Hour, p.got)

	p.err = errors.New("backend down")
	s.RunOnce(context.Background())
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestScheduler_StartStopsOnCancel(t *testing.T) {
	p := &countingPruner{}
	s, err := NewScheduler(p, SchedulerConfig{Schedule: "@hourly"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 90*24*time.Hour, p.got)
}
