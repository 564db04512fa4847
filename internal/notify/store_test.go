package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/powerboard/tui/internal/api"
	"github.com/powerboard/tui/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu       sync.Mutex
	list     []api.Notification
	listErr  error
	markErr  error
	marked   []int64
	allCalls int
}

func (f *fakeService) List(ctx context.Context, unreadOnly bool) ([]api.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list, f.listErr
}

func (f *fakeService) MarkRead(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return f.markErr
}

func (f *fakeService) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allCalls++
	return f.markErr
}

func notes(read ...bool) []api.Notification {
	out := make([]api.Notification, len(read))
	for i, r := range read {
		out[i] = api.Notification{ID: int64(i + 1), Message: "n", Read: r}
	}
	return out
}

func fetched(t *testing.T, svc *fakeService, opts ...Option) *Store {
	t.Helper()
	s := NewStore(svc, opts...)
	require.NoError(t, s.FetchAll(context.Background()))
	return s
}

func TestFetchAllUnreadCount(t *testing.T) {
	svc := &fakeService{list: notes(false, true)}
	s := fetched(t, svc)
	assert.Equal(t, 1, s.UnreadCount())
	assert.Len(t, s.Snapshot(), 2)
}

func TestFetchAllReplaces(t *testing.T) {
	svc := &fakeService{list: notes(false, false, false)}
	s := fetched(t, svc)
	svc.list = notes(true)
	require.NoError(t, s.FetchAll(context.Background()))
	assert.Equal(t, 0, s.UnreadCount())
	assert.Len(t, s.Snapshot(), 1)
}

func TestFetchAllErrorKeepsCollection(t *testing.T) {
	svc := &fakeService{list: notes(false)}
	s := fetched(t, svc)
	svc.listErr = errors.New("boom")
	require.Error(t, s.FetchAll(context.Background()))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestMarkRead(t *testing.T) {
	svc := &fakeService{list: notes(false, false)}
	s := fetched(t, svc)

	require.NoError(t, s.MarkRead(context.Background(), 2))
	assert.Equal(t, 1, s.UnreadCount())
	assert.Equal(t, []int64{2}, svc.marked)
	n, ok := s.Get(2)
	require.True(t, ok)
	assert.True(t, n.Read)
}

func TestMarkReadIdempotent(t *testing.T) {
	svc := &fakeService{list: notes(false, true)}
	s := fetched(t, svc)

	require.NoError(t, s.MarkRead(context.Background(), 2))
	require.NoError(t, s.MarkRead(context.Background(), 99))
	require.NoError(t, s.MarkRead(context.Background(), 1))
	require.NoError(t, s.MarkRead(context.Background(), 1))

	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, []int64{1}, svc.marked, "only the first flip reaches the server")
}

func TestMarkAllReadAlwaysZero(t *testing.T) {
	tests := []struct {
		name      string
		start     []bool
		wantCalls int
	}{
		{name: "empty", start: nil, wantCalls: 0},
		{name: "all read", start: []bool{true, true}, wantCalls: 0},
		{name: "mixed", start: []bool{false, true, false}, wantCalls: 1},
		{name: "all unread", start: []bool{false, false}, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{list: notes(tt.start...)}
			s := fetched(t, svc)
			require.NoError(t, s.MarkAllRead(context.Background()))
			assert.Equal(t, 0, s.UnreadCount())
			assert.Equal(t, tt.wantCalls, svc.allCalls)
		})
	}
}

func TestMutationFailureKeepsOptimisticState(t *testing.T) {
	svc := &fakeService{list: notes(false, false)}
	s := fetched(t, svc)
	svc.markErr = errors.New("503")

	err := s.MarkRead(context.Background(), 1)
	var merr *MutationError
	require.ErrorAs(t, err, &merr)
	assert.False(t, merr.Reverted)
	assert.Equal(t, 1, s.UnreadCount())

	require.Error(t, s.MarkAllRead(context.Background()))
	assert.Equal(t, 0, s.UnreadCount())
}

func TestMutationFailureReverts(t *testing.T) {
	svc := &fakeService{list: notes(false, true, false)}
	s := fetched(t, svc, WithPolicy(RevertOnFailure))
	svc.markErr = errors.New("503")

	err := s.MarkRead(context.Background(), 1)
	require.True(t, IsMutationError(err))
	assert.Equal(t, 2, s.UnreadCount())

	err = s.MarkAllRead(context.Background())
	var merr *MutationError
	require.ErrorAs(t, err, &merr)
	assert.True(t, merr.Reverted)
	assert.ElementsMatch(t, []int64{1, 3}, merr.IDs)
	assert.Equal(t, 2, s.UnreadCount())
	n, _ := s.Get(2)
	assert.True(t, n.Read, "entries read before the call stay read")
}

func TestOnChange(t *testing.T) {
	svc := &fakeService{list: notes(false)}
	s := NewStore(svc)
	calls := 0
	s.OnChange(func() {
		calls++
		_ = s.UnreadCount()
	})
	require.NoError(t, s.FetchAll(context.Background()))
	require.NoError(t, s.MarkRead(context.Background(), 1))
	require.NoError(t, s.MarkRead(context.Background(), 1))
	assert.Equal(t, 2, calls)
}

func TestMutationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewGateway(reg)
	svc := &fakeService{list: notes(false, false)}
	s := fetched(t, svc, WithMetrics(m))
	require.NoError(t, s.MarkRead(context.Background(), 1))
	svc.markErr = errors.New("x")
	require.Error(t, s.MarkAllRead(context.Background()))

	n, err := testutil.GatherAndCount(reg, "powerboard_notifications_mutations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("revert")
	require.NoError(t, err)
	assert.Equal(t, RevertOnFailure, p)
	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, KeepOptimistic, p)
	_, err = ParsePolicy("nope")
	require.Error(t, err)
}
