package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *MemoryStorage, notifs ...Notification) []Notification {
	t.Helper()
	out := make([]Notification, 0, len(notifs))
	for _, n := range notifs {
		require.NoError(t, s.Create(context.Background(), &n))
		out = append(out, n)
	}
	return out
}

func TestMemoryStorage_Create(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStorage()

	err := s.Create(ctx, &Notification{Title: "no recipient"})
	assert.ErrorIs(t, err, ErrInvalidNotification)
	assert.ErrorIs(t, s.Create(ctx, nil), ErrInvalidNotification)

	got := seed(t, s,
		Notification{RecipientID: 1, Type: TypeSystem, Title: "a"},
		Notification{RecipientID: 2, Type: TypeSystem, Title: "b"},
	)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestMemoryStorage_Get(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStorage()
	n := seed(t, s, Notification{RecipientID: 1, Type: TypeSystem, Title: "a"})[0]

	got, err := s.Get(ctx, 1, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)

	_, err = s.Get(ctx, 2, n.ID)
	assert.ErrorIs(t, err, ErrNotificationNotFound, "other users cannot read it")

	_, err = s.Get(ctx, 1, 99)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestMemoryStorage_List(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStorage()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s,
		Notification{RecipientID: 1, Type: TypeMessage, Title: "old", CreatedAt: base},
		Notification{RecipientID: 1, Type: TypeSystem, Title: "mid", CreatedAt: base.Add(time.Minute)},
		Notification{RecipientID: 1, Type: TypeMessage, Title: "new", CreatedAt: base.Add(2 * time.Minute), IsRead: true},
		Notification{RecipientID: 2, Type: TypeMessage, Title: "other", CreatedAt: base},
	)
	since := base.Add(time.Minute)

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{name: "all newest first", want: []string{"new", "mid", "old"}},
		{name: "only unread", opts: ListOptions{OnlyUnread: true}, want: []string{"mid", "old"}},
		{name: "by type", opts: ListOptions{Types: []Type{TypeMessage}}, want: []string{"new", "old"}},
		{name: "since", opts: ListOptions{Since: &since}, want: []string{"new", "mid"}},
		{name: "limit", opts: ListOptions{Limit: 1}, want: []string{"new"}},
		{name: "offset", opts: ListOptions{Offset: 1, Limit: 5}, want: []string{"mid", "old"}},
		{name: "offset past end", opts: ListOptions{Offset: 10}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.List(ctx, 1, tt.opts)
			require.NoError(t, err)
			titles := make([]string, 0, len(got))
			for _, n := range got {
				titles = append(titles, n.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestMemoryStorage_MarkRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStorage()
	ns := seed(t, s,
		Notification{RecipientID: 1, Type: TypeSystem, Title: "a"},
		Notification{RecipientID: 1, Type: TypeSystem, Title: "b"},
		Notification{RecipientID: 2, Type: TypeSystem, Title: "c"},
	)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	changed, err := s.MarkRead(ctx, 1, at, ns[0].ID, ns[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, changed, "foreign ids are ignored")

	changed, err = s.MarkRead(ctx, 1, at.Add(time.Hour), ns[0].ID)
	require.NoError(t, err)
	assert.Zero(t, changed)

	got, err := s.Get(ctx, 1, ns[0].ID)
	require.NoError(t, err)
	assert.Equal(t, at, *got.ReadAt)

	n, err := s.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountUnread(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStorage_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStorage()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := Notification{RecipientID: 1, Type: TypeSystem, Title: "x"}
			assert.NoError(t, s.Create(ctx, &n))
			_, _ = s.CountUnread(ctx, 1)
			_, _ = s.MarkRead(ctx, 1, time.Now(), n.ID)
		}()
	}
	wg.Wait()

	all, err := s.List(ctx, 1, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 50)
	n, err := s.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}
