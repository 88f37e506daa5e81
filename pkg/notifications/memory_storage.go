package notifications

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Suitable for development and testing.
type MemoryStorage struct {
	mu            sync.RWMutex
	notifications map[int64][]Notification // recipient -> notifications
	nextID        int64
}

// NewMemoryStorage returns an empty in-process Storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[int64][]Notification),
	}
}

func (s *MemoryStorage) Create(_ context.Context, notif *Notification) error {
	if notif == nil || notif.RecipientID <= 0 {
		return fmt.Errorf("%w: recipient is required", ErrInvalidNotification)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	notif.ID = s.nextID
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now().UTC()
	}
	s.notifications[notif.RecipientID] = append(s.notifications[notif.RecipientID], *notif)
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, userID, notifID int64) (Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := lo.Find(s.notifications[userID], func(n Notification) bool { return n.ID == notifID })
	if !ok {
		return Notification{}, ErrNotificationNotFound
	}
	return n, nil
}

func (s *MemoryStorage) List(_ context.Context, userID int64, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	filtered := lo.Filter(s.notifications[userID], func(n Notification, _ int) bool {
		if opts.OnlyUnread && n.IsRead {
			return false
		}
		if len(opts.Types) > 0 && !lo.Contains(opts.Types, n.Type) {
			return false
		}
		return opts.Since == nil || !n.CreatedAt.Before(*opts.Since)
	})
	s.mu.RUnlock()

	slices.SortStableFunc(filtered, func(a, b Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if opts.Offset >= len(filtered) {
		return []Notification{}, nil
	}
	end := len(filtered)
	if opts.Limit > 0 {
		end = min(opts.Offset+opts.Limit, end)
	}
	return filtered[opts.Offset:end], nil
}

func (s *MemoryStorage) MarkRead(_ context.Context, userID int64, at time.Time, notifIDs ...int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := lo.Keyify(notifIDs)
	changed := 0
	list := s.notifications[userID]
	for i := range list {
		if _, ok := ids[list[i].ID]; ok && list[i].MarkAsRead(at) {
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStorage) CountUnread(_ context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.CountBy(s.notifications[userID], func(n Notification) bool { return !n.IsRead }), nil
}
