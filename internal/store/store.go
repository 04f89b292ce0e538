package store

import (
	"sync"
	"time"

	"daraja-mcp/internal/model"
)

const DefaultCapacity = 100

// Store keeps the most recent payment notifications, newest first. Every method
// takes the same lock and hands out copies, so callers never share entries.
type Store struct {
	mu       sync.Mutex
	items    []model.PaymentNotification
	capacity int
	now      func() time.Time
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		items:    make([]model.PaymentNotification, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// WithClock replaces the timestamp source used by Add.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) Capacity() int {
	return s.capacity
}

// Add stamps the notification and places it at the front. The oldest entries fall
// off once the store is full, read or not.
func (s *Store) Add(n model.PaymentNotification) model.PaymentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()

	n = n.Clone()
	n.Read = false
	n.ReceivedAt = s.now()

	if len(s.items) < s.capacity {
		s.items = append(s.items, model.PaymentNotification{})
	}
	copy(s.items[1:], s.items[:len(s.items)-1])
	s.items[0] = n

	return n.Clone()
}

func (s *Store) Recent(limit int) []model.PaymentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentLocked(limit)
}

// RecentWithUnread returns Recent(limit) and the store-wide unread count from
// the same snapshot.
func (s *Store) RecentWithUnread(limit int) ([]model.PaymentNotification, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentLocked(limit), s.unreadLocked()
}

func (s *Store) recentLocked(limit int) []model.PaymentNotification {
	if limit <= 0 {
		return []model.PaymentNotification{}
	}
	if limit > len(s.items) {
		limit = len(s.items)
	}

	out := make([]model.PaymentNotification, limit)
	for i := range out {
		out[i] = s.items[i].Clone()
	}
	return out
}

func (s *Store) Unread() []model.PaymentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.PaymentNotification{}
	for _, n := range s.items {
		if !n.Read {
			out = append(out, n.Clone())
		}
	}
	return out
}

// FindByCheckoutID returns the newest entry with the id. Duplicates are kept, so
// older entries with the same id are shadowed.
func (s *Store) FindByCheckoutID(id string) (model.PaymentNotification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.items {
		if n.CheckoutRequestID == id {
			return n.Clone(), true
		}
	}
	return model.PaymentNotification{}, false
}

func (s *Store) FindByReceipt(receipt string) (model.PaymentNotification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.items {
		if n.MpesaReceiptNumber != nil && *n.MpesaReceiptNumber == receipt {
			return n.Clone(), true
		}
	}
	return model.PaymentNotification{}, false
}

func (s *Store) MarkRead(checkoutID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].CheckoutRequestID == checkoutID {
			s.items[i].Read = true
			return true
		}
	}
	return false
}

func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadLocked()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Summary reports counts taken under a single lock so they always add up.
func (s *Store) Summary(callbackURL string) model.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	unread := s.unreadLocked()
	return model.Summary{
		Total:       len(s.items),
		Unread:      unread,
		Read:        len(s.items) - unread,
		CallbackURL: callbackURL,
	}
}

func (s *Store) unreadLocked() int {
	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count
}
