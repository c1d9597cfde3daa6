package host

import (
	"sync"

	"jiradialog/internal/domain"
)

const (
	ChangeShown  = "shown"
	ChangeClosed = "closed"
)

// Change is one dialog shown to or closed for a user. Closed changes carry only
// the dialog id.
type Change struct {
	Type   string
	UserID string
	Dialog domain.DialogRecord
}

// Hub fans dialog changes out to per-user subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	buffer int
}

type subscription struct {
	ch chan Change
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[*subscription]struct{}{}, buffer: 64}
}

// Subscribe returns the user's change feed and a cancel func that closes it.
// The feed is also closed when the subscriber falls a full buffer behind.
func (h *Hub) Subscribe(userID string) (<-chan Change, func()) {
	sub := &subscription{ch: make(chan Change, h.buffer)}
	h.mu.Lock()
	byUser, ok := h.subs[userID]
	if !ok {
		byUser = map[*subscription]struct{}{}
		h.subs[userID] = byUser
	}
	byUser[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.remove(userID, sub)
		})
	}
}

// Publish never blocks.
func (h *Hub) Publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[c.UserID] {
		select {
		case sub.ch <- c:
		default:
			h.remove(c.UserID, sub)
		}
	}
}

// Subscribers counts the open feeds of a user.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// remove expects h.mu to be held.
func (h *Hub) remove(userID string, sub *subscription) {
	byUser := h.subs[userID]
	if _, ok := byUser[sub]; !ok {
		return
	}
	delete(byUser, sub)
	close(sub.ch)
	if len(byUser) == 0 {
		delete(h.subs, userID)
	}
}
