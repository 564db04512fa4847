// Package notify caches the user's notifications and applies read
// mutations optimistically before confirming them with the server.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/powerboard/tui/internal/api"
	"github.com/powerboard/tui/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Notification is one cached entry.
type Notification = api.Notification

// Service is the server side of the store.
type Service interface {
	List(ctx context.Context, unreadOnly bool) ([]api.Notification, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
}

// Policy decides what happens to the local flip when the server rejects a
// mark-read call.
type Policy int

const (
	// KeepOptimistic logs the failure and leaves the entries read.
	KeepOptimistic Policy = iota
	// RevertOnFailure marks the entries flipped by the failed call unread
	// again, if they are still cached.
	RevertOnFailure
)

// ParsePolicy maps the config values "keep" and "revert".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "keep":
		return KeepOptimistic, nil
	case "revert":
		return RevertOnFailure, nil
	}
	return KeepOptimistic, fmt.Errorf("unknown mutation failure policy %q", s)
}

func (p Policy) String() string {
	if p == RevertOnFailure {
		return "revert"
	}
	return "keep"
}

// MutationError is a rejected mark-read or mark-all-read call.
type MutationError struct {
	Op       string
	IDs      []int64
	Reverted bool
	Err      error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %v: %v", e.Op, e.IDs, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// Store holds the notification collection in server order. The unread
// count is always recomputed from it.
type Store struct {
	svc     Service
	policy  Policy
	metrics *metrics.Gateway

	mu       sync.Mutex
	items    []Notification
	onChange func()
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy sets the failure policy. The default is KeepOptimistic.
func WithPolicy(p Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithMetrics records server mutations.
func WithMetrics(m *metrics.Gateway) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates an empty store.
func NewStore(svc Service, opts ...Option) *Store {
	s := &Store{svc: svc}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnChange registers fn, called outside the lock after every local change.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// FetchAll replaces the collection with the server's list. When fetches
// overlap, whichever resolves last wins.
func (s *Store) FetchAll(ctx context.Context) error {
	notes, err := s.svc.List(ctx, false)
	if err != nil {
		log.Error().Err(err).Msg("fetch notifications failed")
		return fmt.Errorf("fetch notifications: %w", err)
	}
	items := make([]Notification, len(notes))
	copy(items, notes)

	s.mu.Lock()
	s.items = items
	s.unlockAndNotify()
	return nil
}

// MarkRead flips id to read, then confirms with the server. Unknown and
// already-read ids are a no-op without a server call.
func (s *Store) MarkRead(ctx context.Context, id int64) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || s.items[i].Read {
		s.mu.Unlock()
		return nil
	}
	s.items[i].Read = true
	s.unlockAndNotify()

	err := s.svc.MarkRead(ctx, id)
	s.metrics.Mutation("mark_read", err == nil)
	if err != nil {
		return s.fail("mark_read", []int64{id}, err)
	}
	return nil
}

// MarkAllRead flips every unread entry, then sends one bulk call. The
// call is skipped when nothing was unread.
func (s *Store) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	var ids []int64
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			ids = append(ids, s.items[i].ID)
		}
	}
	if len(ids) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.unlockAndNotify()

	err := s.svc.MarkAllRead(ctx)
	s.metrics.Mutation("mark_all_read", err == nil)
	if err != nil {
		return s.fail("mark_all_read", ids, err)
	}
	return nil
}

func (s *Store) fail(op string, ids []int64, err error) error {
	merr := &MutationError{Op: op, IDs: ids, Err: err}
	if s.policy == RevertOnFailure {
		s.mu.Lock()
		for _, id := range ids {
			if i := s.indexLocked(id); i >= 0 {
				s.items[i].Read = false
			}
		}
		merr.Reverted = true
		s.unlockAndNotify()
	}
	log.Error().Err(err).Str("op", op).Ints64("ids", ids).Bool("reverted", merr.Reverted).Msg("notification mutation failed")
	return merr
}

// UnreadCount counts unread entries in the current collection.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the collection.
func (s *Store) Snapshot() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the cached entry for id.
func (s *Store) Get(id int64) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return Notification{}, false
}

func (s *Store) indexLocked(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) unlockAndNotify() {
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// IsMutationError reports whether err came from a rejected mutation.
func IsMutationError(err error) bool {
	var m *MutationError
	return errors.As(err, &m)
}
