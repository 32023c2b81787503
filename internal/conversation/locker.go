package conversation

import (
	"context"
	"sync"

	"github.com/haasonsaas/mcpbot/pkg/models"
)

// Locker serializes work on a single conversation.
type Locker interface {
	Lock(ctx context.Context, id models.ConversationID) error
	Unlock(id models.ConversationID)
}

// LocalLocker is an in-process Locker. Waiters on the same conversation are
// admitted one at a time; different conversations never block each other.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[models.ConversationID]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: map[models.ConversationID]*slot{}}
}

// Lock blocks until the conversation is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, id models.ConversationID) error {
	l.mu.Lock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(id, s)
		return ctx.Err()
	}
}

// Unlock frees the conversation. Unlocking a conversation that is not
// locked is a no-op.
func (l *LocalLocker) Unlock(id models.ConversationID) {
	l.mu.Lock()
	s, ok := l.slots[id]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-s.sem:
	default:
		return
	}
	l.release(id, s)
}

func (l *LocalLocker) release(id models.ConversationID, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs <= 0 {
		delete(l.slots, id)
	}
}
