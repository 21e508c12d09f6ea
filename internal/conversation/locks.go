package conversation

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/store"
)

// lockTable hands out one lock per conversation so writes to the same
// conversation serialize while different conversations proceed in
// parallel. Locks are buffered channels, which lets acquisition give
// up when the caller's context ends instead of blocking forever.
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*convLock
}

type convLock struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uuid.UUID]*convLock)}
}

// acquire blocks until the lock for id is held or ctx is done. The
// returned release function must be called exactly once. Entries are
// reference counted and removed once the last holder or waiter leaves,
// so the table does not grow with the number of conversations ever seen.
func (t *lockTable) acquire(ctx context.Context, id uuid.UUID) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &convLock{ch: make(chan struct{}, 1)}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			t.drop(id, l)
		}, nil
	case <-ctx.Done():
		t.drop(id, l)
		return nil, store.E("conversation.lock", store.KindCancelled, ctx.Err())
	}
}

func (t *lockTable) drop(id uuid.UUID, l *convLock) {
	t.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, id)
	}
	t.mu.Unlock()
}
