package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/store"
)

func TestLockSerializesSameConversation(t *testing.T) {
	lt := newLockTable()
	ctx := context.Background()
	id := uuid.New()

	release, err := lt.acquire(ctx, id)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r2, err := lt.acquire(ctx, id)
		if err != nil {
			t.Errorf("second acquire: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired while lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter never acquired after release")
	}
}

func TestLockAcquireCancelled(t *testing.T) {
	lt := newLockTable()
	id := uuid.New()

	release, err := lt.acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := lt.acquire(ctx, id); !store.IsCancelled(err) {
		t.Fatalf("expected cancelled, got %v", err)
	}
}

func TestLockDifferentConversationsDoNotContend(t *testing.T) {
	lt := newLockTable()
	id1, id2 := uuid.New(), uuid.New()

	r1, err := lt.acquire(context.Background(), id1)
	if err != nil {
		t.Fatalf("acquire first: %v", err)
	}
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r2, err := lt.acquire(ctx, id2)
	if err != nil {
		t.Fatalf("independent lock blocked: %v", err)
	}
	r2()
}

func TestLockTableShrinks(t *testing.T) {
	lt := newLockTable()
	id := uuid.New()

	release, err := lt.acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := lt.acquire(ctx, id); !store.IsCancelled(err) {
		t.Fatalf("expected cancelled waiter, got %v", err)
	}
	release()

	lt.mu.Lock()
	n := len(lt.locks)
	lt.mu.Unlock()
	if n != 0 {
		t.Fatalf("lock table holds %d entries after release", n)
	}
}
