package redisclient

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// localSlotLocker serialises slot critical sections inside one process. It
// is used when no Redis is configured and by tests. Unlike the Redis locker
// it waits for the holder instead of failing fast.
type localSlotLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slotMutex
}

type slotMutex struct {
	ch   chan struct{}
	refs int
}

func NewLocalSlotLocker() Locker {
	return &localSlotLocker{slots: make(map[uuid.UUID]*slotMutex)}
}

func (l *localSlotLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	return l.WithSlotLocks(ctx, []uuid.UUID{slotID}, fn)
}

func (l *localSlotLocker) WithSlotLocks(ctx context.Context, slotIDs []uuid.UUID, fn func(ctx context.Context) error) error {
	ids := sortedUnique(slotIDs)
	var held []uuid.UUID

	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}()

	for _, id := range ids {
		if err := l.lock(ctx, id); err != nil {
			return err
		}
		held = append(held, id)
	}

	return fn(ctx)
}

func (l *localSlotLocker) lock(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	m, ok := l.slots[id]
	if !ok {
		m = &slotMutex{ch: make(chan struct{}, 1)}
		l.slots[id] = m
	}
	m.refs++
	l.mu.Unlock()

	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(id, m)
		return ctx.Err()
	}
}

func (l *localSlotLocker) unlock(id uuid.UUID) {
	l.mu.Lock()
	m := l.slots[id]
	l.mu.Unlock()

	<-m.ch
	l.drop(id, m)
}

func (l *localSlotLocker) drop(id uuid.UUID, m *slotMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.slots, id)
	}
}
