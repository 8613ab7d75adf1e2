package coordinator

import (
	"container/list"
	"context"
	"sync"
)

// agentLimiter bounds concurrent expert invocations across all in-flight
// queries. Waiters are served FIFO, except that emergency queries jump ahead
// of every queued non-emergency waiter.
type agentLimiter struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	waiters  *list.List // of *waiter
}

type waiter struct {
	ready     chan struct{}
	emergency bool
}

func newAgentLimiter(capacity int) *agentLimiter {
	if capacity <= 0 {
		capacity = 64
	}
	return &agentLimiter{capacity: capacity, waiters: list.New()}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *agentLimiter) Acquire(ctx context.Context, emergency bool) error {
	l.mu.Lock()
	if l.inUse < l.capacity && l.waiters.Len() == 0 {
		l.inUse++
		l.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{}), emergency: emergency}
	var elem *list.Element
	if emergency {
		// Queue behind earlier emergencies, ahead of everything else.
		insertAfter := (*list.Element)(nil)
		for e := l.waiters.Front(); e != nil; e = e.Next() {
			if e.Value.(*waiter).emergency {
				insertAfter = e
				continue
			}
			break
		}
		if insertAfter == nil {
			elem = l.waiters.PushFront(w)
		} else {
			elem = l.waiters.InsertAfter(w, insertAfter)
		}
	} else {
		elem = l.waiters.PushBack(w)
	}
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-w.ready:
			// Granted between Done and lock; return the slot.
			l.releaseLocked()
		default:
			l.waiters.Remove(elem)
		}
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Release frees a slot, handing it to the head waiter if any.
func (l *agentLimiter) Release() {
	l.mu.Lock()
	l.releaseLocked()
	l.mu.Unlock()
}

func (l *agentLimiter) releaseLocked() {
	if front := l.waiters.Front(); front != nil {
		l.waiters.Remove(front)
		close(front.Value.(*waiter).ready)
		return
	}
	l.inUse--
}

// InFlight reports the number of held slots.
func (l *agentLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}
