package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockContended is returned when a review's lock could not be acquired
// within the bounded retry budget. Nothing has been mutated when it is
// returned.
var ErrLockContended = errors.New("review lock contended")

const (
	lockAttempts    = 10
	lockInitialWait = 5 * time.Millisecond
	lockMaxWait     = 250 * time.Millisecond
)

// reviewLocks provides one mutex per review id. Distinct reviews proceed
// fully in parallel; within one review every ledger-mutating operation is
// serialized. Locks are acquired and released per operation and never
// nested, so there is no deadlock risk.
type reviewLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newReviewLocks() *reviewLocks {
	return &reviewLocks{m: make(map[string]*sync.Mutex)}
}

func (l *reviewLocks) get(reviewID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.m[reviewID]
	if !ok {
		lock = &sync.Mutex{}
		l.m[reviewID] = lock
	}
	return lock
}

// acquire tries to take the review's lock with bounded retry and backoff.
// On success the caller must call the returned release func.
func (l *reviewLocks) acquire(ctx context.Context, reviewID string) (func(), error) {
	lock := l.get(reviewID)

	wait := lockInitialWait
	for attempt := 0; attempt < lockAttempts; attempt++ {
		if lock.TryLock() {
			return lock.Unlock, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("review %s: %w", reviewID, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
		if wait > lockMaxWait {
			wait = lockMaxWait
		}
	}
	return nil, fmt.Errorf("review %s: %w", reviewID, ErrLockContended)
}
