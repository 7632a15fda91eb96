package natsclient

import (
	"sync/atomic"
	"time"
)

const initialBackoff = time.Second

// breaker counts connection-level failures. Every threshold failures form a round; a full round
// trips the breaker and returns the backoff to wait before the next attempt. Each round doubles
// the backoff up to max.
type breaker struct {
	threshold int32
	max       time.Duration

	total       atomic.Int32
	round       atomic.Int32
	backoff     atomic.Int64 // time.Duration
	lastFailure atomic.Int64 // unix nanos, 0 when none
}

func newBreaker(threshold int32, max time.Duration) *breaker {
	b := &breaker{threshold: threshold, max: max}
	b.backoff.Store(int64(initialBackoff))
	return b
}

// fail records one failure. trip is true when it completes a round.
func (b *breaker) fail() (trip bool, wait time.Duration) {
	b.total.Add(1)
	b.lastFailure.Store(time.Now().UnixNano())

	if b.round.Add(1) < b.threshold {
		return false, 0
	}
	b.round.Store(0)

	wait = time.Duration(b.backoff.Load())
	next := wait * 2
	if next > b.max {
		next = b.max
	}
	b.backoff.Store(int64(next))
	return true, wait
}

func (b *breaker) reset() {
	b.total.Store(0)
	b.round.Store(0)
	b.backoff.Store(int64(initialBackoff))
	b.lastFailure.Store(0)
}

func (b *breaker) failures() int32 {
	return b.total.Load()
}

func (b *breaker) currentBackoff() time.Duration {
	return time.Duration(b.backoff.Load())
}

func (b *breaker) lastFailureAt() time.Time {
	ns := b.lastFailure.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
