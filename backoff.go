package dmxp

import (
	"runtime"
	"sync/atomic"
	"time"
)

// BackoffConfig tunes how a spinning producer/consumer escalates from busy
// spinning to yielding to sleeping while waiting on a slot's sequence to
// become ready.
type BackoffConfig struct {
	// SpinLimit bounds the number of tight-loop iterations before spinning
	// gives up (waitUntil then falls back to sleeping). Adaptive: rewarded
	// on success, punished on failure, within [MinSpin, MaxSpin].
	SpinLimit int32
	MinSpin   int32
	MaxSpin   int32
	IncStep   int32
	DecStep   int32

	// YieldEvery controls how often, in spin iterations, the loop calls
	// runtime.Gosched() instead of re-checking the condition immediately.
	YieldEvery int32

	// SleepStep is the duration slept between spin bursts once the spin
	// budget is exhausted and a caller is willing to block (e.g.
	// ReceiveWithTimeout).
	SleepStep time.Duration
}

// DefaultBackoffConfig returns a conservative spin/yield/sleep tuning
// suitable as a starting point for most workloads.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		SpinLimit:  2000,
		MinSpin:    100,
		MaxSpin:    20000,
		IncStep:    200,
		DecStep:    100,
		YieldEvery: 64,
		SleepStep:  time.Millisecond,
	}
}

// backoff is an adaptive spin-wait strategy shared by a Ring's producers
// and consumers. One backoff is owned per Ring, not per call, so the spin
// limit adapts to real contention over the channel's lifetime.
type backoff struct {
	cfg   BackoffConfig
	limit int32
}

func newBackoff(cfg BackoffConfig) *backoff {
	return &backoff{cfg: cfg, limit: cfg.SpinLimit}
}

// spin busy-waits on condition for up to the current adaptive limit,
// yielding the scheduler every YieldEvery iterations. It returns true if
// condition became true within the limit.
func (b *backoff) spin(condition func() bool) bool {
	limit := int(atomic.LoadInt32(&b.limit))
	yieldEvery := b.cfg.YieldEvery
	if yieldEvery <= 0 {
		yieldEvery = 64
	}

	for i := 0; i < limit; i++ {
		if condition() {
			b.reward()
			return true
		}
		if int32(i)%yieldEvery == 0 {
			runtime.Gosched()
		}
	}
	b.punish()
	return false
}

func (b *backoff) reward() {
	for {
		cur := atomic.LoadInt32(&b.limit)
		if cur >= b.cfg.MaxSpin {
			return
		}
		next := cur + b.cfg.IncStep
		if next > b.cfg.MaxSpin {
			next = b.cfg.MaxSpin
		}
		if atomic.CompareAndSwapInt32(&b.limit, cur, next) {
			return
		}
	}
}

func (b *backoff) punish() {
	for {
		cur := atomic.LoadInt32(&b.limit)
		if cur <= b.cfg.MinSpin {
			return
		}
		next := cur - b.cfg.DecStep
		if next < b.cfg.MinSpin {
			next = b.cfg.MinSpin
		}
		if atomic.CompareAndSwapInt32(&b.limit, cur, next) {
			return
		}
	}
}

// waitUntil spins, then sleeps in SleepStep increments, until condition is
// true or deadline passes. It returns true if condition became true.
func (b *backoff) waitUntil(condition func() bool, deadline time.Time) bool {
	if b.spin(condition) {
		return true
	}
	for {
		if time.Now().After(deadline) {
			return condition()
		}
		remaining := time.Until(deadline)
		sleep := b.cfg.SleepStep
		if sleep > remaining {
			sleep = remaining
		}
		if sleep > 0 {
			time.Sleep(sleep)
		}
		if condition() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
}
