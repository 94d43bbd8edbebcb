package dmxp

import (
	"sync"
	"time"
)

// StallWatchdog mitigates a crashed producer leaving a
// claimed-but-never-published slot: it periodically checks whether a
// Ring's length (tail minus head) has stayed nonzero and unchanged for
// longer than StallTimeout, and whether the consumer's last known sender
// is still alive. When both conditions hold, it calls the configured
// Recover callback instead of leaving consumers spinning forever.
type StallWatchdog struct {
	mu       sync.Mutex
	ring     *Ring
	consumer *Consumer

	interval     time.Duration
	stallTimeout time.Duration
	recover      func(ring *Ring)

	lastLen  uint64
	lastMove time.Time

	stop chan struct{}
	done chan struct{}
}

// StallWatchdogOption configures a StallWatchdog.
type StallWatchdogOption func(*StallWatchdog)

// WithCheckInterval sets how often the watchdog samples ring length.
func WithCheckInterval(d time.Duration) StallWatchdogOption {
	return func(w *StallWatchdog) { w.interval = d }
}

// WithStallTimeout sets how long ring length must stay unchanged, with a
// dead last sender, before Recover fires.
func WithStallTimeout(d time.Duration) StallWatchdogOption {
	return func(w *StallWatchdog) { w.stallTimeout = d }
}

// WithRecover sets the callback invoked when a stall is detected. The
// default callback only logs.
func WithRecover(fn func(ring *Ring)) StallWatchdogOption {
	return func(w *StallWatchdog) { w.recover = fn }
}

// NewStallWatchdog creates a watchdog over ring, observing consumer's
// last-known sender to decide liveness.
func NewStallWatchdog(ring *Ring, consumer *Consumer, opts ...StallWatchdogOption) *StallWatchdog {
	w := &StallWatchdog{
		ring:         ring,
		consumer:     consumer,
		interval:     time.Second,
		stallTimeout: 30 * time.Second,
		lastMove:     time.Now(),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.recover == nil {
		w.recover = func(ring *Ring) {
			ring.logger.Warn("stall watchdog: detected stuck producer", "channel_id", ring.ChannelID())
		}
	}
	return w
}

// Start begins the watchdog's background sampling loop. Call Stop to end
// it.
func (w *StallWatchdog) Start() {
	go w.run()
}

func (w *StallWatchdog) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *StallWatchdog) check() {
	w.mu.Lock()
	defer w.mu.Unlock()

	length := w.ring.Len()
	if length != w.lastLen {
		w.lastLen = length
		w.lastMove = time.Now()
		return
	}

	if length == 0 {
		return
	}
	if time.Since(w.lastMove) < w.stallTimeout {
		return
	}
	if w.consumer.producerAlive() {
		return
	}

	w.recover(w.ring)
	w.lastMove = time.Now()
}

// Stop ends the watchdog's background loop and waits for it to exit.
func (w *StallWatchdog) Stop() {
	close(w.stop)
	<-w.done
}
