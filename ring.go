package dmxp

import (
	"errors"
	"fmt"
	"time"
)

// Ring is a view over one channel's slot band: a fixed-capacity MPMC
// queue where any number of producers and consumers across any number of
// processes may call into the same Ring concurrently, coordinating only
// through the tail/head cursors and each slot's sequence number.
type Ring struct {
	region  *Region
	entry   *ChannelEntry
	slots   []Slot
	mask    uint64
	backoff *backoff
	metrics MetricsProvider
	logger  Logger
}

// OpenRing attaches to channelID's slot band, creating it first if it
// does not exist.
func OpenRing(region *Region, channelID uint32, capacity uint64, opts ...RingOption) (*Ring, error) {
	entry, err := region.CreateChannel(channelID, capacity)
	if err != nil && !errors.Is(err, ErrChannelExists) {
		return nil, err
	}
	if entry == nil {
		entry, _ = region.FindChannel(channelID)
	}
	return attachRing(region, entry, opts...)
}

// AttachRing attaches to an already-created channel without attempting
// to create it.
func AttachRing(region *Region, channelID uint32, opts ...RingOption) (*Ring, error) {
	entry, ok := region.FindChannel(channelID)
	if !ok {
		return nil, ErrChannelNotFound
	}
	return attachRing(region, entry, opts...)
}

func attachRing(region *Region, entry *ChannelEntry, opts ...RingOption) (*Ring, error) {
	cfg := ringOptions{backoffCfg: DefaultBackoffConfig(), logger: region.logger, metrics: region.metrics}
	for _, opt := range opts {
		opt(&cfg)
	}

	capacity := entry.Capacity
	if !isPowerOfTwo(capacity) {
		return nil, fmt.Errorf("%w: capacity %d is not a power of two", ErrCapacityInvalid, capacity)
	}

	r := &Ring{
		region:  region,
		entry:   entry,
		slots:   region.slotsAt(entry.BandOffset, capacity),
		mask:    capacity - 1,
		backoff: newBackoff(cfg.backoffCfg),
		metrics: cfg.metrics,
		logger:  cfg.logger,
	}
	return r, nil
}

// RingOption configures optional Ring collaborators.
type RingOption func(*ringOptions)

type ringOptions struct {
	backoffCfg BackoffConfig
	logger     Logger
	metrics    MetricsProvider
}

// WithRingBackoff overrides the default adaptive spin-wait tuning.
func WithRingBackoff(cfg BackoffConfig) RingOption {
	return func(o *ringOptions) { o.backoffCfg = cfg }
}

// WithRingLogger injects a Logger.
func WithRingLogger(l Logger) RingOption {
	return func(o *ringOptions) { o.logger = l }
}

// WithRingMetrics injects a MetricsProvider.
func WithRingMetrics(m MetricsProvider) RingOption {
	return func(o *ringOptions) { o.metrics = m }
}

// Close releases this handle's view onto the channel. A Ring owns no
// resources beyond a slice into its Region's mapping, so Close never
// fails and never affects other handles attached to the same channel;
// the channel's data and cursors live in the region until the region
// itself is closed or the backing file is removed.
func (r *Ring) Close() error {
	return nil
}

// ChannelID returns the id of the channel this Ring views.
func (r *Ring) ChannelID() uint32 { return r.entry.ChannelID }

// Capacity returns the channel's fixed slot count.
func (r *Ring) Capacity() uint64 { return r.entry.Capacity }

func (r *Ring) slot(seq uint64) *Slot {
	return &r.slots[seq&r.mask]
}

// Send claims one slot and publishes meta+payload into it. It returns
// ErrFull immediately if the ring has no free slot at the moment of the
// claim attempt — callers that want to wait should use SendWithTimeout.
func (r *Ring) Send(meta MessageMeta, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: payload is %d bytes, max %d", ErrPayloadTooLarge, len(payload), MaxPayload)
	}

	for {
		tail := r.entry.Tail()
		slot := r.slot(tail)
		seq := slot.Sequence()

		dif := int64(seq) - int64(tail)
		switch {
		case dif == 0:
			if !r.entry.CompareAndSwapTail(tail, tail+1) {
				continue
			}
			if err := slot.encode(meta, payload); err != nil {
				return err
			}
			slot.publishSequence(tail + 1)
			if r.metrics != nil {
				r.metrics.IncrementSent(1)
			}
			return nil
		case dif < 0:
			if r.metrics != nil {
				r.metrics.IncrementFull(1)
			}
			return ErrFull
		default:
			// another producer has already claimed and published this
			// position, so the tail snapshot is stale; reread tail.
			if r.metrics != nil {
				r.metrics.AddSpinIterations(1)
			}
			continue
		}
	}
}

// SendWithTimeout retries Send, backing off adaptively, until it
// succeeds or deadline passes.
func (r *Ring) SendWithTimeout(meta MessageMeta, payload []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	ok := r.backoff.waitUntil(func() bool {
		lastErr = r.Send(meta, payload)
		return lastErr == nil || lastErr != ErrFull
	}, deadline)

	if !ok {
		if r.metrics != nil {
			r.metrics.IncrementTimeouts(1)
		}
		return ErrTimeout
	}
	return lastErr
}

// SendBatch claims a contiguous run of len(messages) slots and publishes
// them in strictly ascending sequence order, all-or-nothing: either every
// message lands or none do. Each element of payloads corresponds to the
// MessageMeta at the same index in metas.
func (r *Ring) SendBatch(metas []MessageMeta, payloads [][]byte) error {
	batchSize := uint64(len(metas))
	if batchSize == 0 {
		return nil
	}
	if batchSize > r.entry.Capacity {
		return fmt.Errorf("%w: batch of %d exceeds capacity %d", ErrFull, batchSize, r.entry.Capacity)
	}
	for _, p := range payloads {
		if len(p) > MaxPayload {
			return fmt.Errorf("%w: payload is %d bytes, max %d", ErrPayloadTooLarge, len(p), MaxPayload)
		}
	}

	for {
		tail := r.entry.Tail()

		allAvailable := true
		for i := uint64(0); i < batchSize; i++ {
			targetSeq := tail + i
			seq := r.slot(targetSeq).Sequence()
			if int64(seq)-int64(targetSeq) != 0 {
				allAvailable = false
				break
			}
		}
		if !allAvailable {
			if r.metrics != nil {
				r.metrics.IncrementFull(1)
			}
			return ErrFull
		}

		if !r.entry.CompareAndSwapTail(tail, tail+batchSize) {
			if r.metrics != nil {
				r.metrics.AddSpinIterations(1)
			}
			continue
		}

		for i := uint64(0); i < batchSize; i++ {
			targetSeq := tail + i
			slot := r.slot(targetSeq)
			if err := slot.encode(metas[i], payloads[i]); err != nil {
				// Slots are already claimed; publishing garbage-free
				// zero-length payloads keeps the ring consistent rather
				// than leaving a claimed-but-never-published gap.
				slot.encode(metas[i], nil)
			}
		}
		// Publish only after every slot in the batch has been written, in
		// ascending order.
		for i := uint64(0); i < batchSize; i++ {
			targetSeq := tail + i
			r.slot(targetSeq).publishSequence(targetSeq + 1)
		}
		if r.metrics != nil {
			r.metrics.IncrementSent(batchSize)
			r.metrics.IncrementBatches(1)
		}
		return nil
	}
}

// TryReceive claims and decodes one ready slot. It returns ErrEmpty
// immediately if no slot is ready at the moment of the claim attempt.
func (r *Ring) TryReceive(buf []byte) (MessageMeta, int, error) {
	for {
		head := r.entry.Head()
		slot := r.slot(head)
		seq := slot.Sequence()

		dif := int64(seq) - int64(head+1)
		switch {
		case dif == 0:
			if !r.entry.CompareAndSwapHead(head, head+1) {
				continue
			}
			meta, n, err := slot.decode(buf)
			if err != nil {
				if r.metrics != nil {
					r.metrics.IncrementCorruptions(1)
				}
				// Free the slot for reuse regardless of decode failure
				// so one corrupt message can't wedge the ring.
				slot.publishSequence(head + r.entry.Capacity)
				return MessageMeta{}, 0, err
			}
			slot.publishSequence(head + r.entry.Capacity)
			if r.metrics != nil {
				r.metrics.IncrementReceived(1)
			}
			return meta, n, nil
		case dif < 0:
			if r.metrics != nil {
				r.metrics.IncrementEmpty(1)
			}
			return MessageMeta{}, 0, ErrEmpty
		default:
			if r.metrics != nil {
				r.metrics.AddSpinIterations(1)
			}
			continue
		}
	}
}

// ReceiveWithTimeout retries TryReceive, backing off adaptively, until a
// message is available or deadline passes.
func (r *Ring) ReceiveWithTimeout(buf []byte, timeout time.Duration) (MessageMeta, int, error) {
	deadline := time.Now().Add(timeout)
	var meta MessageMeta
	var n int
	var lastErr error
	ok := r.backoff.waitUntil(func() bool {
		meta, n, lastErr = r.TryReceive(buf)
		return lastErr == nil || lastErr != ErrEmpty
	}, deadline)

	if !ok {
		if r.metrics != nil {
			r.metrics.IncrementTimeouts(1)
		}
		return MessageMeta{}, 0, ErrTimeout
	}
	return meta, n, lastErr
}

// Len estimates the number of messages currently queued. It is a racy
// snapshot: tail and head are each read once, with no atomicity between
// the two reads, which is unavoidable in a lock-free MPMC ring.
func (r *Ring) Len() uint64 {
	tail := r.entry.Tail()
	head := r.entry.Head()
	if tail < head {
		return 0
	}
	return tail - head
}
