package dmxp

import (
	"sync/atomic"
	"time"
)

// producerLivenessGrace is how long since the last received message a
// Consumer will keep assuming its producer is alive before falling back
// to checking the sending process directly.
const producerLivenessGrace = 5 * time.Second

// Consumer is a stateful handle around a Ring that tracks the most
// recently observed sender so it can distinguish "ring empty, producer
// still running" from "producer has exited".
type Consumer struct {
	ring            *Ring
	channelID       uint32
	lastMessageUnix int64 // unix seconds, atomic
	lastSenderPID   uint32
}

// NewConsumer creates a Consumer bound to ring.
func NewConsumer(ring *Ring) *Consumer {
	return &Consumer{ring: ring, channelID: ring.ChannelID()}
}

// TryReceive returns the next ready message, or ErrEmpty if the ring is
// momentarily empty.
func (c *Consumer) TryReceive(buf []byte) (MessageMeta, int, error) {
	meta, n, err := c.ring.TryReceive(buf)
	if err == nil {
		c.recordReceipt(meta)
	}
	return meta, n, err
}

// ReceiveWithTimeout waits up to timeout for the next message.
func (c *Consumer) ReceiveWithTimeout(buf []byte, timeout time.Duration) (MessageMeta, int, error) {
	meta, n, err := c.ring.ReceiveWithTimeout(buf, timeout)
	if err == nil {
		c.recordReceipt(meta)
	}
	return meta, n, err
}

// ReceiveBlocking waits indefinitely for the next message, returning
// ErrTimeout only if the last known producer appears to have exited.
func (c *Consumer) ReceiveBlocking(buf []byte) (MessageMeta, int, error) {
	for {
		meta, n, err := c.ring.ReceiveWithTimeout(buf, 50*time.Millisecond)
		if err == nil {
			c.recordReceipt(meta)
			return meta, n, nil
		}
		if !c.producerAlive() {
			return MessageMeta{}, 0, ErrTimeout
		}
	}
}

func (c *Consumer) recordReceipt(meta MessageMeta) {
	atomic.StoreInt64(&c.lastMessageUnix, time.Now().Unix())
	atomic.StoreUint32(&c.lastSenderPID, meta.SenderPID)
}

// producerAlive reports whether the most recently seen sender still
// appears to be running. If a message arrived recently, the producer is
// assumed alive without paying for a syscall; otherwise it checks the
// last sender's pid directly.
func (c *Consumer) producerAlive() bool {
	last := atomic.LoadInt64(&c.lastMessageUnix)
	if last > 0 && time.Now().Unix()-last < int64(producerLivenessGrace.Seconds()) {
		return true
	}

	pid := atomic.LoadUint32(&c.lastSenderPID)
	if pid == 0 {
		// No message has ever been received; nothing to declare dead.
		return true
	}
	return isProcessAlive(int(pid))
}

// ChannelID returns the id of the channel this consumer reads from.
func (c *Consumer) ChannelID() uint32 { return c.channelID }
