package dmxp

import (
	"sync/atomic"
	"time"
)

// Producer is a stateful handle around a Ring that assigns monotonic
// per-producer message ids and stamps each message with the sending
// process's identity.
type Producer struct {
	ring          *Ring
	channelID     uint32
	pid           uint32
	seqCounter    uint64
	messageType   uint32
	senderRuntime uint16
}

// NewProducer creates a Producer bound to ring, with sequence numbering
// starting at 0.
func NewProducer(ring *Ring) *Producer {
	return &Producer{
		ring:          ring,
		channelID:     ring.ChannelID(),
		pid:           currentPID(),
		senderRuntime: RuntimeGo,
	}
}

// RuntimeGo identifies this package's own runtime in MessageMeta.SenderRuntime.
// Other runtime ids are reserved for non-Go attachers to define on their
// side; this package only ever writes RuntimeGo.
const RuntimeGo uint16 = 2

func (p *Producer) nextMeta(payloadLen int) MessageMeta {
	id := atomic.AddUint64(&p.seqCounter, 1) - 1
	return MessageMeta{
		MessageID:     id,
		TimestampNs:   uint64(time.Now().UnixNano()),
		ChannelID:     p.channelID,
		MessageType:   p.messageType,
		SenderPID:     p.pid,
		SenderRuntime: p.senderRuntime,
		PayloadLen:    uint32(payloadLen),
	}
}

// Send enqueues a single message, returning ErrFull if the ring has no
// room right now.
func (p *Producer) Send(payload []byte) error {
	return p.ring.Send(p.nextMeta(len(payload)), payload)
}

// SendWithTimeout enqueues a single message, retrying with backoff until
// timeout elapses.
func (p *Producer) SendWithTimeout(payload []byte, timeout time.Duration) error {
	return p.ring.SendWithTimeout(p.nextMeta(len(payload)), payload, timeout)
}

// SendBatch enqueues all of payloads atomically (all-or-nothing), each
// getting a contiguous message id.
func (p *Producer) SendBatch(payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	base := atomic.AddUint64(&p.seqCounter, uint64(len(payloads))) - uint64(len(payloads))
	now := uint64(time.Now().UnixNano())

	metas := make([]MessageMeta, len(payloads))
	for i, payload := range payloads {
		metas[i] = MessageMeta{
			MessageID:     base + uint64(i),
			TimestampNs:   now,
			ChannelID:     p.channelID,
			MessageType:   p.messageType,
			SenderPID:     p.pid,
			SenderRuntime: p.senderRuntime,
			PayloadLen:    uint32(len(payload)),
		}
	}
	return p.ring.SendBatch(metas, payloads)
}

// WithMessageType sets the message_type tag applied to subsequently sent
// messages.
func (p *Producer) WithMessageType(t uint32) *Producer {
	p.messageType = t
	return p
}

// ChannelID returns the id of the channel this producer writes to.
func (p *Producer) ChannelID() uint32 { return p.channelID }
