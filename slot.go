package dmxp

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// MaxPayload is the largest payload a single slot can carry inline.
const MaxPayload = 960

// SlotSize is the exact byte stride between consecutive slots in a
// channel's band.
const SlotSize = 1088

// MessageMetaSize is the exact byte size of MessageMeta.
const MessageMetaSize = 40

// MessageMeta is the transport-only metadata that precedes each payload.
// Field order and sizes are fixed by the wire layout every producer and
// consumer must agree on, regardless of language; the trailing 4 bytes
// of padding that bring it from 36 to 40 bytes come from Go's natural
// alignment of a struct containing uint64 fields.
type MessageMeta struct {
	MessageID     uint64
	TimestampNs   uint64
	ChannelID     uint32
	MessageType   uint32
	SenderPID     uint32
	SenderRuntime uint16
	Flags         uint16
	PayloadLen    uint32
}

// Slot is one cell of a channel's ring. It is located at
// band_offset + slot_index*SlotSize.
type Slot struct {
	sequence uint64 // 0-7: atomic, see header.go's comment on raw fields

	Meta MessageMeta // 8-47

	_pad0 [16]byte // 48-63

	Payload [MaxPayload]byte // 64-1023

	_pad1 [64]byte // 1024-1087
}

const (
	messageMetaSizeCheck = unsafe.Sizeof(MessageMeta{})
	slotSizeCheck        = unsafe.Sizeof(Slot{})
)

func init() {
	if messageMetaSizeCheck != MessageMetaSize {
		panic(fmt.Sprintf("MessageMeta must be exactly %d bytes, got %d", MessageMetaSize, messageMetaSizeCheck))
	}
	if slotSizeCheck != SlotSize {
		panic(fmt.Sprintf("Slot must be exactly %d bytes, got %d", SlotSize, slotSizeCheck))
	}
	if unsafe.Offsetof(Slot{}.Payload) != 64 {
		panic("Slot.Payload must start at offset 64")
	}
}

// Sequence returns the slot's current sequence number.
func (s *Slot) Sequence() uint64 {
	return atomic.LoadUint64(&s.sequence)
}

// storeSequenceRelaxed is used only during ring initialization, before the
// slot is visible to any other producer or consumer.
func (s *Slot) storeSequenceRelaxed(v uint64) {
	atomic.StoreUint64(&s.sequence, v)
}

// publishSequence is the release-store that makes a slot's meta+payload
// visible to other processes attached to the same mapping.
func (s *Slot) publishSequence(v uint64) {
	atomic.StoreUint64(&s.sequence, v)
}

// encode writes meta and payload into the slot. Caller must have already
// claimed the slot (observed sequence == expected) and must publish the
// new sequence afterward; encode itself never touches sequence.
func (s *Slot) encode(meta MessageMeta, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: payload is %d bytes, max %d", ErrPayloadTooLarge, len(payload), MaxPayload)
	}
	meta.PayloadLen = uint32(len(payload))
	s.Meta = meta
	copy(s.Payload[:], payload)
	return nil
}

// decode copies the slot's meta and payload_len bytes of payload into buf,
// returning the meta and the number of bytes written. buf must hold at
// least payload_len bytes, otherwise ErrBufferTooSmall is returned; a
// MaxPayload-sized buf always suffices. Callers that want a tight copy
// should slice buf with the returned length.
func (s *Slot) decode(buf []byte) (MessageMeta, int, error) {
	meta := s.Meta
	n := int(meta.PayloadLen)
	if n > MaxPayload {
		return MessageMeta{}, 0, fmt.Errorf("%w: decoded payload_len %d exceeds %d", ErrCorruption, n, MaxPayload)
	}
	if len(buf) < n {
		return MessageMeta{}, 0, fmt.Errorf("%w: buffer is %d bytes, need %d", ErrBufferTooSmall, len(buf), n)
	}
	copy(buf[:n], s.Payload[:n])
	return meta, n, nil
}
