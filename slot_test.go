package dmxp

import (
	"bytes"
	"testing"
)

func TestSlot_EncodeDecodeRoundTrip(t *testing.T) {
	var s Slot
	meta := MessageMeta{MessageID: 7, ChannelID: 1, SenderPID: 1234}
	payload := []byte("hello, dmxp")

	if err := s.encode(meta, payload); err != nil {
		t.Fatalf("encode: %v", err)
	}

	buf := make([]byte, MaxPayload)
	decodedMeta, n, err := s.decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("n = %d, want %d", n, len(payload))
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("payload = %q, want %q", buf[:n], payload)
	}
	if decodedMeta.MessageID != meta.MessageID {
		t.Fatalf("message id = %d, want %d", decodedMeta.MessageID, meta.MessageID)
	}
	if decodedMeta.PayloadLen != uint32(len(payload)) {
		t.Fatalf("payload_len = %d, want %d", decodedMeta.PayloadLen, len(payload))
	}
}

func TestSlot_EncodeRejectsOversizedPayload(t *testing.T) {
	var s Slot
	payload := make([]byte, MaxPayload+1)

	if err := s.encode(MessageMeta{}, payload); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}

func TestSlot_DecodeRejectsBufferTooSmall(t *testing.T) {
	var s Slot
	payload := []byte("twelve bytes")
	if err := s.encode(MessageMeta{}, payload); err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, _, err := s.decode(make([]byte, 4))
	if err == nil {
		t.Fatal("expected error for undersized destination buffer")
	}
}

func TestSlot_DecodeRejectsCorruptPayloadLen(t *testing.T) {
	var s Slot
	s.Meta.PayloadLen = MaxPayload + 1

	_, _, err := s.decode(make([]byte, MaxPayload))
	if err == nil {
		t.Fatal("expected corruption error for out-of-range payload_len")
	}
}

func TestSlot_SequencePublishIsVisible(t *testing.T) {
	var s Slot
	s.storeSequenceRelaxed(0)
	if got := s.Sequence(); got != 0 {
		t.Fatalf("sequence = %d, want 0", got)
	}
	s.publishSequence(1)
	if got := s.Sequence(); got != 1 {
		t.Fatalf("sequence = %d, want 1", got)
	}
}
