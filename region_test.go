package dmxp

import (
	"path/filepath"
	"testing"
)

func TestOpenOrCreate_FreshRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	r, err := OpenOrCreate(path, GlobalHeaderSize+1<<20)
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	defer r.Close()

	if r.header.Magic != Magic {
		t.Fatalf("magic = 0x%x, want 0x%x", r.header.Magic, Magic)
	}
	if r.header.Version != Version {
		t.Fatalf("version = %d, want %d", r.header.Version, Version)
	}
	if r.header.ChannelCount != 0 {
		t.Fatalf("channel count = %d, want 0", r.header.ChannelCount)
	}
}

func TestOpenOrCreate_Reattach(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	r1, err := OpenOrCreate(path, GlobalHeaderSize+1<<20)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := r1.CreateChannel(3, 16); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if err := r1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r2, err := OpenOrCreate(path, GlobalHeaderSize+1<<20)
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	defer r2.Close()

	entry, ok := r2.FindChannel(3)
	if !ok {
		t.Fatal("expected channel 3 to survive reattach")
	}
	if entry.Capacity != 16 {
		t.Fatalf("capacity = %d, want 16", entry.Capacity)
	}
}

func TestOpenOrCreate_RegionTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	_, err := OpenOrCreate(path, GlobalHeaderSize-1)
	if err == nil {
		t.Fatal("expected error for undersized region")
	}
}

func TestOpenOrCreate_LayoutMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	r, err := OpenOrCreate(path, GlobalHeaderSize+1<<20)
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	r.header.Version = Version + 1
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err = OpenOrCreate(path, GlobalHeaderSize+1<<20)
	if err == nil {
		t.Fatal("expected layout mismatch error on reattach")
	}
}
