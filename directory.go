package dmxp

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

// isPowerOfTwo reports whether v is a power of two and non-zero.
func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// directory is the channel-allocation view over a Region: it owns the
// scan-and-claim logic that turns a requested capacity into a reserved
// band of slots inside the region.
type directory struct {
	mu     sync.Mutex
	region *Region
}

func newDirectory(r *Region) *directory {
	return &directory{region: r}
}

// entryAt returns a pointer to the channel entry at index i. Callers must
// hold no assumptions about the entry's InUse state until checking it.
func (d *directory) entryAt(i int) *ChannelEntry {
	return &d.region.header.Channels[i]
}

// find returns the entry for channelID if it is in use.
func (d *directory) find(channelID uint32) (*ChannelEntry, bool) {
	if channelID >= MaxChannels {
		return nil, false
	}
	entry := d.entryAt(int(channelID))
	if !entry.InUse() {
		return nil, false
	}
	return entry, true
}

// create reserves a new band of capacity slots for channelID. If the
// channel already exists, this is a no-op when its capacity matches and
// ErrChannelExists otherwise.
func (d *directory) create(channelID uint32, capacity uint64) (*ChannelEntry, error) {
	if channelID >= MaxChannels {
		return nil, fmt.Errorf("%w: channel id %d >= %d", ErrDirectoryFull, channelID, MaxChannels)
	}
	if !isPowerOfTwo(capacity) || capacity < 2 {
		return nil, ErrCapacityInvalid
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry := d.entryAt(int(channelID))
	if entry.InUse() {
		if entry.Capacity == capacity {
			return entry, nil
		}
		return nil, fmt.Errorf("%w: channel %d has capacity %d, requested %d", ErrChannelExists, channelID, entry.Capacity, capacity)
	}

	// The band-offset scan below reads every entry's BandOffset/Capacity to
	// find the next free offset; d.mu only serializes goroutines within
	// this process, so without the cross-process lock two processes
	// creating different channel ids at nearly the same time could both
	// scan before the other's band is visible and compute overlapping
	// offsets.
	if err := d.region.lock(5 * time.Second); err != nil {
		return nil, fmt.Errorf("%w: acquiring directory lock: %v", ErrIO, err)
	}
	defer d.region.unlock()

	// Re-check now that the cross-process lock is held: another process
	// may have created this exact channel while we waited for it.
	if entry.InUse() {
		if entry.Capacity == capacity {
			return entry, nil
		}
		return nil, fmt.Errorf("%w: channel %d has capacity %d, requested %d", ErrChannelExists, channelID, entry.Capacity, capacity)
	}

	bandSize := capacity * SlotSize
	offset := uint64(GlobalHeaderSize)
	for i := 0; i < MaxChannels; i++ {
		other := d.entryAt(i)
		if !other.InUse() {
			continue
		}
		end := other.BandOffset + other.Capacity*SlotSize
		if end > offset {
			offset = end
		}
	}

	regionSize := uint64(d.region.Size())
	if offset+bandSize > regionSize {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, region is %d bytes", ErrInsufficientRegion, bandSize, offset, regionSize)
	}

	entry.ChannelID = channelID
	entry.Flags = 0
	entry.BandOffset = offset
	entry.StoreTail(0)
	entry.StoreHead(0)

	// Slot sequences must be initialized and visible before Capacity is
	// published: InUse() gates purely on Capacity, so any concurrent
	// attacher that observes InUse()==true must already see every slot's
	// sequence primed to its index, not the mapping's zero-fill (which is
	// only correct for slot 0).
	slots := d.region.slotsAt(offset, capacity)
	for i := range slots {
		slots[i].storeSequenceRelaxed(uint64(i))
	}

	// Capacity is published last via an atomic store: InUse() keys off it
	// with an atomic load, so a concurrent reader in another process sees
	// either a fully-zeroed or fully-populated entry, never a partial one.
	atomic.StoreUint64(&entry.Capacity, capacity)

	d.region.incrementChannelCount()

	d.region.logger.Info("channel created", "channel_id", channelID, "capacity", capacity, "band_offset", offset)
	return entry, nil
}

// slotsAt returns a slice view of capacity Slot values starting at byte
// offset within the region, aliasing the mapped memory directly.
func (r *Region) slotsAt(offset, capacity uint64) []Slot {
	ptr := unsafe.Pointer(&r.data[offset])
	return unsafe.Slice((*Slot)(ptr), int(capacity))
}

func (r *Region) incrementChannelCount() {
	atomic.AddUint32(&r.header.ChannelCount, 1)
}
