package dmxp

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// ChannelDiagnostic is a point-in-time view of one channel's cursors and
// derived fill level, used only for support-bundle capture, never for
// replay or persistence.
type ChannelDiagnostic struct {
	ChannelID  uint32 `json:"channel_id"`
	Capacity   uint64 `json:"capacity"`
	BandOffset uint64 `json:"band_offset"`
	Tail       uint64 `json:"tail"`
	Head       uint64 `json:"head"`
	Len        uint64 `json:"len"`
}

// RegionDiagnostic is the full snapshot written by DumpDiagnostics.
type RegionDiagnostic struct {
	Version      uint32              `json:"version"`
	ChannelCount uint32              `json:"channel_count"`
	Channels     []ChannelDiagnostic `json:"channels"`
}

// DumpDiagnostics walks the region's header and every live channel entry
// into a JSON snapshot, then writes it zstd-compressed to w. It never
// touches slot payloads: only header and cursor metadata are captured, so
// it is safe to call against a live region without pausing producers or
// consumers.
func (r *Region) DumpDiagnostics(w io.Writer) error {
	snapshot := RegionDiagnostic{
		Version:      r.header.Version,
		ChannelCount: r.header.ChannelCount,
	}

	for i := 0; i < MaxChannels; i++ {
		entry := &r.header.Channels[i]
		if !entry.InUse() {
			continue
		}
		tail := entry.Tail()
		head := entry.Head()
		length := uint64(0)
		if tail >= head {
			length = tail - head
		}
		snapshot.Channels = append(snapshot.Channels, ChannelDiagnostic{
			ChannelID:  entry.ChannelID,
			Capacity:   entry.Capacity,
			BandOffset: entry.BandOffset,
			Tail:       tail,
			Head:       head,
			Len:        length,
		})
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("%w: marshal diagnostics: %v", ErrIO, err)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("%w: create zstd encoder: %v", ErrIO, err)
	}
	if _, err := enc.Write(payload); err != nil {
		enc.Close()
		return fmt.Errorf("%w: write diagnostics: %v", ErrIO, err)
	}
	return enc.Close()
}
