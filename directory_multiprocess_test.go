package dmxp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

// TestCreateChannel_CrossProcessNoOverlappingBands spawns several separate
// OS processes that each race to create a distinct new channel against the
// same backing file, then checks from the parent that none of the
// resulting bands overlap. The in-process directory mutex cannot protect
// against this: it only serializes goroutines within one process.
func TestCreateChannel_CrossProcessNoOverlappingBands(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping cross-process test in short mode")
	}

	if workerIDStr := os.Getenv("DMXP_MPROC_WORKER"); workerIDStr != "" {
		runCreateChannelWorker(t, workerIDStr)
		return
	}
	if os.Getenv("GO_TEST_SUBPROCESS") == "1" {
		t.Skip("skipping in subprocess to prevent recursion")
		return
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "region")

	executable, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}

	const numWorkers = 8
	var wg sync.WaitGroup
	results := make(chan string, numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(channelID int) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			cmd := exec.CommandContext(ctx, executable,
				"-test.run", "^TestCreateChannel_CrossProcessNoOverlappingBands$", "-test.v")
			cmd.Env = append(os.Environ(),
				fmt.Sprintf("DMXP_MPROC_WORKER=%d", channelID),
				fmt.Sprintf("DMXP_MPROC_PATH=%s", path),
				"GO_TEST_SUBPROCESS=1",
			)

			output, err := cmd.CombinedOutput()
			if err != nil {
				results <- fmt.Sprintf("worker %d failed: %v\n%s", channelID, err, output)
				return
			}
			results <- ""
		}(i)
	}

	wg.Wait()
	close(results)

	for msg := range results {
		if msg != "" {
			t.Error(msg)
		}
	}

	r, err := OpenOrCreate(path, GlobalHeaderSize+4<<20)
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	defer r.Close()

	var entries []*ChannelEntry
	for id := uint32(0); id < numWorkers; id++ {
		entry, ok := r.FindChannel(id)
		if !ok {
			t.Errorf("channel %d was not created by any worker", id)
			continue
		}
		entries = append(entries, entry)
	}

	for i, a := range entries {
		aEnd := a.BandOffset + a.Capacity*SlotSize
		for j, b := range entries {
			if i == j {
				continue
			}
			bEnd := b.BandOffset + b.Capacity*SlotSize
			overlaps := a.BandOffset < bEnd && b.BandOffset < aEnd
			if overlaps {
				t.Errorf("channel %d band [%d,%d) overlaps channel %d band [%d,%d)",
					a.ChannelID, a.BandOffset, aEnd, b.ChannelID, b.BandOffset, bEnd)
			}
		}
	}
}

func runCreateChannelWorker(t *testing.T, workerIDStr string) {
	channelID, err := strconv.Atoi(workerIDStr)
	if err != nil {
		t.Fatalf("bad worker id %q: %v", workerIDStr, err)
	}
	path := os.Getenv("DMXP_MPROC_PATH")

	r, err := OpenOrCreate(path, GlobalHeaderSize+4<<20)
	if err != nil {
		t.Fatalf("worker %d: OpenOrCreate: %v", channelID, err)
	}
	defer r.Close()

	if _, err := r.CreateChannel(uint32(channelID), 16); err != nil {
		t.Fatalf("worker %d: CreateChannel: %v", channelID, err)
	}
}
