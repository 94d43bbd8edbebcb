// Package dmxp implements a cross-process, cross-language, lock-free
// message queue backed by a single memory-mapped region.
//
// A Region owns the backing file and its mapping. A directory allocates
// and looks up up to 256 independent Ring channels inside that region.
// Each Ring is a fixed-capacity Vyukov-style MPMC sequence ring: producers
// and consumers claim slots with an atomic compare-and-swap on a cursor and
// coordinate hand-off through a per-slot sequence number, with no kernel
// mediation and no serialization on the fast path.
//
// Producer and Consumer wrap a Ring with the bookkeeping most callers
// want on top of the raw claim/publish protocol: monotonic per-producer
// message IDs and a liveness heuristic consumers use to decide whether a
// stalled channel has a producer still capable of making progress. A
// StallWatchdog turns that heuristic into a background supervisor that
// can run a recovery callback when a channel stops draining.
//
// DumpDiagnostics renders a point-in-time, zstd-compressed snapshot of a
// region's header and channel cursors for out-of-band inspection; it
// never touches slot payloads, so it has no bearing on the wire format
// producers and consumers exchange.
package dmxp
