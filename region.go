package dmxp

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"
)

// DefaultRegionSize is the default backing file size.
const DefaultRegionSize int64 = 128 << 20

// DefaultRegionPath is the conventional POSIX tmpfs location for the
// backing file.
const DefaultRegionPath = "/dev/shm/dmxp_alloc"

// Region owns the backing file and its memory mapping. It is the leaf
// component that the directory and Ring types are both views over.
type Region struct {
	mu   sync.Mutex
	file *os.File
	data []byte
	path string

	header *GlobalHeader
	dir    *directory

	logger  Logger
	metrics MetricsProvider
}

// OpenOrCreate opens the backing file at path, truncating/extending it to
// size if necessary, and maps it MAP_SHARED. If the region is freshly
// created (first 8 bytes are zero) it is initialized; otherwise its magic
// and version are validated against this package's constants.
func OpenOrCreate(path string, size int64, opts ...RegionOption) (*Region, error) {
	cfg := regionOptions{logger: NoOpLogger{}, metrics: NewAtomicMetrics()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if size < GlobalHeaderSize {
		return nil, fmt.Errorf("%w: region size %d smaller than header size %d", ErrInsufficientRegion, size, GlobalHeaderSize)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}
	if stat.Size() < size {
		if err := file.Truncate(size); err != nil {
			file.Close()
			return nil, fmt.Errorf("%w: truncate %s to %d: %v", ErrIO, path, size, err)
		}
	}

	data, err := syscall.Mmap(int(file.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrIO, path, err)
	}

	r := &Region{
		file:    file,
		data:    data,
		path:    path,
		header:  (*GlobalHeader)(unsafe.Pointer(&data[0])),
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}

	if err := r.initOrValidate(); err != nil {
		syscall.Munmap(data)
		file.Close()
		return nil, err
	}

	r.dir = newDirectory(r)

	return r, nil
}

// CreateChannel reserves a band of capacity slots for channelID. It is a
// no-op if the channel already exists with the same capacity.
func (r *Region) CreateChannel(channelID uint32, capacity uint64) (*ChannelEntry, error) {
	return r.dir.create(channelID, capacity)
}

// FindChannel looks up an existing channel by id.
func (r *Region) FindChannel(channelID uint32) (*ChannelEntry, bool) {
	return r.dir.find(channelID)
}

// regionOptions and RegionOption follow this package's functional-options
// convention for optional collaborators (logger, metrics).
type regionOptions struct {
	logger  Logger
	metrics MetricsProvider
}

// RegionOption configures optional Region collaborators.
type RegionOption func(*regionOptions)

// WithRegionLogger injects a Logger; the default is NoOpLogger.
func WithRegionLogger(l Logger) RegionOption {
	return func(o *regionOptions) { o.logger = l }
}

// WithRegionMetrics injects a MetricsProvider; the default is a fresh
// AtomicMetrics.
func WithRegionMetrics(m MetricsProvider) RegionOption {
	return func(o *regionOptions) { o.metrics = m }
}

// initOrValidate implements the magic-then-version init handshake: a
// zero magic means "not yet initialized", in which case this process
// zeroes the header fields and writes magic last so that any concurrent
// attacher either sees a fully-zeroed header or a fully initialized one,
// never something in between.
func (r *Region) initOrValidate() error {
	magicPtr := (*uint64)(unsafe.Pointer(&r.header.Magic))
	magic := atomic.LoadUint64(magicPtr)

	if magic == 0 {
		return r.initializeFresh(magicPtr)
	}

	if magic != Magic {
		return fmt.Errorf("%w: got magic 0x%x, want 0x%x", ErrLayoutMismatch, magic, Magic)
	}
	if r.header.Version != Version {
		return fmt.Errorf("%w: got version %d, want %d", ErrLayoutMismatch, r.header.Version, Version)
	}
	return nil
}

func (r *Region) initializeFresh(magicPtr *uint64) error {
	// Only one process should race through this; others block on the
	// file lock and then re-check magic below. Locking the backing file
	// itself makes the winner
	// deterministic instead of relying purely on the spin-on-magic
	// handshake, which keeps the window where readers might observe a
	// half-written header as short as possible.
	if err := r.lock(5 * time.Second); err != nil {
		return fmt.Errorf("%w: acquiring init lock: %v", ErrIO, err)
	}
	defer r.unlock()

	if atomic.LoadUint64(magicPtr) != 0 {
		// Someone else initialized while we waited for the lock.
		return r.validateExisting()
	}

	r.header.Version = Version
	r.header.MaxChannelsN = MaxChannels
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&r.header.ChannelCount)), 0)
	for i := range r.header.Channels {
		r.header.Channels[i] = ChannelEntry{}
	}

	// Publish magic last: this is the linearization point after which a
	// spinning attacher may trust every other field.
	atomic.StoreUint64(magicPtr, Magic)
	r.logger.Info("region initialized", "path", r.path, "size", len(r.data))
	return nil
}

func (r *Region) validateExisting() error {
	if r.header.Magic != Magic {
		return fmt.Errorf("%w: got magic 0x%x, want 0x%x", ErrLayoutMismatch, r.header.Magic, Magic)
	}
	if r.header.Version != Version {
		return fmt.Errorf("%w: got version %d, want %d", ErrLayoutMismatch, r.header.Version, Version)
	}
	return nil
}

// lock acquires an exclusive advisory lock on the region's own backing
// file, retrying until it succeeds or timeout elapses. There is exactly
// one region per backing file, so the lock lives directly on r.file
// rather than a sidecar lock file: the region-init handshake and
// channel-directory mutations both serialize on it, and since each
// process holds its own *os.File for the same path, flock still
// arbitrates correctly across process boundaries.
func (r *Region) lock(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := syscall.Flock(int(r.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return nil
		}
		if err != syscall.EWOULDBLOCK && err != syscall.EAGAIN {
			return err
		}
		if !time.Now().Before(deadline) {
			return syscall.ETIMEDOUT
		}
		time.Sleep(time.Millisecond)
	}
}

// unlock releases the lock acquired by lock.
func (r *Region) unlock() error {
	return syscall.Flock(int(r.file.Fd()), syscall.LOCK_UN)
}

// Open attaches to (creating if necessary) the region described by cfg,
// composing RegionConfig/LogConfig/MetricsConfig the way DefaultConfig
// assembles them. It is the normal entry point for an application; the
// lower-level OpenOrCreate is for callers that want to bypass Config
// entirely.
func Open(cfg Config) (*Region, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	opts := []RegionOption{WithRegionLogger(createLogger(cfg.Log))}
	if cfg.Metrics.Provider != nil {
		opts = append(opts, WithRegionMetrics(cfg.Metrics.Provider))
	}

	return OpenOrCreate(cfg.Region.Path, cfg.Region.Size, opts...)
}

// Base returns the raw mapped bytes backing the region.
func (r *Region) Base() []byte {
	return r.data
}

// Size returns the size in bytes of the mapping.
func (r *Region) Size() int64 {
	return int64(len(r.data))
}

// Path returns the backing file's path.
func (r *Region) Path() string {
	return r.path
}

// Close unmaps the region and closes the backing file. It does not remove
// the file: the region persists until removed or the host reboots.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	if r.data != nil {
		if err := syscall.Munmap(r.data); err != nil {
			firstErr = fmt.Errorf("%w: munmap: %v", ErrIO, err)
		}
		r.data = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: close: %v", ErrIO, err)
		}
		r.file = nil
	}
	return firstErr
}
