package dmxp

// RegionConfig controls the backing file a Region maps.
type RegionConfig struct {
	Path string `json:"path"` // backing file path, default DefaultRegionPath
	Size int64  `json:"size"` // mapping size in bytes, default DefaultRegionSize
}

// ChannelConfig controls the default capacity used when a channel is
// created without an explicit one.
type ChannelConfig struct {
	DefaultCapacity uint64 `json:"default_capacity"` // must be a power of two
}

// MetricsConfig selects the MetricsProvider a Region/Ring should use.
type MetricsConfig struct {
	Provider MetricsProvider `json:"-"` // nil means a fresh AtomicMetrics
}

// Config is the complete configuration for attaching to or creating a
// region, composed from per-concern sub-configs.
type Config struct {
	Region  RegionConfig  `json:"region"`
	Channel ChannelConfig `json:"channel"`
	Backoff BackoffConfig `json:"backoff"`
	Log     LogConfig     `json:"log"`
	Metrics MetricsConfig `json:"-"`
}

// DefaultConfig returns sensible defaults for a single-host, multi-process
// deployment.
func DefaultConfig() Config {
	return Config{
		Region: RegionConfig{
			Path: DefaultRegionPath,
			Size: DefaultRegionSize,
		},
		Channel: ChannelConfig{
			DefaultCapacity: 1024,
		},
		Backoff: DefaultBackoffConfig(),
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LowLatencyConfig returns a config tuned for producers/consumers that
// expect very short queuing delay: a tighter minimum spin before
// yielding, at the cost of more CPU burned while idle.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Backoff.MinSpin = 1000
	cfg.Backoff.YieldEvery = 256
	return cfg
}

// validateConfig fills in zero-valued fields with defaults and rejects
// invalid combinations.
func validateConfig(cfg *Config) error {
	if cfg.Region.Path == "" {
		cfg.Region.Path = DefaultRegionPath
	}
	if cfg.Region.Size <= 0 {
		cfg.Region.Size = DefaultRegionSize
	}
	if cfg.Channel.DefaultCapacity == 0 {
		cfg.Channel.DefaultCapacity = 1024
	}
	if !isPowerOfTwo(cfg.Channel.DefaultCapacity) {
		return ErrCapacityInvalid
	}
	if cfg.Backoff.SpinLimit == 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	return nil
}
