package rangefetch

import "time"

// Config is the immutable configuration shared across every fetch issued
// by a [RangeRequestClient] or [FileDownloader]. It is never mutated in
// place; use [Config.CopyWith] to derive a variant.
type Config struct {
	// ChunkSize is the byte length of each range request (§3). Default
	// 10 MiB.
	ChunkSize int64

	// MaxConcurrentRequests bounds the number of in-flight range
	// requests. Default 8.
	MaxConcurrentRequests int

	// Headers are merged into every HTTP request the engine issues.
	Headers map[string]string

	// MaxRetries is the number of retries permitted per request, on top
	// of the initial attempt. Default 3.
	MaxRetries int

	// RetryDelay is the initial backoff delay for the retry policy
	// (§4.1). Default 1s.
	RetryDelay time.Duration

	// TempFileExtension suffixes the in-progress file path. Default
	// ".tmp".
	TempFileExtension string

	// ConnectionTimeout bounds each individual HTTP call (HEAD, range
	// GET, whole-body GET). Default 30s.
	ConnectionTimeout time.Duration

	// ProgressInterval is how often the periodic progress timer fires.
	// Default 500ms.
	ProgressInterval time.Duration
}

// DefaultConfig returns a Config populated with the defaults from §3.
func DefaultConfig() Config {
	return Config{
		ChunkSize:             10 * 1024 * 1024,
		MaxConcurrentRequests: 8,
		Headers:               map[string]string{},
		MaxRetries:            3,
		RetryDelay:            time.Second,
		TempFileExtension:     ".tmp",
		ConnectionTimeout:     30 * time.Second,
		ProgressInterval:      500 * time.Millisecond,
	}
}

// ConfigOption mutates a candidate Config; used by [Config.CopyWith].
type ConfigOption func(*Config)

// WithChunkSize overrides ChunkSize.
func WithChunkSize(n int64) ConfigOption { return func(c *Config) { c.ChunkSize = n } }

// WithMaxConcurrentRequests overrides MaxConcurrentRequests.
func WithMaxConcurrentRequests(n int) ConfigOption {
	return func(c *Config) { c.MaxConcurrentRequests = n }
}

// WithHeaders overrides Headers.
func WithHeaders(h map[string]string) ConfigOption { return func(c *Config) { c.Headers = h } }

// WithMaxRetries overrides MaxRetries.
func WithMaxRetries(n int) ConfigOption { return func(c *Config) { c.MaxRetries = n } }

// WithRetryDelay overrides RetryDelay.
func WithRetryDelay(d time.Duration) ConfigOption { return func(c *Config) { c.RetryDelay = d } }

// WithTempFileExtension overrides TempFileExtension.
func WithTempFileExtension(ext string) ConfigOption {
	return func(c *Config) { c.TempFileExtension = ext }
}

// WithConnectionTimeout overrides ConnectionTimeout.
func WithConnectionTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.ConnectionTimeout = d }
}

// WithProgressInterval overrides ProgressInterval.
func WithProgressInterval(d time.Duration) ConfigOption {
	return func(c *Config) { c.ProgressInterval = d }
}

// CopyWith returns a copy of c with the given options applied. Headers is
// copied element-wise so the original map is never mutated. CopyWith with
// no options produces a Config equal field-wise to the original.
func (c Config) CopyWith(opts ...ConfigOption) Config {
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	c.Headers = headers

	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c Config) normalized() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultConfig().ChunkSize
	}
	if c.MaxConcurrentRequests < 1 {
		c.MaxConcurrentRequests = DefaultConfig().MaxConcurrentRequests
	}
	if c.Headers == nil {
		c.Headers = map[string]string{}
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultConfig().MaxRetries
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = DefaultConfig().RetryDelay
	}
	if c.TempFileExtension == "" {
		c.TempFileExtension = DefaultConfig().TempFileExtension
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = DefaultConfig().ConnectionTimeout
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultConfig().ProgressInterval
	}
	return c
}
