package rangefetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/halvardor/rangepull/internal/httpclient"
	"github.com/halvardor/rangepull/internal/retry"
	"github.com/halvardor/rangepull/internal/scheduler"
)

// RangeRequestClient is the public entry point for fetching one resource
// (§4.6). It owns no per-fetch state itself; each [RangeRequestClient.Fetch]
// call builds its own scheduler (or serial fallback) and cancellation
// bookkeeping.
type RangeRequestClient struct {
	cfg     Config
	factory httpclient.ClientFactory
	tokens  *CancelTokenGroup
}

// NewRangeRequestClient returns a client using cfg (normalized against
// [DefaultConfig]) and factory. A nil factory uses [httpclient.New].
func NewRangeRequestClient(cfg Config, factory httpclient.ClientFactory) *RangeRequestClient {
	if factory == nil {
		factory = httpclient.New()
	}
	return &RangeRequestClient{
		cfg:     cfg.normalized(),
		factory: factory,
		tokens:  NewCancelTokenGroup(),
	}
}

// CheckServerInfo issues the configured HEAD request (§4.4).
func (c *RangeRequestClient) CheckServerInfo(ctx context.Context, url string) (ServerInfo, error) {
	return probeServer(ctx, c.factory, url, c.cfg.Headers, c.cfg.ConnectionTimeout)
}

// CancelAll cancels every token this client has created or adopted.
func (c *RangeRequestClient) CancelAll() { c.tokens.CancelAll() }

// ClearTokens drops this client's token references without cancelling them.
func (c *RangeRequestClient) ClearTokens() { c.tokens.Clear() }

// FetchOptions configures a single [RangeRequestClient.Fetch] call.
type FetchOptions struct {
	// ContentLength and AcceptRanges, if both set, skip the HEAD probe.
	ContentLength *int64
	AcceptRanges  *bool

	// StartBytes is the resume offset; bytes before it are not fetched.
	StartBytes int64

	// CancelToken adopts an existing token instead of creating one.
	CancelToken *CancelToken

	// OnProgress, if set, is invoked periodically and once more after the
	// stream ends.
	OnProgress ProgressFunc
}

// Fetch returns a lazily-pulled, strictly ordered byte stream for url
// (§4.6). The returned [io.ReadCloser] must be closed by the caller once
// it is done, even after a full read to EOF, to release the timer and
// cancellation machinery.
func (c *RangeRequestClient) Fetch(ctx context.Context, url string, opts FetchOptions) (io.ReadCloser, error) {
	token := opts.CancelToken
	if token == nil {
		token = c.tokens.CreateToken()
	} else {
		c.tokens.AddToken(token)
	}

	info, err := c.resolveServerInfo(ctx, url, opts)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithCancel(ctx)

	stream := &byteStream{
		ctx:        fetchCtx,
		cancel:     cancel,
		total:      info.ContentLength,
		onProgress: opts.OnProgress,
	}
	stream.received.Store(opts.StartBytes)

	if info.AcceptRanges {
		ranges := scheduler.Plan(info.ContentLength, c.cfg.ChunkSize, opts.StartBytes)
		sched := scheduler.New(scheduler.Config{
			URL:               url,
			Headers:           c.cfg.Headers,
			MaxConcurrent:     c.cfg.MaxConcurrentRequests,
			MaxRetries:        c.cfg.MaxRetries,
			RetryDelay:        c.cfg.RetryDelay,
			ConnectionTimeout: c.cfg.ConnectionTimeout,
			Factory:           c.factory,
			Token:             token,
			OnChunkComplete:   func(n int64) { stream.received.Add(n) },
		}, ranges)

		if err := sched.StartInitialFetches(fetchCtx); err != nil {
			cancel()
			return nil, classifyFetchError(err)
		}
		stream.sched = sched
	} else {
		data, err := c.serialFetchWithRetry(fetchCtx, url, token)
		if err != nil {
			cancel()
			return nil, classifyFetchError(err)
		}
		stream.serial = io.NopCloser(bytes.NewReader(data))
	}

	if opts.OnProgress != nil {
		stream.startProgressTimer(c.cfg.ProgressInterval)
	}

	return stream, nil
}

func (c *RangeRequestClient) resolveServerInfo(ctx context.Context, url string, opts FetchOptions) (ServerInfo, error) {
	if opts.ContentLength != nil && opts.AcceptRanges != nil {
		return ServerInfo{ContentLength: *opts.ContentLength, AcceptRanges: *opts.AcceptRanges}, nil
	}
	return c.CheckServerInfo(ctx, url)
}

// serialFetchWithRetry drains the whole body into memory, restarting from
// byte 0 on any failure (§4.6 "serial fetch").
func (c *RangeRequestClient) serialFetchWithRetry(ctx context.Context, url string, token *CancelToken) ([]byte, error) {
	policy := retry.New(c.cfg.MaxRetries, c.cfg.RetryDelay)

	var lastErr error
	for policy.ShouldRetry() {
		if err := token.ThrowIfCancelled(); err != nil {
			return nil, err
		}

		data, err := fetchWholeBody(ctx, c.factory, token, url, c.cfg.Headers, c.cfg.ConnectionTimeout)
		if err == nil {
			return data, nil
		}

		lastErr = err
		cont, giveErr := policy.HandleError(ctx, err)
		if !cont {
			return nil, giveErr
		}
	}
	return nil, lastErr
}

func fetchWholeBody(ctx context.Context, factory httpclient.ClientFactory, token *CancelToken, url string, headers map[string]string, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token.RegisterClient(cancel)
	defer token.UnregisterClient()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("rangefetch: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := factory.NewClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newError(ServerError, fmt.Sprintf("GET %s returned status %d", url, resp.StatusCode), nil)
	}

	return io.ReadAll(resp.Body)
}

// classifyFetchError maps an error surfaced by the scheduler or serial
// fetch path into a *[Error] with the right code (§7). Errors already of
// that type (including cancellation, which CancelToken itself raises as
// *Error) pass through unchanged.
func classifyFetchError(err error) error {
	if err == nil {
		return nil
	}
	var rfErr *Error
	if errors.As(err, &rfErr) {
		return err
	}
	if errors.Is(err, scheduler.ErrInvalidResponse) {
		return newError(InvalidResponse, err.Error(), err)
	}
	return newError(NetworkError, err.Error(), err)
}

// byteStream is the io.ReadCloser backing one Fetch call. It drives either
// a scheduler (range-parallel) or a pre-drained serial body.
type byteStream struct {
	ctx    context.Context
	cancel context.CancelFunc

	sched  *scheduler.Scheduler
	serial io.ReadCloser

	buf      []byte
	received atomic.Int64
	total    int64

	onProgress   ProgressFunc
	progressDone chan struct{}

	err error
}

func (s *byteStream) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}

	for len(s.buf) == 0 {
		if s.serial != nil {
			n, err := s.serial.Read(p)
			if n > 0 {
				s.received.Add(int64(n))
			}
			if err != nil {
				s.finish(err)
			}
			return n, err
		}

		if err := s.pullScheduler(); err != nil {
			s.finish(err)
			return 0, err
		}
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *byteStream) pullScheduler() error {
	if !s.sched.HasMore() {
		return io.EOF
	}
	if err := s.sched.ProcessNextCompletion(s.ctx); err != nil {
		return classifyFetchError(err)
	}
	for _, chunk := range s.sched.YieldReadyChunks() {
		s.buf = append(s.buf, chunk...)
	}
	return nil
}

func (s *byteStream) startProgressTimer(interval time.Duration) {
	s.progressDone = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if r := s.received.Load(); r > 0 {
					s.onProgress(r, s.total)
				}
			case <-s.progressDone:
				return
			}
		}
	}()
}

func (s *byteStream) stopProgress() {
	if s.progressDone != nil {
		close(s.progressDone)
		s.progressDone = nil
	}
}

// finish runs once, on the first terminal Read error (including io.EOF):
// it stops the progress timer, fires the final progress event, and
// releases the fetch's context.
func (s *byteStream) finish(err error) {
	if s.err != nil {
		return
	}
	s.err = err
	s.stopProgress()
	if s.onProgress != nil {
		s.onProgress(s.received.Load(), s.total)
	}
	s.cancel()
}

// Close releases the stream's timer and context. It is safe to call after
// the stream has already reached EOF or an error.
func (s *byteStream) Close() error {
	s.stopProgress()
	s.cancel()
	if s.serial != nil {
		return s.serial.Close()
	}
	return nil
}
