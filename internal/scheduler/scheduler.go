package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/halvardor/rangepull/internal/httpclient"
	"github.com/halvardor/rangepull/internal/retry"
)

// Canceller is the subset of rangefetch.CancelToken the scheduler depends
// on. It is satisfied by *rangefetch.CancelToken without this package
// importing rangefetch (which imports this package).
type Canceller interface {
	ThrowIfCancelled() error
	RegisterClient(cancel context.CancelFunc)
	UnregisterClient()
}

// Config configures a Scheduler. URL and Headers describe the resource
// being fetched; the rest mirror rangefetch.Config.
type Config struct {
	URL               string
	Headers           map[string]string
	MaxConcurrent     int
	MaxRetries        int
	RetryDelay        time.Duration
	ConnectionTimeout time.Duration
	Factory           httpclient.ClientFactory
	Token             Canceller

	// OnChunkComplete is invoked with the byte count of each chunk as it
	// completes (before it's necessarily ready to emit in order).
	OnChunkComplete func(n int64)

	// DebugLog is an optional sink for per-attempt diagnostics.
	DebugLog func(format string, args ...any)
}

type completion struct {
	index int
	data  []byte
	err   error
}

// Scheduler plans, dispatches, buffers and emits chunks for one fetch
// (§4.5). It is single-use: create one per fetch, drive it to hasMore ==
// false, discard it.
type Scheduler struct {
	cfg    Config
	ranges []Range

	nextDispatch int
	nextWrite    int

	pending map[int][]byte

	completions chan completion

	// dispatched, active and completed track the same index sets the
	// invariants in §3 are stated over. active's cardinality enforces
	// the |activeTasks| <= maxConcurrentRequests cap in
	// StartInitialFetches; ProcessNextCompletion keeps it by dispatching
	// at most one range per finished task. active and completed
	// together drive HasMore. dispatched is cumulative and only feeds
	// Stats.
	dispatched *roaring.Bitmap
	active     *roaring.Bitmap
	completed  *roaring.Bitmap
}

// Stats reports index-set cardinalities for introspection, backed by the
// same roaring bitmaps the scheduler keeps for its own bookkeeping.
type Stats struct {
	Total      int
	Dispatched int
	Active     int
	Completed  int
}

// New creates a Scheduler for the given plan. cfg.MaxConcurrent,
// cfg.Factory and cfg.Token must be set.
func New(cfg Config, ranges []Range) *Scheduler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Scheduler{
		cfg:         cfg,
		ranges:      ranges,
		pending:     make(map[int][]byte),
		completions: make(chan completion, len(ranges)+1),
		dispatched:  roaring.New(),
		active:      roaring.New(),
		completed:   roaring.New(),
	}
}

// StartInitialFetches fills the dispatch slot up to MaxConcurrent or until
// the plan is exhausted. It checks cancellation before each dispatch and
// returns the cancellation error synchronously if the token is already
// cancelled, leaving activeTasks empty in that case.
func (s *Scheduler) StartInitialFetches(ctx context.Context) error {
	for int(s.active.GetCardinality()) < s.cfg.MaxConcurrent && s.nextDispatch < len(s.ranges) {
		if err := s.cfg.Token.ThrowIfCancelled(); err != nil {
			return err
		}
		s.dispatch(ctx, s.nextDispatch)
		s.nextDispatch++
	}
	return nil
}

// ProcessNextCompletion awaits the first active task to finish, buffers
// its bytes, reports progress, and dispatches the next range if any
// remain and cancellation hasn't been observed. It returns the task's
// error, if any, unmodified, including a cancellation error surfaced by
// the token.
func (s *Scheduler) ProcessNextCompletion(ctx context.Context) error {
	res := <-s.completions

	s.active.Remove(uint32(res.index))

	if res.err != nil {
		return res.err
	}

	s.pending[res.index] = res.data
	s.completed.Add(uint32(res.index))

	if s.cfg.OnChunkComplete != nil {
		s.cfg.OnChunkComplete(int64(len(res.data)))
	}

	if s.cfg.Token.ThrowIfCancelled() == nil && s.nextDispatch < len(s.ranges) {
		s.dispatch(ctx, s.nextDispatch)
		s.nextDispatch++
	}
	return nil
}

// YieldReadyChunks emits every buffered chunk starting at nextWriteIndex
// that is contiguously ready, advancing nextWriteIndex past each one. It
// never blocks.
func (s *Scheduler) YieldReadyChunks() [][]byte {
	var out [][]byte
	for {
		data, ok := s.pending[s.nextWrite]
		if !ok {
			break
		}
		out = append(out, data)
		delete(s.pending, s.nextWrite)
		s.nextWrite++
	}
	return out
}

// HasMore reports whether any work remains: active tasks in flight, or
// completions that have landed but not yet been written out in order.
// Every write consumes one completion, so nextWrite never exceeds
// completed's cardinality; it falls behind exactly when there's
// something buffered left to emit.
func (s *Scheduler) HasMore() bool {
	return !s.active.IsEmpty() || s.completed.GetCardinality() > uint64(s.nextWrite)
}

// Stats returns current index-set cardinalities.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Total:      len(s.ranges),
		Dispatched: int(s.dispatched.GetCardinality()),
		Active:     int(s.active.GetCardinality()),
		Completed:  int(s.completed.GetCardinality()),
	}
}

func (s *Scheduler) dispatch(ctx context.Context, idx int) {
	s.active.Add(uint32(idx))
	s.dispatched.Add(uint32(idx))

	r := s.ranges[idx]
	cfg := s.cfg
	go func() {
		data, err := fetchRangeWithRetry(ctx, cfg, r)
		s.completions <- completion{index: idx, data: data, err: err}
	}()
}

// fetchRangeWithRetry drives the per-range retry policy (§4.1, §4.5): a
// fresh policy for this range, cancellation checked before each attempt.
func fetchRangeWithRetry(ctx context.Context, cfg Config, r Range) ([]byte, error) {
	policy := retry.New(cfg.MaxRetries, cfg.RetryDelay)

	var lastErr error
	for policy.ShouldRetry() {
		if err := cfg.Token.ThrowIfCancelled(); err != nil {
			return nil, err
		}

		data, err := fetchRangeOnce(ctx, cfg, r)
		if err == nil {
			return data, nil
		}

		lastErr = err
		if cfg.DebugLog != nil {
			cfg.DebugLog("range %d-%d attempt failed: %v", r.Start, r.End, err)
		}

		cont, giveErr := policy.HandleError(ctx, err)
		if !cont {
			return nil, giveErr
		}
	}
	return nil, lastErr
}

// fetchRangeOnce issues a single GET with a Range header and validates the
// 206 response. A fresh client is created and registered with the
// cancellation token for the duration of this call, and unregistered and
// closed on every exit path.
func fetchRangeOnce(ctx context.Context, cfg Config, r Range) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()

	cfg.Token.RegisterClient(cancel)
	defer cfg.Token.UnregisterClient()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("scheduler: build range request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", r.Start, r.End))

	client := cfg.Factory.NewClient()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("%w: Expected 206 Partial Content, got %d", ErrInvalidResponse, resp.StatusCode)
	}

	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if err := validateContentRange(cr, r); err != nil {
			return nil, err
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if int64(len(data)) != r.Length() {
		return nil, fmt.Errorf("%w: expected %d bytes for range %d-%d, got %d",
			ErrInvalidResponse, r.Length(), r.Start, r.End, len(data))
	}

	return data, nil
}
