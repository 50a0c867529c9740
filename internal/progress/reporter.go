package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Phase labels the current activity a [Reporter] is rendering, mirroring
// rangefetch.DownloadStatus without importing it (keeping this package
// free of a pkg/rangefetch dependency).
type Phase int

const (
	PhaseDownloading Phase = iota
	PhaseCalculatingChecksum
)

func (p Phase) String() string {
	if p == PhaseCalculatingChecksum {
		return "calculating checksum"
	}
	return "downloading"
}

// Options configures the progress reporter.
type Options struct {
	// TotalSize is the total size in bytes being fetched. Zero means
	// unknown (percent/ETA are omitted).
	TotalSize int64

	// MaxConcurrentRequests is shown in the header for context.
	MaxConcurrentRequests int

	// Output is where to write progress output. Default: os.Stdout.
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms.
	UpdateInterval time.Duration

	// SourceURL is the URL being fetched (for display).
	SourceURL string
}

// Reporter outputs human-readable progress information driven by a
// received/total byte count and an optional phase, the shape every
// rangefetch progress callback reports.
type Reporter struct {
	opts Options

	mu         sync.Mutex
	received   atomic.Int64
	phase      atomic.Int32
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	stopCh     chan struct{}
	done       chan struct{}
	stopped    bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	fmt.Fprintf(r.opts.Output, "[rangepull] Fetching: %s\n", r.opts.SourceURL)
	fmt.Fprintf(r.opts.Output, "[rangepull] Total size: %s | Max concurrent requests: %d\n",
		formatBytes(r.opts.TotalSize),
		r.opts.MaxConcurrentRequests,
	)

	r.done = make(chan struct{})
	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status line.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	if r.done != nil {
		<-r.done
	}
}

// Update records the latest received/total byte counts and phase. It is
// safe to call from the OnProgress/FileProgressFunc callback directly.
func (r *Reporter) Update(received, total int64, phase Phase) {
	r.received.Store(received)
	r.phase.Store(int32(phase))
	if total > 0 {
		r.opts.TotalSize = total
	}
}

func (r *Reporter) updateLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	now := time.Now()
	received := r.received.Load()
	phase := Phase(r.phase.Load())

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	bytesThisPeriod := received - r.lastBytes
	speed := float64(bytesThisPeriod) / elapsed

	r.lastUpdate = now
	r.lastBytes = received

	if r.opts.TotalSize <= 0 {
		fmt.Fprintf(r.opts.Output, "\r[rangepull] %s: %s | Speed: %s/s    ",
			phase, formatBytes(received), formatBytes(int64(speed)))
		return
	}

	var percent float64
	var eta string
	if r.opts.TotalSize > 0 {
		percent = float64(received) / float64(r.opts.TotalSize) * 100
		if speed > 0 {
			remaining := float64(r.opts.TotalSize - received)
			etaSeconds := remaining / speed
			eta = formatDuration(time.Duration(etaSeconds * float64(time.Second)))
		} else {
			eta = "calculating..."
		}
	}

	fmt.Fprintf(r.opts.Output, "\r[rangepull] %s: %.1f%% | %s / %s | Speed: %s/s | ETA: %s    ",
		phase,
		percent,
		formatBytes(received),
		formatBytes(r.opts.TotalSize),
		formatBytes(int64(speed)),
		eta,
	)
}

func (r *Reporter) printFinalStatus() {
	received := r.received.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(received) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "\r[rangepull] Progress: 100.0%% | %s / %s | Speed: %s/s | Complete!    \n",
		formatBytes(received),
		formatBytes(r.opts.TotalSize),
		formatBytes(int64(avgSpeed)),
	)
	fmt.Fprintf(r.opts.Output, "[rangepull] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages (the CLI's summary
// lines).
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// ParseBytes parses a human-readable byte string (e.g., "256MB"), used by
// the CLI's -chunk-size flag and config file.
func ParseBytes(s string) (int64, error) {
	var multiplier int64 = 1
	s = trimSuffix(s, " ")

	switch {
	case hasSuffix(s, "TB"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "KB"):
		multiplier = 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "B"):
		s = s[:len(s)-1]
	}

	var value float64
	_, err := fmt.Sscanf(s, "%f", &value)
	if err != nil {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}

	return int64(value * float64(multiplier)), nil
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func trimSuffix(s, suffix string) string {
	for hasSuffix(s, suffix) {
		s = s[:len(s)-len(suffix)]
	}
	return s
}
