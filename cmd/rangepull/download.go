package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halvardor/rangepull/internal/progress"
	"github.com/halvardor/rangepull/pkg/rangefetch"
)

// runDownload fetches a URL with concurrent range requests and persists it
// to disk, with resume, conflict resolution and checksum support.
func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ExitOnError)

	url := fs.String("url", "", "Source URL to download (required)")
	outputDir := fs.String("output-dir", ".", "Directory to write the downloaded file into")
	outputName := fs.String("output-name", "", "Output file name (default: server-supplied or derived from the URL)")
	chunkSize := fs.String("chunk-size", "10MB", "Size of each range request")
	maxConcurrent := fs.Int("max-concurrent-requests", 8, "Max in-flight range requests")
	retryAttempts := fs.Int("retry-attempts", 3, "Max retries per range request")
	retryBackoff := fs.Duration("retry-backoff", time.Second, "Initial retry backoff")
	resume := fs.Bool("resume", true, "Resume from an existing .tmp file when possible")
	checksum := fs.String("checksum", "none", "Digest to compute over the final file: none, sha256, md5")
	conflict := fs.String("conflict", "overwrite", "Final-path conflict strategy: overwrite, rename, error")
	showProgress := fs.Bool("progress", false, "Show progress output")
	configPath := fs.String("config", "", "YAML config file (flags override its values)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: rangepull download [options]

Fetch a URL with concurrent range requests and save it to disk.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg := defaultCLIConfig()
	if *configPath != "" {
		fileCfg, err := loadConfigFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	if *url != "" {
		cfg.URL = *url
	}
	if isFlagSet(fs, "output-dir") || cfg.OutputDir == "" {
		cfg.OutputDir = *outputDir
	}
	if *outputName != "" {
		cfg.OutputFileName = *outputName
	}
	if isFlagSet(fs, "chunk-size") {
		chunkBytes, err := progress.ParseBytes(*chunkSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid chunk size: %v\n", err)
			return ExitInvalidArgs
		}
		cfg.ChunkSize = chunkBytes
	}
	if isFlagSet(fs, "max-concurrent-requests") {
		cfg.MaxConcurrentRequests = *maxConcurrent
	}
	if isFlagSet(fs, "retry-attempts") {
		cfg.Retry.Attempts = *retryAttempts
	}
	if isFlagSet(fs, "retry-backoff") {
		cfg.Retry.Backoff = *retryBackoff
	}
	if isFlagSet(fs, "resume") {
		cfg.Resume = *resume
	}
	if isFlagSet(fs, "checksum") {
		cfg.Checksum = *checksum
	}
	if isFlagSet(fs, "conflict") {
		cfg.Conflict = *conflict
	}
	if isFlagSet(fs, "progress") {
		cfg.Progress = *showProgress
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	checksumType, err := parseChecksumType(cfg.Checksum)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return ExitInvalidArgs
	}
	conflictStrategy, err := parseConflictStrategy(cfg.Conflict)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return ExitInvalidArgs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[rangepull] Received interrupt, shutting down...")
		cancel()
	}()

	downloader := rangefetch.FileDownloaderFromConfig(rangeRequestConfig(cfg), nil)

	var reporter *progress.Reporter
	var onProgress rangefetch.FileProgressFunc
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			MaxConcurrentRequests: cfg.MaxConcurrentRequests,
			SourceURL:             cfg.URL,
		})
		reporter.Start()
		defer reporter.Stop()
		onProgress = func(received, total int64, status rangefetch.DownloadStatus) {
			phase := progress.PhaseDownloading
			if status == rangefetch.StatusCalculatingChecksum {
				phase = progress.PhaseCalculatingChecksum
			}
			reporter.Update(received, total, phase)
		}
	}

	result, err := downloader.DownloadToFile(ctx, cfg.URL, cfg.OutputDir, rangefetch.DownloadToFileOptions{
		OutputFileName:   cfg.OutputFileName,
		Resume:           &cfg.Resume,
		ChecksumType:     checksumType,
		ConflictStrategy: conflictStrategy,
		OnProgress:       onProgress,
	})
	if err != nil {
		if rangefetch.IsCancelled(err) {
			fmt.Fprintln(os.Stderr, "[rangepull] Download interrupted, run again to resume")
			return ExitCancelled
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(os.Stderr, "[rangepull] Downloaded %s to %s\n", progress.FormatBytes(result.FileSize), result.FilePath)
	if result.Checksum != "" {
		fmt.Fprintf(os.Stderr, "[rangepull] %s: %s\n", result.ChecksumType, result.Checksum)
	}

	return ExitSuccess
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
