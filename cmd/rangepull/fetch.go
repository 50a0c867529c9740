package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/halvardor/rangepull/internal/progress"
	"github.com/halvardor/rangepull/pkg/rangefetch"
)

// runFetch fetches a URL with concurrent range requests and writes the
// reassembled bytes to stdout, the way a caller that doesn't want a
// filesystem sink at all would use the library directly.
func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)

	chunkSize := fs.String("chunk-size", "10MB", "Size of each range request")
	maxConcurrent := fs.Int("max-concurrent-requests", 8, "Max in-flight range requests")
	showProgress := fs.Bool("progress", false, "Show progress on stderr (stdout carries the body)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: rangepull fetch <url> [options]

Fetch a URL with concurrent range requests and write the bytes to stdout.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one URL argument is required")
		fs.Usage()
		return ExitInvalidArgs
	}
	url := fs.Arg(0)

	chunkBytes, err := progress.ParseBytes(*chunkSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid chunk size: %v\n", err)
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

	client := rangefetch.NewRangeRequestClient(rangefetch.DefaultConfig().CopyWith(
		rangefetch.WithChunkSize(chunkBytes),
		rangefetch.WithMaxConcurrentRequests(*maxConcurrent),
	), nil)

	var reporter *progress.Reporter
	var onProgress rangefetch.ProgressFunc
	if *showProgress {
		reporter = progress.NewReporter(progress.Options{
			MaxConcurrentRequests: *maxConcurrent,
			SourceURL:             url,
			Output:                os.Stderr,
		})
		reporter.Start()
		defer reporter.Stop()
		onProgress = func(received, total int64) {
			reporter.Update(received, total, progress.PhaseDownloading)
		}
	}

	stream, err := client.Fetch(ctx, url, rangefetch.FetchOptions{OnProgress: onProgress})
	if err != nil {
		if rangefetch.IsCancelled(err) {
			return ExitCancelled
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitSourceNotAccess
	}
	defer stream.Close()

	if _, err := io.Copy(os.Stdout, stream); err != nil {
		if rangefetch.IsCancelled(err) {
			return ExitCancelled
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	return ExitSuccess
}
