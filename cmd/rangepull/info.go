package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/halvardor/rangepull/internal/progress"
	"github.com/halvardor/rangepull/pkg/rangefetch"
)

// runInfo probes a URL's Content-Length and Accept-Ranges support without
// downloading any of the body.
func runInfo(args []string) int {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	timeout := fs.Duration("timeout", 30*time.Second, "HEAD request timeout")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: rangepull info <url> [options]

Probe a URL's Content-Length and Accept-Ranges support via HEAD.

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

	client := rangefetch.NewRangeRequestClient(rangefetch.DefaultConfig().CopyWith(
		rangefetch.WithConnectionTimeout(*timeout),
	), nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	info, err := client.CheckServerInfo(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitSourceNotAccess
	}

	fmt.Printf("URL: %s\n", url)
	fmt.Printf("Content-Length: %d (%s)\n", info.ContentLength, progress.FormatBytes(info.ContentLength))
	fmt.Printf("Accept-Ranges: %t\n", info.AcceptRanges)
	if info.FileName != "" {
		fmt.Printf("Server-supplied file name: %s\n", info.FileName)
	}
	if !info.AcceptRanges {
		fmt.Println("Note: this server does not support range requests; rangepull will fall back to a single serial fetch")
	}

	return ExitSuccess
}
