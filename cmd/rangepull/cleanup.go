package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/halvardor/rangepull/pkg/rangefetch"
)

// runCleanup removes leftover temp files from previous interrupted
// downloads under a directory.
func runCleanup(args []string) int {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)

	dir := fs.String("dir", ".", "Directory to scan")
	ext := fs.String("ext", ".tmp", "Temp file extension to match")
	olderThan := fs.Duration("older-than", 0, "Only delete files older than this duration (0 deletes all matches)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: rangepull cleanup [options]

Remove leftover .tmp files from previously interrupted downloads.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	downloader := rangefetch.FileDownloaderFromConfig(rangefetch.DefaultConfig(), nil)
	n, err := downloader.CleanupTempFiles(*dir, *ext, *olderThan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Printf("[rangepull] Removed %d temp file(s) from %s\n", n, *dir)
	return ExitSuccess
}
