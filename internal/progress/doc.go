// Package progress renders a rangefetch progress callback as
// human-readable output.
//
// This package outputs human-readable progress information to stdout,
// including completion percentage, transfer speed, and ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalSize: info.ContentLength,
//	    SourceURL: url,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	// from rangefetch.FileProgressFunc:
//	reporter.Update(received, total, progress.PhaseDownloading)
//
// # Output Format
//
//	[rangepull] Fetching: https://example.com/file.tar.gz
//	[rangepull] Total size: 2.50 GB | Max concurrent requests: 8
//	[rangepull] downloading: 45.2% | 1.13 GB / 2.50 GB | Speed: 120.40 MB/s | ETA: 12s
package progress
