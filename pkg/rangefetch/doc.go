// Package rangefetch downloads a single HTTP resource efficiently by issuing
// many concurrent range requests, reassembling the bytes in order, and
// optionally persisting the result to disk with resume and integrity
// checks.
//
// # Fetching bytes
//
// Use [NewRangeRequestClient] and call [RangeRequestClient.Fetch] to get a
// lazily-pulled, strictly ordered byte stream for a URL. The client
// discovers server capabilities with [RangeRequestClient.CheckServerInfo]
// (or accepts a caller-supplied content length and range support in
// [FetchOptions] to skip that round trip),
// chooses a range-parallel or whole-body-serial strategy accordingly, and
// reports progress through an optional callback.
//
// # Persisting to disk
//
// [FileDownloader] layers resume, conflict resolution and checksum
// computation on top of a [RangeRequestClient]. [FileDownloader.DownloadToFile]
// returns a [DownloadResult] once the file is fully written and renamed into
// place. [FileDownloader.CleanupTempFiles] removes abandoned temp files
// after a configurable age.
//
// # Cancellation
//
// A [CancelToken] is a one-shot cancellation flag; [CancelTokenGroup]
// aggregates the tokens belonging to one client instance so a caller can
// cancel or clear every in-flight fetch at once.
//
// # Errors
//
// All engine-raised failures are an [*Error] carrying one of the [ErrorCode]
// values from §7 of the design. Use [errors.As] to inspect it.
package rangefetch
