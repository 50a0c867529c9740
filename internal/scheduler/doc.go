// Package scheduler implements the chunk scheduler described in §4.5: it
// plans byte ranges, dispatches range fetches up to a concurrency cap,
// buffers out-of-order completions, and emits them in strictly increasing
// range-index order. It also owns the per-range fetch: building the Range
// GET, validating the 206 response, and driving the retry policy.
package scheduler
