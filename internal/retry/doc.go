// Package retry implements the per-range retry policy: a stateful attempt
// counter paired with exponential backoff and no jitter. A fresh Policy is
// created for each retryable unit of work (one HTTP range request, or one
// whole-body fetch) and consumed exactly once. The HEAD probe is not retried.
package retry
