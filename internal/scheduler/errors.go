package scheduler

import "errors"

// ErrInvalidResponse marks a response that can't be used as the body of a
// range fetch: a range request that didn't come back 206, a Content-Range
// header that is malformed or doesn't match the requested range, or a body
// whose length doesn't match the requested range.
var ErrInvalidResponse = errors.New("scheduler: invalid range response")
