// Package httpclient is the HTTP abstraction layer described in §4.3 of the
// engine's design: a factory that hands back short-lived *http.Client values
// for the caller to manage (and, in particular, to abort via context
// cancellation), plus a self-contained HEAD operation used by the server
// probe. It is the one place in the module that creates HTTP clients and
// transports (callers build their own requests and send them through those
// clients), so tests can substitute a deterministic RoundTripper instead of
// a live server.
package httpclient
