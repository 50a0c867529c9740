package rangefetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/halvardor/rangepull/internal/httpclient"
)

// probeServer issues the configured HEAD request and parses it into a
// ServerInfo (§4.4).
func probeServer(ctx context.Context, factory httpclient.ClientFactory, url string, headers map[string]string, timeout time.Duration) (ServerInfo, error) {
	res, err := factory.Head(ctx, url, headers, timeout)
	if err != nil {
		return ServerInfo{}, newError(NetworkError, fmt.Sprintf("HEAD %s failed", url), err)
	}

	if res.StatusCode != http.StatusOK {
		return ServerInfo{}, newError(ServerError, fmt.Sprintf("HEAD %s returned status %d", url, res.StatusCode), nil)
	}

	if res.ContentLength < 0 {
		return ServerInfo{}, newError(InvalidResponse, "missing or unparseable Content-Length", nil)
	}

	return ServerInfo{
		AcceptRanges:  parseAcceptRanges(res.Header.Get("Accept-Ranges")),
		ContentLength: res.ContentLength,
		FileName:      parseFileName(res.Header.Get("Content-Disposition")),
	}, nil
}

// parseAcceptRanges preserves the source's exact-string-comparison quirk
// flagged in §4.4/§9: true iff the header is present and its value is not
// the literal (case-sensitive) string "none".
func parseAcceptRanges(header string) bool {
	if header == "" {
		return false
	}
	return header != "none"
}

// parseFileName extracts a filename from a Content-Disposition header
// value. It looks for "filename=" followed by either a double-quoted
// string (captured without quotes) or a semicolon-delimited unquoted
// token (trimmed). If multiple filename parameters exist, the first match
// wins. Returns "" when absent or unmatched.
func parseFileName(header string) string {
	if header == "" {
		return ""
	}

	const marker = "filename="
	idx := strings.Index(header, marker)
	if idx < 0 {
		return ""
	}

	rest := header[idx+len(marker):]
	if strings.HasPrefix(rest, `"`) {
		rest = rest[1:]
		end := strings.Index(rest, `"`)
		if end < 0 {
			return ""
		}
		return rest[:end]
	}

	end := strings.IndexByte(rest, ';')
	if end < 0 {
		end = len(rest)
	}
	return strings.TrimSpace(rest[:end])
}
