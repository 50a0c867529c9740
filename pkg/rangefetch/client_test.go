package rangefetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/halvardor/rangepull/internal/testutils"
)

func rangeServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	return testutils.StartRangeServer(t, data)
}

func sequenceData(n int) []byte {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789abcdefghijklmnopqrstuvwxyz"
	out := make([]byte, n)
	for i := range out {
		out[i] = alphabet[i%len(alphabet)]
	}
	return out
}

func TestFetchParallelOrdering(t *testing.T) {
	data := []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	server := rangeServer(t, data)
	defer server.Close()

	client := NewRangeRequestClient(DefaultConfig().CopyWith(
		WithChunkSize(10),
		WithMaxConcurrentRequests(4),
	), nil)

	stream, err := client.Fetch(context.Background(), server.URL, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer stream.Close()

	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestFetchSerialFallbackWhenRangesUnsupported(t *testing.T) {
	data := []byte("no ranges here")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		w.Write(data)
	}))
	defer server.Close()

	client := NewRangeRequestClient(DefaultConfig(), nil)
	stream, err := client.Fetch(context.Background(), server.URL, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer stream.Close()

	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestFetchProgressMonotonicAndFinal(t *testing.T) {
	data := sequenceData(62)
	server := rangeServer(t, data)
	defer server.Close()

	client := NewRangeRequestClient(DefaultConfig().CopyWith(
		WithChunkSize(10),
		WithMaxConcurrentRequests(2),
		WithProgressInterval(5*time.Millisecond),
	), nil)

	var updates [][2]int64
	stream, err := client.Fetch(context.Background(), server.URL, FetchOptions{
		OnProgress: func(received, total int64) {
			updates = append(updates, [2]int64{received, total})
		},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if _, err := io.ReadAll(stream); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	stream.Close()

	if len(updates) == 0 {
		t.Fatal("expected at least the final progress update")
	}
	last := updates[len(updates)-1]
	if last[0] != int64(len(data)) || last[1] != int64(len(data)) {
		t.Fatalf("expected final update (%d, %d), got %v", len(data), len(data), last)
	}
	for i := 1; i < len(updates); i++ {
		if updates[i][0] < updates[i-1][0] {
			t.Fatalf("progress went backwards: %v then %v", updates[i-1], updates[i])
		}
	}
}

func TestFetchCancellationBeforeStart(t *testing.T) {
	data := sequenceData(100)
	server := rangeServer(t, data)
	defer server.Close()

	client := NewRangeRequestClient(DefaultConfig().CopyWith(WithChunkSize(10)), nil)

	token := NewCancelToken()
	token.Cancel()

	_, err := client.Fetch(context.Background(), server.URL, FetchOptions{CancelToken: token})
	if !IsCancelled(err) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
}

func TestFetchServerErrorOnHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewRangeRequestClient(DefaultConfig(), nil)
	_, err := client.Fetch(context.Background(), server.URL, FetchOptions{})

	var rfErr *Error
	if !errors.As(err, &rfErr) || rfErr.Code != ServerError {
		t.Fatalf("expected ServerError, got %v", err)
	}
}

func TestCheckServerInfoSkippedWhenProvided(t *testing.T) {
	data := []byte("abcde")
	headCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			headCalls++
			w.Header().Set("Content-Length", "5")
			w.Header().Set("Accept-Ranges", "bytes")
			return
		}
		w.Header().Set("Content-Range", "bytes 0-4/5")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data)
	}))
	defer server.Close()

	client := NewRangeRequestClient(DefaultConfig().CopyWith(WithChunkSize(5)), nil)

	contentLength := int64(5)
	acceptRanges := true
	stream, err := client.Fetch(context.Background(), server.URL, FetchOptions{
		ContentLength: &contentLength,
		AcceptRanges:  &acceptRanges,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer stream.Close()

	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
	if headCalls != 0 {
		t.Fatalf("expected HEAD to be skipped, got %d calls", headCalls)
	}
}
