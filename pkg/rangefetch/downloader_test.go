package rangefetch

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func boolPtr(b bool) *bool { return &b }

func TestDownloadToFileBasic(t *testing.T) {
	data := sequenceData(62)
	server := rangeServer(t, data)
	defer server.Close()

	dir := t.TempDir()
	d := FileDownloaderFromConfig(DefaultConfig().CopyWith(WithChunkSize(10)), nil)

	result, err := d.DownloadToFile(context.Background(), server.URL, dir, DownloadToFileOptions{
		OutputFileName: "out.bin",
	})
	if err != nil {
		t.Fatalf("DownloadToFile: %v", err)
	}

	got, err := os.ReadFile(result.FilePath)
	if err != nil {
		t.Fatalf("read result file: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("content mismatch")
	}
	if result.FileSize != int64(len(data)) {
		t.Fatalf("expected FileSize %d, got %d", len(data), result.FileSize)
	}
}

func TestDownloadToFileDigestMatchesIndependentHash(t *testing.T) {
	data := sequenceData(62)
	server := rangeServer(t, data)
	defer server.Close()

	dir := t.TempDir()
	d := FileDownloaderFromConfig(DefaultConfig().CopyWith(WithChunkSize(10)), nil)

	result, err := d.DownloadToFile(context.Background(), server.URL, dir, DownloadToFileOptions{
		OutputFileName: "out.bin",
		ChecksumType:   ChecksumSHA256,
	})
	if err != nil {
		t.Fatalf("DownloadToFile: %v", err)
	}

	h := sha256.Sum256(data)
	want := hex.EncodeToString(h[:])
	if result.Checksum != want {
		t.Fatalf("checksum mismatch: got %s, want %s", result.Checksum, want)
	}

	resultMD5, err := d.DownloadToFile(context.Background(), server.URL, dir, DownloadToFileOptions{
		OutputFileName:   "out2.bin",
		ChecksumType:     ChecksumMD5,
		ConflictStrategy: ConflictOverwrite,
	})
	if err != nil {
		t.Fatalf("DownloadToFile (md5): %v", err)
	}
	wantMD5Sum := md5.Sum(data)
	wantMD5 := hex.EncodeToString(wantMD5Sum[:])
	if resultMD5.Checksum != wantMD5 {
		t.Fatalf("md5 mismatch: got %s, want %s", resultMD5.Checksum, wantMD5)
	}
}

func TestDownloadToFileRenameConflict(t *testing.T) {
	data := sequenceData(20)
	server := rangeServer(t, data)
	defer server.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "test.txt"), []byte("existing"), 0o644); err != nil {
		t.Fatalf("seed test.txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "test(1).txt"), []byte("existing1"), 0o644); err != nil {
		t.Fatalf("seed test(1).txt: %v", err)
	}

	d := FileDownloaderFromConfig(DefaultConfig().CopyWith(WithChunkSize(10)), nil)
	result, err := d.DownloadToFile(context.Background(), server.URL, dir, DownloadToFileOptions{
		OutputFileName:   "test.txt",
		ConflictStrategy: ConflictRename,
	})
	if err != nil {
		t.Fatalf("DownloadToFile: %v", err)
	}

	want := filepath.Join(dir, "test(2).txt")
	if result.FilePath != want {
		t.Fatalf("expected %s, got %s", want, result.FilePath)
	}

	for _, name := range []string{"test.txt", "test(1).txt"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.HasPrefix(string(got), "existing") {
			t.Fatalf("expected %s to remain intact, got %q", name, got)
		}
	}
}

func TestDownloadToFileConflictErrorStrategy(t *testing.T) {
	data := sequenceData(10)
	server := rangeServer(t, data)
	defer server.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "test.txt"), []byte("existing"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	d := FileDownloaderFromConfig(DefaultConfig(), nil)
	_, err := d.DownloadToFile(context.Background(), server.URL, dir, DownloadToFileOptions{
		OutputFileName:   "test.txt",
		ConflictStrategy: ConflictError,
	})

	var rfErr *Error
	if !errors.As(err, &rfErr) || rfErr.Code != FileError {
		t.Fatalf("expected FileError, got %v", err)
	}
}

func TestDownloadToFileResumeFromTempFile(t *testing.T) {
	data := sequenceData(50)
	server := rangeServer(t, data)
	defer server.Close()

	dir := t.TempDir()
	tempPath := filepath.Join(dir, "out.bin.tmp")
	if err := os.WriteFile(tempPath, data[:20], 0o644); err != nil {
		t.Fatalf("seed temp file: %v", err)
	}

	d := FileDownloaderFromConfig(DefaultConfig().CopyWith(WithChunkSize(10)), nil)
	result, err := d.DownloadToFile(context.Background(), server.URL, dir, DownloadToFileOptions{
		OutputFileName: "out.bin",
		Resume:         boolPtr(true),
	})
	if err != nil {
		t.Fatalf("DownloadToFile: %v", err)
	}

	got, err := os.ReadFile(result.FilePath)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("resumed content mismatch")
	}
}

func TestDownloadToFileCancellationLeavesOrDeletesTempFile(t *testing.T) {
	data := make([]byte, 1000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Header().Set("Accept-Ranges", "bytes")
			return
		}
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := FileDownloaderFromConfig(DefaultConfig().CopyWith(
		WithChunkSize(100),
		WithMaxConcurrentRequests(2),
		WithRetryDelay(5*time.Millisecond),
	), nil)

	token := NewCancelToken()
	go func() {
		time.Sleep(50 * time.Millisecond)
		token.Cancel()
	}()

	resume := false
	_, err := d.DownloadToFile(context.Background(), server.URL, dir, DownloadToFileOptions{
		OutputFileName: "out.bin",
		Resume:         &resume,
		CancelToken:    token,
	})
	if !IsCancelled(err) {
		t.Fatalf("expected cancelled error, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "out.bin.tmp")); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be deleted when resume=false, got err=%v", err)
	}
}

func TestCleanupTempFiles(t *testing.T) {
	dir := t.TempDir()
	d := FileDownloaderFromConfig(DefaultConfig(), nil)

	for _, name := range []string{"a.tmp", "b.tmp", "c.keep"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	n, err := d.CleanupTempFiles(dir, ".tmp", 0)
	if err != nil {
		t.Fatalf("CleanupTempFiles: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "c.keep")); err != nil {
		t.Fatalf("expected c.keep to survive: %v", err)
	}
}

func TestCleanupTempFilesMissingDir(t *testing.T) {
	d := FileDownloaderFromConfig(DefaultConfig(), nil)
	n, err := d.CleanupTempFiles(filepath.Join(t.TempDir(), "missing"), ".tmp", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}
