package rangefetch

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/halvardor/rangepull/internal/httpclient"
)

// FileDownloader composes a [RangeRequestClient] to persist a fetch to disk
// with resume, conflict resolution and checksum computation (§4.7).
type FileDownloader struct {
	client *RangeRequestClient
	cfg    Config
}

// NewFileDownloader wraps an existing client.
func NewFileDownloader(client *RangeRequestClient, cfg Config) *FileDownloader {
	return &FileDownloader{client: client, cfg: cfg.normalized()}
}

// FileDownloaderFromConfig builds both the client and the downloader from a
// single config. A nil factory uses [httpclient.New].
func FileDownloaderFromConfig(cfg Config, factory httpclient.ClientFactory) *FileDownloader {
	cfg = cfg.normalized()
	return &FileDownloader{client: NewRangeRequestClient(cfg, factory), cfg: cfg}
}

// DownloadToFileOptions configures one [FileDownloader.DownloadToFile] call.
type DownloadToFileOptions struct {
	// OutputFileName overrides the server-supplied / URL-derived name.
	OutputFileName string

	// Resume defaults to true when nil.
	Resume *bool

	ChecksumType     ChecksumType
	ConflictStrategy FileConflictStrategy

	CancelToken *CancelToken
	OnProgress  FileProgressFunc
}

// DownloadToFile fetches url into outputDir, resolving the final path,
// resuming from an existing temp file when possible, and computing a
// digest when requested.
func (d *FileDownloader) DownloadToFile(ctx context.Context, rawURL, outputDir string, opts DownloadToFileOptions) (DownloadResult, error) {
	resume := true
	if opts.Resume != nil {
		resume = *opts.Resume
	}

	info, err := d.client.CheckServerInfo(ctx, rawURL)
	if err != nil {
		return DownloadResult{}, err
	}

	name := opts.OutputFileName
	if name == "" {
		name = info.FileName
	}
	if name == "" {
		name = lastURLSegment(rawURL)
	}
	name = sanitizeFileName(name)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return DownloadResult{}, newError(FileError, fmt.Sprintf("create output directory %s", outputDir), err)
	}

	finalPath := filepath.Join(outputDir, name)
	tempPath := finalPath + d.cfg.TempFileExtension

	startBytes, f, err := openTempFile(tempPath, resume, info.AcceptRanges)
	if err != nil {
		return DownloadResult{}, newError(FileError, "open temp file", err)
	}

	if startBytes > info.ContentLength {
		f.Close()
		return DownloadResult{}, newError(FileError, fmt.Sprintf("temp file size %d exceeds remote file size %d", startBytes, info.ContentLength), nil)
	}

	deleteTempOnFailure := !resume
	fail := func(cause error) (DownloadResult, error) {
		f.Close()
		if deleteTempOnFailure {
			os.Remove(tempPath)
		}
		return DownloadResult{}, cause
	}

	if startBytes == info.ContentLength {
		if err := f.Close(); err != nil {
			return fail(newError(FileError, "close temp file", err))
		}
		if opts.OnProgress != nil {
			opts.OnProgress(info.ContentLength, info.ContentLength, StatusDownloading)
		}
	} else {
		var onProgress ProgressFunc
		if opts.OnProgress != nil {
			onProgress = func(received, total int64) {
				opts.OnProgress(received, total, StatusDownloading)
			}
		}

		contentLength := info.ContentLength
		acceptRanges := info.AcceptRanges
		stream, err := d.client.Fetch(ctx, rawURL, FetchOptions{
			ContentLength: &contentLength,
			AcceptRanges:  &acceptRanges,
			StartBytes:    startBytes,
			CancelToken:   opts.CancelToken,
			OnProgress:    onProgress,
		})
		if err != nil {
			return fail(err)
		}

		writeErr := streamToFile(f, stream, d.cfg.ChunkSize)
		stream.Close()
		if writeErr != nil {
			return fail(classifyFetchError(writeErr))
		}

		if err := f.Close(); err != nil {
			return fail(newError(FileError, "close temp file", err))
		}
	}

	var checksum string
	if opts.ChecksumType != ChecksumNone {
		if opts.OnProgress != nil {
			opts.OnProgress(info.ContentLength, info.ContentLength, StatusCalculatingChecksum)
		}
		sum, err := computeDigestInBackground(tempPath, opts.ChecksumType)
		if err != nil {
			if deleteTempOnFailure {
				os.Remove(tempPath)
			}
			return DownloadResult{}, newError(FileError, "compute checksum", err)
		}
		checksum = sum
	}

	resolvedPath, err := resolveConflict(finalPath, opts.ConflictStrategy)
	if err != nil {
		if deleteTempOnFailure {
			os.Remove(tempPath)
		}
		return DownloadResult{}, err
	}

	if err := os.Rename(tempPath, resolvedPath); err != nil {
		if deleteTempOnFailure {
			os.Remove(tempPath)
		}
		return DownloadResult{}, newError(FileError, "rename temp file into place", err)
	}

	return DownloadResult{
		FilePath:     resolvedPath,
		FileSize:     info.ContentLength,
		Checksum:     checksum,
		ChecksumType: opts.ChecksumType,
	}, nil
}

// CleanupTempFiles walks dir recursively and deletes every regular file
// ending in ext whose modification time is older than olderThan (all
// matching files, if olderThan is zero). Per-file deletion errors are
// tolerated; a non-existent dir returns 0.
func (d *FileDownloader) CleanupTempFiles(dir, ext string, olderThan time.Duration) (int, error) {
	if ext == "" {
		ext = d.cfg.TempFileExtension
	}

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}

	var cutoff time.Time
	if olderThan > 0 {
		cutoff = time.Now().Add(-olderThan)
	}

	deleted := 0
	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() || !strings.HasSuffix(path, ext) {
			return nil
		}
		if !cutoff.IsZero() {
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				return nil
			}
		}
		if os.Remove(path) == nil {
			deleted++
		}
		return nil
	})
	if walkErr != nil {
		return deleted, walkErr
	}
	return deleted, nil
}

func openTempFile(path string, resume, acceptRanges bool) (int64, *os.File, error) {
	if resume && acceptRanges {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, nil, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return 0, nil, err
		}
		return info.Size(), f, nil
	}

	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, nil, err
	}
	return 0, f, nil
}

// streamToFile accumulates reads from r into a buffer and flushes to f once
// it reaches chunkSize, with a zero-copy fast path when a single read
// already meets or exceeds chunkSize and nothing is pending.
func streamToFile(f *os.File, r io.Reader, chunkSize int64) error {
	if chunkSize <= 0 {
		chunkSize = DefaultConfig().ChunkSize
	}

	readBuf := make([]byte, chunkSize)
	var pending []byte

	for {
		n, err := r.Read(readBuf)
		if n > 0 {
			chunk := readBuf[:n]
			if len(pending) == 0 && int64(n) >= chunkSize {
				if _, werr := f.Write(chunk); werr != nil {
					return werr
				}
			} else {
				pending = append(pending, chunk...)
				if int64(len(pending)) >= chunkSize {
					if _, werr := f.Write(pending); werr != nil {
						return werr
					}
					pending = pending[:0]
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if len(pending) > 0 {
		if _, err := f.Write(pending); err != nil {
			return err
		}
	}
	return nil
}

// computeDigestInBackground hashes path on a separate goroutine so the
// caller's execution context isn't blocked by CPU-bound hashing, then
// joins it before returning.
func computeDigestInBackground(path string, t ChecksumType) (string, error) {
	type result struct {
		sum string
		err error
	}

	done := make(chan result, 1)
	go func() {
		sum, err := computeDigest(path, t)
		done <- result{sum, err}
	}()
	res := <-done
	return res.sum, res.err
}

func computeDigest(path string, t ChecksumType) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var h hash.Hash
	switch t {
	case ChecksumSHA256:
		h = sha256.New()
	case ChecksumMD5:
		h = md5.New()
	default:
		return "", nil
	}

	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// resolveConflict returns the path the temp file should be renamed to,
// applying the configured strategy against finalPath.
func resolveConflict(finalPath string, strategy FileConflictStrategy) (string, error) {
	switch strategy {
	case ConflictRename:
		if !pathExists(finalPath) {
			return finalPath, nil
		}
		ext := filepath.Ext(finalPath)
		stem := strings.TrimSuffix(finalPath, ext)
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s(%d)%s", stem, n, ext)
			if !pathExists(candidate) {
				return candidate, nil
			}
		}
	case ConflictError:
		if pathExists(finalPath) {
			return "", newError(FileError, "File already exists", nil)
		}
		return finalPath, nil
	default: // ConflictOverwrite
		os.Remove(finalPath)
		return finalPath, nil
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, `\`, "_")
	name = strings.ReplaceAll(name, "..", "_")
	return name
}

func lastURLSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	segs := strings.Split(strings.TrimRight(u.Path, "/"), "/")
	last := segs[len(segs)-1]
	if last == "" {
		return "download"
	}
	return last
}
