// Package download fetches generated audio and writes it to disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicegen/internal/core"
	"github.com/google/uuid"
)

// DefaultTimeout bounds a single download.
const DefaultTimeout = 60 * time.Second

const (
	extMP3          = ".mp3"
	dirPermissions  = 0o750
	partFilePattern = ".%s.part"
)

const (
	errFmtCreateRequest = "failed to create download request: %w"
	errFmtCreateDir     = "%w: failed to create output directory %s: %w"
	errFmtCreateFile    = "%w: failed to create %s: %w"
	errFmtWriteFile     = "%w: failed to write %s: %w"
	errFmtRename        = "%w: failed to move download into place at %s: %w"
	logFmtSaving        = "Saving audio to: %s"
	logFmtSaved         = "Audio saved as: %s (%d bytes)"
	logFmtRemovePart    = "Failed to remove partial download '%s': %v"
)

// ErrEmptyURL is returned when there is nothing to download.
var ErrEmptyURL = errors.New("audio url is empty")

// ErrEmptyPath is returned when no destination was chosen.
var ErrEmptyPath = errors.New("output path cannot be empty")

// Downloader streams audio files over HTTP.
type Downloader struct {
	httpClient *http.Client
	log        *logger.Logger
}

// NewDownloader returns a Downloader whose requests time out after
// timeout, or DefaultTimeout when timeout is not positive.
func NewDownloader(timeout time.Duration, log *logger.Logger) *Downloader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// EnsureMP3Extension appends .mp3 unless path already ends with it.
func EnsureMP3Extension(path string) string {
	if strings.HasSuffix(strings.ToLower(path), extMP3) {
		return path
	}

	return path + extMP3
}

// Save downloads audioURL to path, forcing an .mp3 extension, and returns
// the final path. The file only appears once the whole body was written;
// a failed download leaves nothing behind.
func (d *Downloader) Save(ctx context.Context, audioURL, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}

	finalPath := EnsureMP3Extension(path)
	dir := filepath.Dir(finalPath)

	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return "", fmt.Errorf(errFmtCreateDir, core.ErrIOFailure, dir, err)
	}

	body, err := d.open(ctx, audioURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	d.info(logFmtSaving, finalPath)

	partPath := filepath.Join(dir, fmt.Sprintf(partFilePattern, uuid.NewString()))

	written, err := writePart(body, partPath)
	if err != nil {
		d.removePart(partPath)

		return "", err
	}

	err = os.Rename(partPath, finalPath)
	if err != nil {
		d.removePart(partPath)

		return "", fmt.Errorf(errFmtRename, core.ErrIOFailure, finalPath, err)
	}

	d.info(logFmtSaved, finalPath, written)

	return finalPath, nil
}

// Fetch downloads audioURL into memory.
func (d *Downloader) Fetch(ctx context.Context, audioURL string) ([]byte, error) {
	body, err := d.open(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &core.NetworkError{Err: err, Message: err.Error(), Status: 0}
	}

	return data, nil
}

func (d *Downloader) open(ctx context.Context, audioURL string) (io.ReadCloser, error) {
	if strings.TrimSpace(audioURL) == "" {
		return nil, ErrEmptyURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &core.NetworkError{Err: err, Message: err.Error(), Status: 0}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		resp.Body.Close()

		return nil, &core.NetworkError{Err: nil, Message: resp.Status, Status: resp.StatusCode}
	}

	return resp.Body, nil
}

// readTracker remembers read errors so copy failures can be attributed
// to the network or to the local disk.
type readTracker struct {
	reader io.Reader
	err    error
}

func (r *readTracker) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		r.err = err
	}

	return n, err
}

func writePart(body io.Reader, partPath string) (int64, error) {
	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf(errFmtCreateFile, core.ErrIOFailure, partPath, err)
	}

	tracker := &readTracker{reader: body, err: nil}

	written, copyErr := io.Copy(file, tracker)
	closeErr := file.Close()

	switch {
	case tracker.err != nil:
		return written, &core.NetworkError{Err: tracker.err, Message: tracker.err.Error(), Status: 0}
	case copyErr != nil:
		return written, fmt.Errorf(errFmtWriteFile, core.ErrIOFailure, partPath, copyErr)
	case closeErr != nil:
		return written, fmt.Errorf(errFmtWriteFile, core.ErrIOFailure, partPath, closeErr)
	}

	return written, nil
}

func (d *Downloader) removePart(partPath string) {
	err := os.Remove(partPath)
	if err != nil && !os.IsNotExist(err) && d.log != nil {
		d.log.Warn(logFmtRemovePart, partPath, err)
	}
}

func (d *Downloader) info(format string, args ...any) {
	if d.log != nil {
		d.log.Info(format, args...)
	}
}
