package video

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/framekit/keyframes-api/internal/storage"
)

// DownloadError describes a failed fetch of a remote video.
type DownloadError struct {
	URL        string
	StatusCode int // zero when the request never produced a response
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("video: download %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("video: download %s failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// HTTPAcquirer implements Acquirer. Remote videos are streamed into the
// staging area; uploads arrive already staged by the transport layer and
// are only verified here.
type HTTPAcquirer struct {
	staging    storage.Staging
	httpClient *http.Client
	timeout    time.Duration
}

var _ Acquirer = (*HTTPAcquirer)(nil)

// AcquirerOption is a function that configures an HTTPAcquirer.
type AcquirerOption func(*HTTPAcquirer)

// WithHTTPClient sets a custom HTTP client for downloads. The client's own
// timeout wins over WithTimeout.
func WithHTTPClient(c *http.Client) AcquirerOption {
	return func(a *HTTPAcquirer) {
		a.httpClient = c
	}
}

// WithTimeout bounds a whole download, connection to last byte.
// Zero means no limit.
func WithTimeout(d time.Duration) AcquirerOption {
	return func(a *HTTPAcquirer) {
		a.timeout = d
	}
}

// NewHTTPAcquirer creates a new HTTPAcquirer staging into the given area.
func NewHTTPAcquirer(staging storage.Staging, opts ...AcquirerOption) *HTTPAcquirer {
	a := &HTTPAcquirer{
		staging: staging,
		timeout: 60 * time.Second,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: a.timeout}
	}

	return a
}

// Acquire makes the source available as a local file in the staging area.
func (a *HTTPAcquirer) Acquire(ctx context.Context, src Source) (*Staged, error) {
	switch src.Kind {
	case SourceUpload:
		if src.UploadPath == "" {
			return nil, ErrNoSource
		}
		if _, err := os.Stat(src.UploadPath); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrUploadMissing, src.UploadPath)
			}
			return nil, fmt.Errorf("video: stat upload: %w", err)
		}
		return &Staged{Path: src.UploadPath, Owned: true}, nil

	case SourceURL:
		if src.URL == "" {
			return nil, ErrNoSource
		}
		return a.download(ctx, src.URL)

	default:
		return nil, ErrNoSource
	}
}

// download streams the remote video into the staging area without buffering
// it in memory.
func (a *HTTPAcquirer) download(ctx context.Context, rawURL string) (*Staged, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DownloadError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	path, err := a.staging.SaveStaged(ctx, "download_*.mp4", resp.Body)
	if err != nil {
		return nil, fmt.Errorf("video: stage download: %w", err)
	}

	return &Staged{Path: path, Owned: true}, nil
}

// Discard removes a staged video. Nil, unowned, and already-deleted inputs
// are left alone so the call is safe on every exit path.
func (a *HTTPAcquirer) Discard(ctx context.Context, staged *Staged) error {
	if staged == nil || !staged.Owned || staged.Path == "" {
		return nil
	}
	return a.staging.RemoveStaged(ctx, staged.Path)
}
