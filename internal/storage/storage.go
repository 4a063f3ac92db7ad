// Package storage provides staging and artifact storage for the extraction
// pipeline. It defines the Staging and ArtifactStore interfaces (ports) and
// implementations for local disk and S3-mirrored storage.
package storage

import (
	"context"
	"io"
	"time"
)

// Location identifies the artifact directory allocated to one extraction job.
type Location struct {
	ID  string
	Dir string
}

// Staging manages transient input files that live only while a job runs.
type Staging interface {
	// SaveStaged streams data into a new file in the staging area and
	// returns its path. The pattern is used as a filename hint; a "*" in
	// it is replaced with a unique suffix.
	SaveStaged(ctx context.Context, pattern string, data io.Reader) (path string, err error)

	// RemoveStaged deletes a staged file. Missing files are not an error.
	// Paths outside the staging area are rejected.
	RemoveStaged(ctx context.Context, path string) error

	// SweepStaged removes staged files older than maxAge and returns how
	// many were deleted. It continues past individual failures.
	SweepStaged(ctx context.Context, maxAge time.Duration) (removed int, err error)
}

// ArtifactStore manages per-video frame directories and resolves their
// contents for serving.
type ArtifactStore interface {
	// Allocate creates a fresh artifact directory under a new video ID.
	Allocate(ctx context.Context) (Location, error)

	// Remove deletes the artifact directory for the given video ID.
	// Removing an ID that was never allocated succeeds.
	Remove(ctx context.Context, videoID string) error

	// Resolve maps a video ID and frame name to a file on disk. It returns
	// ErrNotFound for unknown frames and for any ID or name that would
	// escape the artifact root.
	Resolve(ctx context.Context, videoID, frameName string) (string, error)
}
