package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Static errors for storage operations.
var (
	// ErrNotFound is returned when a frame or video ID does not exist,
	// or when a lookup would escape the artifact root.
	ErrNotFound = errors.New("storage: frame not found")
	// ErrInvalidID is returned when a video ID is not a plain path segment.
	ErrInvalidID = errors.New("storage: invalid video id")
	// ErrOutsideStaging is returned when a staged path does not live in
	// the staging area.
	ErrOutsideStaging = errors.New("storage: path outside staging directory")
)

// LocalStore implements Staging and ArtifactStore on local disk.
// Staged inputs and artifact directories live under two separate roots so
// the sweeper can never touch produced frames.
type LocalStore struct {
	stagingDir string
	outputDir  string
}

var (
	_ Staging       = (*LocalStore)(nil)
	_ ArtifactStore = (*LocalStore)(nil)
)

// NewLocalStore creates a LocalStore rooted at the given directories,
// creating them if needed. Empty arguments fall back to directories under
// os.TempDir().
func NewLocalStore(stagingDir, outputDir string) (*LocalStore, error) {
	if stagingDir == "" {
		stagingDir = filepath.Join(os.TempDir(), "keyframes", "staging")
	}
	if outputDir == "" {
		outputDir = filepath.Join(os.TempDir(), "keyframes", "output")
	}

	// Absolute roots keep the containment checks below meaningful.
	stagingAbs, err := filepath.Abs(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging directory: %w", err)
	}
	outputAbs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}

	for _, dir := range []string{stagingAbs, outputAbs} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	return &LocalStore{stagingDir: stagingAbs, outputDir: outputAbs}, nil
}

// StagingDir returns the staging area root.
func (s *LocalStore) StagingDir() string {
	return s.stagingDir
}

// OutputDir returns the artifact root.
func (s *LocalStore) OutputDir() string {
	return s.outputDir
}

// SaveStaged streams data into a new file in the staging area and returns
// its path. A "*" in the pattern is replaced with a unique suffix; patterns
// without one get a "_<suffix>" appended.
func (s *LocalStore) SaveStaged(ctx context.Context, pattern string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if !strings.Contains(pattern, "*") {
		pattern += "_*"
	}

	f, err := os.CreateTemp(s.stagingDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write staged file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close staged file: %w", err)
	}

	return fileName, nil
}

// RemoveStaged deletes a staged file. Missing files are not an error so the
// call is safe to repeat.
func (s *LocalStore) RemoveStaged(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if path == "" {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve staged path: %w", err)
	}
	if !strings.HasPrefix(abs, s.stagingDir+string(os.PathSeparator)) {
		return ErrOutsideStaging
	}

	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged file %s: %w", abs, err)
	}
	return nil
}

// SweepStaged removes staged files whose modification time is older than
// maxAge. It continues past individual failures, returning the count of
// removed files and the first error encountered.
func (s *LocalStore) SweepStaged(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		return 0, fmt.Errorf("read staging directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var firstErr error

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return removed, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info.
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.stagingDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove staged file %s: %w", path, err)
			}
			continue
		}
		removed++
	}

	return removed, firstErr
}

// Allocate creates a fresh artifact directory under a new video ID.
func (s *LocalStore) Allocate(ctx context.Context) (Location, error) {
	select {
	case <-ctx.Done():
		return Location{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	id := uuid.NewString()
	dir := filepath.Join(s.outputDir, id)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return Location{}, fmt.Errorf("create artifact directory: %w", err)
	}

	return Location{ID: id, Dir: dir}, nil
}

// Remove deletes the artifact directory for the given video ID. Removing an
// ID that was never allocated succeeds.
func (s *LocalStore) Remove(ctx context.Context, videoID string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if !validSegment(videoID) {
		return ErrInvalidID
	}

	dir := filepath.Join(s.outputDir, videoID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove artifact directory %s: %w", dir, err)
	}
	return nil
}

// Resolve maps a video ID and frame name to a file on disk. Unknown frames
// and any ID or name that would escape the artifact root resolve to
// ErrNotFound.
func (s *LocalStore) Resolve(ctx context.Context, videoID, frameName string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if !validSegment(videoID) || !validSegment(frameName) {
		return "", ErrNotFound
	}

	path := filepath.Join(s.outputDir, videoID, frameName)
	// Join cleans the path; verify it still sits inside the artifact root.
	rel, err := filepath.Rel(s.outputDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", ErrNotFound
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat frame %s: %w", path, err)
	}
	if info.IsDir() {
		return "", ErrNotFound
	}

	return path, nil
}

// validSegment reports whether name is usable as a single path element:
// non-empty, no separators, and not a dot reference.
func validSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
