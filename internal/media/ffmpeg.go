package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Static errors for media operations.
var (
	// ErrIntervalNotPositive is returned when the frame interval is zero or negative.
	ErrIntervalNotPositive = errors.New("interval must be positive")
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// framePattern matches the files the fps filter writes into the output directory.
var framePattern = regexp.MustCompile(`^frame_(\d+)\.jpg$`)

// FFmpegExtractor implements Extractor using the ffmpeg CLI.
type FFmpegExtractor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// timeout bounds a single engine run. Zero disables the bound.
	timeout time.Duration
}

var _ Extractor = (*FFmpegExtractor)(nil)

// Option configures an FFmpegExtractor.
type Option func(*FFmpegExtractor)

// WithTimeout bounds each engine invocation so a wedged decode cannot hold
// a request forever. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(e *FFmpegExtractor) {
		e.timeout = d
	}
}

// NewFFmpegExtractor creates a new FFmpegExtractor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegExtractor(ffmpegPath string, opts ...Option) *FFmpegExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	e := &FFmpegExtractor{ffmpegPath: ffmpegPath}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs ffmpeg's fps filter over the video, writing one JPEG every
// intervalSec seconds into outputDir as frame_1.jpg, frame_2.jpg, and so on.
// The returned frames are ordered by sequence number.
func (e *FFmpegExtractor) Extract(ctx context.Context, videoPath string, intervalSec int, outputDir string) ([]Frame, error) {
	if intervalSec <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrIntervalNotPositive, intervalSec)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := []string{
		"-i", videoPath, // Input video
		"-vf", fmt.Sprintf("fps=1/%d", intervalSec), // One frame per interval
		"-q:v", "2", // High JPEG quality
		"-y", // Overwrite existing frames
		filepath.Join(outputDir, "frame_%d.jpg"),
	}

	if err := e.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}

	return listFrames(outputDir)
}

// listFrames collects the frames ffmpeg wrote, ordered by their numeric
// sequence so frame_2 sorts before frame_10.
func listFrames(outputDir string) ([]Frame, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	frames := make([]Frame, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := framePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		frames = append(frames, Frame{Index: idx, Path: filepath.Join(outputDir, entry.Name())})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Index < frames[j].Index
	})

	return frames, nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (e *FFmpegExtractor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Duration returns the duration in seconds of a media file.
// It uses ffprobe to extract the duration metadata.
func (e *FFmpegExtractor) Duration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - path comes from our own staging area, not user input
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	_, err = fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}
