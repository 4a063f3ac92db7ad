// Package media provides key frame extraction from video files.
package media

import (
	"context"
	"path/filepath"
)

// Frame is one extracted key frame on disk.
type Frame struct {
	// Index is the 1-based sequence number the engine assigned.
	Index int
	// Path is the location of the image file.
	Path string
}

// Name returns the file name of the frame, e.g. "frame_3.jpg".
func (f Frame) Name() string {
	return filepath.Base(f.Path)
}

// Extractor defines the interface for key frame extraction.
// Implementations should use ffmpeg or a similar engine.
type Extractor interface {
	// Extract decodes one frame every intervalSec seconds from the video
	// and writes them as JPEG files into outputDir. Frames are returned
	// in ascending sequence order. A video shorter than the interval
	// yields one frame or none; both are valid results.
	Extract(ctx context.Context, videoPath string, intervalSec int, outputDir string) ([]Frame, error)

	// Duration returns the duration in seconds of a media file.
	Duration(ctx context.Context, path string) (float64, error)
}
