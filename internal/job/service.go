package job

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/framekit/keyframes-api/internal/media"
	"github.com/framekit/keyframes-api/internal/storage"
	"github.com/framekit/keyframes-api/internal/video"
)

// ExtractInput contains the parameters for one extraction job.
type ExtractInput struct {
	// Source is the video to pull frames from.
	Source video.Source
	// Interval is the number of seconds between frames. Zero means the
	// caller named no interval and DefaultIntervalSec applies.
	Interval int
	// BaseURL is the absolute origin frame URLs are joined onto.
	BaseURL string
}

// ExtractResult is what a finished extraction reports back.
type ExtractResult struct {
	// VideoID identifies the stored frame set.
	VideoID string
	// Interval is the effective interval the engine ran with.
	Interval int
	// FrameCount is the number of frames produced.
	FrameCount int
	// FrameURLs lists the frames in sequence order.
	FrameURLs []string
}

// Mirror copies produced frames to a remote bucket and returns their URLs.
type Mirror interface {
	MirrorFrames(ctx context.Context, videoID string, framePaths []string) ([]string, error)
}

// Service coordinates the extraction pipeline: acquire the source, allocate
// an artifact directory, run the engine, publish frame URLs. It keeps no
// state between calls; the artifact directory is the only thing that
// outlives a request.
type Service struct {
	acquirer  video.Acquirer
	extractor media.Extractor
	store     storage.ArtifactStore
	mirror    Mirror
	logger    *slog.Logger
}

// ServiceOption is a function that configures a Service.
type ServiceOption func(*Service)

// WithMirror copies every produced frame to a remote bucket and publishes
// the mirrored URLs instead of local ones. Local copies still back the
// /frames routes.
func WithMirror(m Mirror) ServiceOption {
	return func(s *Service) {
		s.mirror = m
	}
}

// NewService creates a new extraction Service.
func NewService(acquirer video.Acquirer, extractor media.Extractor, store storage.ArtifactStore, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		acquirer:  acquirer,
		extractor: extractor,
		store:     store,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one extraction job from source to published frame URLs.
//
// The staged input is deleted on every exit path, including client
// disconnects. A failed extraction also removes the artifact directory so
// no half-written frame set is ever served.
func (s *Service) Run(ctx context.Context, input ExtractInput) (*ExtractResult, error) {
	interval := input.Interval
	if interval == 0 {
		interval = DefaultIntervalSec
	}
	if interval < MinIntervalSec || interval > MaxIntervalSec {
		return nil, &PipelineError{Stage: StageValidate, Err: ErrInvalidInterval}
	}

	staged, err := s.acquirer.Acquire(ctx, input.Source)
	if err != nil {
		return nil, &PipelineError{Stage: StageAcquire, Err: err}
	}
	defer func() {
		// Detached from the request context so a disconnect cannot skip it.
		cleanupCtx := context.WithoutCancel(ctx)
		if err := s.acquirer.Discard(cleanupCtx, staged); err != nil {
			s.logger.Warn("failed to discard staged video",
				slog.String("path", staged.Path),
				slog.String("error", err.Error()),
			)
		}
	}()

	loc, err := s.store.Allocate(ctx)
	if err != nil {
		return nil, &PipelineError{Stage: StageAllocate, Err: err}
	}

	s.logger.Info("extracting key frames",
		slog.String("video_id", loc.ID),
		slog.Int("interval_sec", interval),
		slog.String("source", string(input.Source.Kind)),
	)

	frames, err := s.extractor.Extract(ctx, staged.Path, interval, loc.Dir)
	if err != nil {
		s.rollback(ctx, loc.ID)
		return nil, &PipelineError{Stage: StageExtract, Err: err}
	}

	s.logExtracted(ctx, loc.ID, staged.Path, len(frames))

	return &ExtractResult{
		VideoID:    loc.ID,
		Interval:   interval,
		FrameCount: len(frames),
		FrameURLs:  s.frameURLs(ctx, loc.ID, input.BaseURL, frames),
	}, nil
}

// Delete removes every stored frame for the given video ID. Unknown IDs
// succeed so the operation can be retried.
func (s *Service) Delete(ctx context.Context, videoID string) error {
	return s.store.Remove(ctx, videoID)
}

// ResolveFrame maps a video ID and frame name to a local file for serving.
func (s *Service) ResolveFrame(ctx context.Context, videoID, frameName string) (string, error) {
	return s.store.Resolve(ctx, videoID, frameName)
}

// rollback removes a half-written artifact directory after a failed
// extraction. It runs detached from the request context so a client
// disconnect cannot leave partial frames behind.
func (s *Service) rollback(ctx context.Context, videoID string) {
	cleanupCtx := context.WithoutCancel(ctx)
	if err := s.store.Remove(cleanupCtx, videoID); err != nil {
		s.logger.Warn("failed to roll back artifact directory",
			slog.String("video_id", videoID),
			slog.String("error", err.Error()),
		)
	}
}

// logExtracted records the outcome, with the source duration when ffprobe
// can supply one.
func (s *Service) logExtracted(ctx context.Context, videoID, stagedPath string, frameCount int) {
	attrs := []any{
		slog.String("video_id", videoID),
		slog.Int("frames", frameCount),
	}
	if duration, err := s.extractor.Duration(ctx, stagedPath); err == nil {
		attrs = append(attrs, slog.Float64("duration_sec", duration))
	}
	s.logger.Info("extraction complete", attrs...)
}

// frameURLs publishes the frames: mirrored URLs when a mirror is
// configured, local /frames URLs otherwise.
func (s *Service) frameURLs(ctx context.Context, videoID, baseURL string, frames []media.Frame) []string {
	if s.mirror != nil {
		paths := make([]string, len(frames))
		for i, f := range frames {
			paths[i] = f.Path
		}
		urls, err := s.mirror.MirrorFrames(ctx, videoID, paths)
		if err == nil {
			return urls
		}
		// The frames exist locally, so serve those rather than fail the job.
		s.logger.Warn("failed to mirror frames, falling back to local URLs",
			slog.String("video_id", videoID),
			slog.String("error", err.Error()),
		)
	}

	base := strings.TrimRight(baseURL, "/")
	urls := make([]string, len(frames))
	for i, f := range frames {
		urls[i] = fmt.Sprintf("%s/frames/%s/%s", base, videoID, f.Name())
	}
	return urls
}
