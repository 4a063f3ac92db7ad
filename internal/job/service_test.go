package job

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/framekit/keyframes-api/internal/media"
	"github.com/framekit/keyframes-api/internal/storage"
	"github.com/framekit/keyframes-api/internal/video"
)

type fakeAcquirer struct {
	staged       *video.Staged
	acquireErr   error
	acquireCalls int
	discarded    []string
	discardErr   error
	// context state observed at Discard time, to prove cleanup runs
	// detached from a cancelled request context
	discardCtxErr error
}

func (f *fakeAcquirer) Acquire(ctx context.Context, src video.Source) (*video.Staged, error) {
	f.acquireCalls++
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return f.staged, nil
}

func (f *fakeAcquirer) Discard(ctx context.Context, staged *video.Staged) error {
	f.discardCtxErr = ctx.Err()
	if staged != nil {
		f.discarded = append(f.discarded, staged.Path)
	}
	return f.discardErr
}

type fakeExtractor struct {
	frames      []media.Frame
	extractErr  error
	gotVideo    string
	gotInterval int
	gotDir      string
	duration    float64
	durationErr error
}

func (f *fakeExtractor) Extract(ctx context.Context, videoPath string, intervalSec int, outputDir string) ([]media.Frame, error) {
	f.gotVideo = videoPath
	f.gotInterval = intervalSec
	f.gotDir = outputDir
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.frames, nil
}

func (f *fakeExtractor) Duration(ctx context.Context, path string) (float64, error) {
	return f.duration, f.durationErr
}

type fakeStore struct {
	loc          storage.Location
	allocErr     error
	allocCalls   int
	removed      []string
	removeErr    error
	removeCtxErr error
}

func (f *fakeStore) Allocate(ctx context.Context) (storage.Location, error) {
	f.allocCalls++
	if f.allocErr != nil {
		return storage.Location{}, f.allocErr
	}
	return f.loc, nil
}

func (f *fakeStore) Remove(ctx context.Context, videoID string) error {
	f.removeCtxErr = ctx.Err()
	f.removed = append(f.removed, videoID)
	return f.removeErr
}

func (f *fakeStore) Resolve(ctx context.Context, videoID, frameName string) (string, error) {
	return "", storage.ErrNotFound
}

type fakeMirror struct {
	urls     []string
	err      error
	gotID    string
	gotPaths []string
}

func (f *fakeMirror) MirrorFrames(ctx context.Context, videoID string, framePaths []string) ([]string, error) {
	f.gotID = videoID
	f.gotPaths = framePaths
	if f.err != nil {
		return nil, f.err
	}
	return f.urls, nil
}

func testFrames(dir string, n int) []media.Frame {
	frames := make([]media.Frame, 0, n)
	for i := 1; i <= n; i++ {
		frames = append(frames, media.Frame{Index: i, Path: fmt.Sprintf("%s/frame_%d.jpg", dir, i)})
	}
	return frames
}

func TestService_Run_Success(t *testing.T) {
	acquirer := &fakeAcquirer{staged: &video.Staged{Path: "/staging/dl.mp4", Owned: true}}
	store := &fakeStore{loc: storage.Location{ID: "vid-123", Dir: "/output/vid-123"}}
	extractor := &fakeExtractor{frames: testFrames("/output/vid-123", 3), duration: 12.5}
	svc := NewService(acquirer, extractor, store, nil)

	result, err := svc.Run(context.Background(), ExtractInput{
		Source:   video.Source{Kind: video.SourceURL, URL: "https://example.com/clip.mp4"},
		Interval: 10,
		BaseURL:  "http://localhost:3000",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.VideoID != "vid-123" {
		t.Errorf("VideoID = %v, want vid-123", result.VideoID)
	}
	if result.Interval != 10 {
		t.Errorf("Interval = %d, want 10", result.Interval)
	}
	if result.FrameCount != 3 {
		t.Errorf("FrameCount = %d, want 3", result.FrameCount)
	}

	wantURLs := []string{
		"http://localhost:3000/frames/vid-123/frame_1.jpg",
		"http://localhost:3000/frames/vid-123/frame_2.jpg",
		"http://localhost:3000/frames/vid-123/frame_3.jpg",
	}
	if len(result.FrameURLs) != len(wantURLs) {
		t.Fatalf("got %d URLs, want %d", len(result.FrameURLs), len(wantURLs))
	}
	for i, u := range result.FrameURLs {
		if u != wantURLs[i] {
			t.Errorf("FrameURLs[%d] = %v, want %v", i, u, wantURLs[i])
		}
	}

	if extractor.gotVideo != "/staging/dl.mp4" {
		t.Errorf("extractor ran on %v, want /staging/dl.mp4", extractor.gotVideo)
	}
	if extractor.gotInterval != 10 {
		t.Errorf("extractor interval = %d, want 10", extractor.gotInterval)
	}
	if extractor.gotDir != "/output/vid-123" {
		t.Errorf("extractor output dir = %v, want /output/vid-123", extractor.gotDir)
	}

	// Staged input is gone, artifact directory stays.
	if len(acquirer.discarded) != 1 || acquirer.discarded[0] != "/staging/dl.mp4" {
		t.Errorf("discarded = %v, want the staged input exactly once", acquirer.discarded)
	}
	if len(store.removed) != 0 {
		t.Errorf("store.removed = %v, want none on success", store.removed)
	}
}

func TestService_Run_DefaultInterval(t *testing.T) {
	acquirer := &fakeAcquirer{staged: &video.Staged{Path: "/staging/up.mp4", Owned: true}}
	store := &fakeStore{loc: storage.Location{ID: "vid-1", Dir: "/output/vid-1"}}
	extractor := &fakeExtractor{frames: testFrames("/output/vid-1", 1)}
	svc := NewService(acquirer, extractor, store, nil)

	result, err := svc.Run(context.Background(), ExtractInput{
		Source:  video.Source{Kind: video.SourceUpload, UploadPath: "/staging/up.mp4"},
		BaseURL: "http://localhost:3000",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if extractor.gotInterval != DefaultIntervalSec {
		t.Errorf("extractor interval = %d, want default %d", extractor.gotInterval, DefaultIntervalSec)
	}
	if result.Interval != DefaultIntervalSec {
		t.Errorf("result.Interval = %d, want %d", result.Interval, DefaultIntervalSec)
	}
}

func TestService_Run_InvalidInterval(t *testing.T) {
	for _, interval := range []int{-3, 61, 1000} {
		acquirer := &fakeAcquirer{}
		store := &fakeStore{}
		svc := NewService(acquirer, &fakeExtractor{}, store, nil)

		_, err := svc.Run(context.Background(), ExtractInput{
			Source:   video.Source{Kind: video.SourceURL, URL: "https://example.com/v.mp4"},
			Interval: interval,
		})

		if !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("Run(interval=%d) = %v, want ErrInvalidInterval", interval, err)
		}
		var pErr *PipelineError
		if !errors.As(err, &pErr) || pErr.Stage != StageValidate {
			t.Errorf("Run(interval=%d) should fail in the validate stage, got %v", interval, err)
		}

		// Validation failures must not touch anything.
		if acquirer.acquireCalls != 0 {
			t.Errorf("interval %d: acquirer was called %d times before validation", interval, acquirer.acquireCalls)
		}
		if store.allocCalls != 0 {
			t.Errorf("interval %d: store was touched before validation", interval)
		}
	}
}

func TestService_Run_AcquireFailure(t *testing.T) {
	acquireErr := &video.DownloadError{URL: "https://example.com/v.mp4", StatusCode: 404}
	acquirer := &fakeAcquirer{acquireErr: acquireErr}
	store := &fakeStore{}
	svc := NewService(acquirer, &fakeExtractor{}, store, nil)

	_, err := svc.Run(context.Background(), ExtractInput{
		Source:   video.Source{Kind: video.SourceURL, URL: "https://example.com/v.mp4"},
		Interval: 5,
	})

	var pErr *PipelineError
	if !errors.As(err, &pErr) || pErr.Stage != StageAcquire {
		t.Fatalf("expected acquire-stage error, got %v", err)
	}
	var dlErr *video.DownloadError
	if !errors.As(err, &dlErr) {
		t.Errorf("cause should stay reachable through the pipeline error, got %v", err)
	}

	if store.allocCalls != 0 {
		t.Error("nothing should be allocated when acquisition fails")
	}
	if len(acquirer.discarded) != 0 {
		t.Errorf("discarded = %v, want none when nothing was staged", acquirer.discarded)
	}
}

func TestService_Run_ExtractFailureRollsBack(t *testing.T) {
	acquirer := &fakeAcquirer{staged: &video.Staged{Path: "/staging/bad.mp4", Owned: true}}
	store := &fakeStore{loc: storage.Location{ID: "vid-9", Dir: "/output/vid-9"}}
	extractor := &fakeExtractor{extractErr: &media.FFmpegError{Stderr: "moov atom not found", Err: errors.New("exit status 1")}}
	svc := NewService(acquirer, extractor, store, nil)

	_, err := svc.Run(context.Background(), ExtractInput{
		Source:   video.Source{Kind: video.SourceUpload, UploadPath: "/staging/bad.mp4"},
		Interval: 5,
	})

	var pErr *PipelineError
	if !errors.As(err, &pErr) || pErr.Stage != StageExtract {
		t.Fatalf("expected extract-stage error, got %v", err)
	}
	var ffErr *media.FFmpegError
	if !errors.As(err, &ffErr) {
		t.Errorf("engine detail should stay reachable, got %v", err)
	}

	// Artifact directory rolled back, staged input discarded.
	if len(store.removed) != 1 || store.removed[0] != "vid-9" {
		t.Errorf("store.removed = %v, want [vid-9]", store.removed)
	}
	if len(acquirer.discarded) != 1 {
		t.Errorf("discarded = %v, want the staged input exactly once", acquirer.discarded)
	}
}

func TestService_Run_CleanupFailuresDoNotMask(t *testing.T) {
	acquirer := &fakeAcquirer{
		staged:     &video.Staged{Path: "/staging/x.mp4", Owned: true},
		discardErr: errors.New("disk fell off"),
	}
	store := &fakeStore{
		loc:       storage.Location{ID: "vid-2", Dir: "/output/vid-2"},
		removeErr: errors.New("directory busy"),
	}
	extractor := &fakeExtractor{extractErr: errors.New("decode failed")}
	svc := NewService(acquirer, extractor, store, nil)

	_, err := svc.Run(context.Background(), ExtractInput{
		Source:   video.Source{Kind: video.SourceUpload, UploadPath: "/staging/x.mp4"},
		Interval: 5,
	})

	var pErr *PipelineError
	if !errors.As(err, &pErr) || pErr.Stage != StageExtract {
		t.Fatalf("cleanup failures must not replace the extraction error, got %v", err)
	}
}

func TestService_Run_CleanupDetachedFromCancelledContext(t *testing.T) {
	acquirer := &fakeAcquirer{staged: &video.Staged{Path: "/staging/y.mp4", Owned: true}}
	store := &fakeStore{loc: storage.Location{ID: "vid-3", Dir: "/output/vid-3"}}
	extractor := &fakeExtractor{extractErr: context.Canceled}
	svc := NewService(acquirer, extractor, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // The client has hung up.

	_, err := svc.Run(ctx, ExtractInput{
		Source:   video.Source{Kind: video.SourceUpload, UploadPath: "/staging/y.mp4"},
		Interval: 5,
	})
	if err == nil {
		t.Fatal("expected error from cancelled extraction")
	}

	// Both cleanups must have run on a live context despite the cancel.
	if len(acquirer.discarded) != 1 {
		t.Fatalf("discarded = %v, want the staged input", acquirer.discarded)
	}
	if acquirer.discardCtxErr != nil {
		t.Errorf("Discard saw ctx.Err() = %v, want nil (detached context)", acquirer.discardCtxErr)
	}
	if len(store.removed) != 1 {
		t.Fatalf("store.removed = %v, want the rollback", store.removed)
	}
	if store.removeCtxErr != nil {
		t.Errorf("Remove saw ctx.Err() = %v, want nil (detached context)", store.removeCtxErr)
	}
}

func TestService_Run_NoFramesIsSuccess(t *testing.T) {
	acquirer := &fakeAcquirer{staged: &video.Staged{Path: "/staging/tiny.mp4", Owned: true}}
	store := &fakeStore{loc: storage.Location{ID: "vid-4", Dir: "/output/vid-4"}}
	extractor := &fakeExtractor{frames: nil}
	svc := NewService(acquirer, extractor, store, nil)

	result, err := svc.Run(context.Background(), ExtractInput{
		Source:   video.Source{Kind: video.SourceUpload, UploadPath: "/staging/tiny.mp4"},
		Interval: 60,
		BaseURL:  "http://localhost:3000",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.FrameCount != 0 {
		t.Errorf("FrameCount = %d, want 0", result.FrameCount)
	}
	if len(result.FrameURLs) != 0 {
		t.Errorf("FrameURLs = %v, want empty", result.FrameURLs)
	}
	if len(store.removed) != 0 {
		t.Error("an empty frame set is a success, not a rollback")
	}
}

func TestService_Run_MirrorPublishesRemoteURLs(t *testing.T) {
	acquirer := &fakeAcquirer{staged: &video.Staged{Path: "/staging/m.mp4", Owned: true}}
	store := &fakeStore{loc: storage.Location{ID: "vid-5", Dir: "/output/vid-5"}}
	extractor := &fakeExtractor{frames: testFrames("/output/vid-5", 2)}
	mirror := &fakeMirror{urls: []string{
		"https://bucket.s3.us-east-1.amazonaws.com/frames/vid-5/frame_1.jpg",
		"https://bucket.s3.us-east-1.amazonaws.com/frames/vid-5/frame_2.jpg",
	}}
	svc := NewService(acquirer, extractor, store, nil, WithMirror(mirror))

	result, err := svc.Run(context.Background(), ExtractInput{
		Source:   video.Source{Kind: video.SourceURL, URL: "https://example.com/m.mp4"},
		Interval: 5,
		BaseURL:  "http://localhost:3000",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if mirror.gotID != "vid-5" {
		t.Errorf("mirror got video ID %v, want vid-5", mirror.gotID)
	}
	if len(mirror.gotPaths) != 2 || mirror.gotPaths[0] != "/output/vid-5/frame_1.jpg" {
		t.Errorf("mirror got paths %v", mirror.gotPaths)
	}
	if result.FrameURLs[0] != mirror.urls[0] {
		t.Errorf("FrameURLs[0] = %v, want mirrored URL", result.FrameURLs[0])
	}
}

func TestService_Run_MirrorFailureFallsBackToLocalURLs(t *testing.T) {
	acquirer := &fakeAcquirer{staged: &video.Staged{Path: "/staging/m.mp4", Owned: true}}
	store := &fakeStore{loc: storage.Location{ID: "vid-6", Dir: "/output/vid-6"}}
	extractor := &fakeExtractor{frames: testFrames("/output/vid-6", 1)}
	mirror := &fakeMirror{err: errors.New("bucket unavailable")}
	svc := NewService(acquirer, extractor, store, nil, WithMirror(mirror))

	result, err := svc.Run(context.Background(), ExtractInput{
		Source:   video.Source{Kind: video.SourceURL, URL: "https://example.com/m.mp4"},
		Interval: 5,
		BaseURL:  "http://localhost:3000",
	})
	if err != nil {
		t.Fatalf("a mirror outage must not fail the job: %v", err)
	}

	want := "http://localhost:3000/frames/vid-6/frame_1.jpg"
	if result.FrameURLs[0] != want {
		t.Errorf("FrameURLs[0] = %v, want local fallback %v", result.FrameURLs[0], want)
	}
}

func TestService_Run_TrimsBaseURL(t *testing.T) {
	acquirer := &fakeAcquirer{staged: &video.Staged{Path: "/staging/t.mp4", Owned: true}}
	store := &fakeStore{loc: storage.Location{ID: "vid-7", Dir: "/output/vid-7"}}
	extractor := &fakeExtractor{frames: testFrames("/output/vid-7", 1)}
	svc := NewService(acquirer, extractor, store, nil)

	result, err := svc.Run(context.Background(), ExtractInput{
		Source:   video.Source{Kind: video.SourceUpload, UploadPath: "/staging/t.mp4"},
		Interval: 5,
		BaseURL:  "http://localhost:3000/",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := "http://localhost:3000/frames/vid-7/frame_1.jpg"
	if result.FrameURLs[0] != want {
		t.Errorf("FrameURLs[0] = %v, want %v", result.FrameURLs[0], want)
	}
}

func TestService_Delete(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(&fakeAcquirer{}, &fakeExtractor{}, store, nil)

	if err := svc.Delete(context.Background(), "vid-8"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(store.removed) != 1 || store.removed[0] != "vid-8" {
		t.Errorf("store.removed = %v, want [vid-8]", store.removed)
	}
}

func TestService_ResolveFrame(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(&fakeAcquirer{}, &fakeExtractor{}, store, nil)

	_, err := svc.ResolveFrame(context.Background(), "vid", "frame_1.jpg")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound passthrough, got %v", err)
	}
}

func TestPipelineError(t *testing.T) {
	cause := errors.New("boom")
	err := &PipelineError{Stage: StageExtract, Err: cause}

	if !errors.Is(err, cause) {
		t.Error("PipelineError should unwrap to its cause")
	}
	msg := err.Error()
	if msg == "" {
		t.Error("Error() returned empty string")
	}
}
