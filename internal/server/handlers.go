package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/framekit/keyframes-api/internal/job"
	"github.com/framekit/keyframes-api/internal/storage"
	"github.com/framekit/keyframes-api/internal/video"
)

// maxMultipartMemory caps the in-memory portion of a multipart body;
// anything larger spools to disk.
const maxMultipartMemory = 32 << 20

// defaultMaxUploadBytes bounds the request body when no limit is configured.
const defaultMaxUploadBytes = 512 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service        *job.Service
	staging        storage.Staging
	validator      *validator.Validate
	logger         *slog.Logger
	baseURL        string
	maxUploadBytes int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithBaseURL sets the origin used to build absolute frame URLs. When
// empty, each request's own scheme and host are used instead.
func WithBaseURL(baseURL string) HandlerOption {
	return func(h *Handlers) {
		h.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithMaxUploadBytes bounds the size of accepted request bodies.
func WithMaxUploadBytes(limit int64) HandlerOption {
	return func(h *Handlers) {
		if limit > 0 {
			h.maxUploadBytes = limit
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.Service, staging storage.Staging, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:        service,
		staging:        staging,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ExtractKeyframes handles POST /extract-keyframes requests.
//
// The body may be multipart form data carrying a video file, or JSON or
// form-encoded fields naming a videoUrl. An uploaded file wins when both
// are present. The interval field defaults only when absent; a malformed
// value is rejected rather than silently replaced.
func (h *Handlers) ExtractKeyframes(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	req, upload, err := h.decodeExtractRequest(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.Is(err, job.ErrInvalidInterval) || errors.As(err, &maxErr) {
			h.writeExtractError(w, err)
			return
		}
		h.logger.Warn("failed to decode extraction request",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if upload != nil {
		defer upload.file.Close()
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "Invalid videoUrl", err.Error())
		return
	}

	interval := job.DefaultIntervalSec
	if req.Interval != nil {
		interval = *req.Interval
		if interval < job.MinIntervalSec || interval > job.MaxIntervalSec {
			h.writeExtractError(w, job.ErrInvalidInterval)
			return
		}
	}

	src, err := h.buildSource(r, req, upload)
	if err != nil {
		h.writeExtractError(w, err)
		return
	}

	result, err := h.service.Run(r.Context(), job.ExtractInput{
		Source:   src,
		Interval: interval,
		BaseURL:  h.requestBaseURL(r),
	})
	if err != nil {
		h.writeExtractError(w, err)
		return
	}

	h.logger.Info("key frames extracted",
		slog.String("video_id", result.VideoID),
		slog.Int("frames", result.FrameCount),
	)

	writeJSON(w, http.StatusOK, ExtractResponse{
		Success:    true,
		VideoID:    result.VideoID,
		Interval:   result.Interval,
		FrameCount: result.FrameCount,
		KeyFrames:  result.FrameURLs,
	})
}

// GetFrame handles GET /frames/{videoId}/{frameName} requests.
func (h *Handlers) GetFrame(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("videoId")
	frameName := r.PathValue("frameName")

	path, err := h.service.ResolveFrame(r.Context(), videoID, frameName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Frame not found", "")
			return
		}
		h.logger.Error("failed to resolve frame",
			slog.String("video_id", videoID),
			slog.String("frame", frameName),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read frame", "")
		return
	}

	http.ServeFile(w, r, path)
}

// DeleteFrames handles DELETE /frames/{videoId} requests. Deleting a frame
// set that never existed still succeeds, so the route is safe to retry.
func (h *Handlers) DeleteFrames(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("videoId")

	if err := h.service.Delete(r.Context(), videoID); err != nil {
		if errors.Is(err, storage.ErrInvalidID) {
			writeError(w, http.StatusBadRequest, "Invalid video ID", "")
			return
		}
		h.logger.Error("failed to delete frames",
			slog.String("video_id", videoID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Failed to delete frames", err.Error())
		return
	}

	h.logger.Info("frames deleted", slog.String("video_id", videoID))
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true})
}

// uploadedFile is a multipart video part pending staging.
type uploadedFile struct {
	file   multipart.File
	header *multipart.FileHeader
}

// decodeExtractRequest folds the three accepted body encodings into one
// ExtractRequest, plus the uploaded file when the body is multipart.
func (h *Handlers) decodeExtractRequest(r *http.Request) (ExtractRequest, *uploadedFile, error) {
	var req ExtractRequest

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case strings.HasPrefix(contentType, "multipart/"):
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return req, nil, fmt.Errorf("parse multipart form: %w", err)
		}
		req.VideoURL = r.FormValue("videoUrl")
		if err := parseFormInterval(r.FormValue("interval"), &req); err != nil {
			return req, nil, err
		}

		file, header, err := r.FormFile("video")
		switch {
		case err == nil:
			return req, &uploadedFile{file: file, header: header}, nil
		case errors.Is(err, http.ErrMissingFile):
			return req, nil, nil
		default:
			return req, nil, fmt.Errorf("read video field: %w", err)
		}

	case contentType == "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, nil, fmt.Errorf("decode JSON body: %w", err)
		}
		return req, nil, nil

	default:
		if err := r.ParseForm(); err != nil {
			return req, nil, fmt.Errorf("parse form: %w", err)
		}
		req.VideoURL = r.FormValue("videoUrl")
		if err := parseFormInterval(r.FormValue("interval"), &req); err != nil {
			return req, nil, err
		}
		return req, nil, nil
	}
}

// buildSource stages an uploaded file or wraps the remote URL. The upload
// takes precedence when a request carries both.
func (h *Handlers) buildSource(r *http.Request, req ExtractRequest, upload *uploadedFile) (video.Source, error) {
	if upload != nil {
		mimeType := upload.header.Header.Get("Content-Type")
		if !video.AllowedMIME(mimeType) {
			h.logger.Warn("rejected upload",
				slog.String("filename", upload.header.Filename),
				slog.String("content_type", mimeType),
			)
			return video.Source{}, &unsupportedTypeError{mimeType: mimeType}
		}

		stagedPath, err := h.staging.SaveStaged(r.Context(), "upload_*.mp4", upload.file)
		if err != nil {
			return video.Source{}, fmt.Errorf("stage uploaded video: %w", err)
		}
		return video.Source{Kind: video.SourceUpload, UploadPath: stagedPath}, nil
	}

	if req.VideoURL != "" {
		return video.Source{Kind: video.SourceURL, URL: req.VideoURL}, nil
	}

	return video.Source{}, video.ErrNoSource
}

// parseFormInterval interprets the string-encoded interval form field. An
// absent or empty field keeps the default; a present but malformed value is
// an error, not a silent fallback.
func parseFormInterval(raw string, req *ExtractRequest) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return job.ErrInvalidInterval
	}
	req.Interval = &n
	return nil
}

// unsupportedTypeError rejects an upload whose declared MIME type is not
// in the video allow-list.
type unsupportedTypeError struct {
	mimeType string
}

func (e *unsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported video type %q", e.mimeType)
}

// writeExtractError maps pipeline and request errors onto the extraction
// endpoint's HTTP contract.
func (h *Handlers) writeExtractError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	var typeErr *unsupportedTypeError
	var pErr *job.PipelineError

	switch {
	case errors.Is(err, job.ErrInvalidInterval):
		h.logger.Warn("rejected extraction request", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "Invalid interval. Must be an integer between 1 and 60 seconds.", "")
	case errors.Is(err, video.ErrNoSource):
		h.logger.Warn("rejected extraction request", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "No video file or videoUrl provided", "")
	case errors.As(err, &typeErr):
		writeError(w, http.StatusBadRequest, "Unsupported video type", typeErr.mimeType)
	case errors.As(err, &maxErr):
		h.logger.Warn("rejected extraction request", slog.String("error", err.Error()))
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "")
	case errors.As(err, &pErr) && pErr.Stage == job.StageAcquire:
		h.logger.Error("video acquisition failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to acquire video", pErr.Err.Error())
	case errors.As(err, &pErr) && pErr.Stage == job.StageExtract:
		h.logger.Error("frame extraction failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to extract key frames", pErr.Err.Error())
	default:
		h.logger.Error("extraction request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error", "")
	}
}

// requestBaseURL returns the configured public origin, or the request's own
// scheme and host when none is configured.
func (h *Handlers) requestBaseURL(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
