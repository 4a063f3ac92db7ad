// Package video provides acquisition of source videos from client uploads
// and remote URLs into the staging area.
package video

import (
	"context"
	"errors"
	"mime"
	"strings"
)

// Static errors for acquisition.
var (
	// ErrNoSource is returned when a Source carries neither a URL nor an upload.
	ErrNoSource = errors.New("video: no source provided")
	// ErrUploadMissing is returned when a staged upload no longer exists on disk.
	ErrUploadMissing = errors.New("video: staged upload missing")
)

// SourceKind discriminates where a video comes from.
type SourceKind string

const (
	// SourceUpload is a file the client sent in the request body.
	SourceUpload SourceKind = "upload"
	// SourceURL is a video fetched from a remote location.
	SourceURL SourceKind = "url"
)

// Source describes one video input. URL is set for SourceURL, UploadPath
// for SourceUpload; UploadPath points at a file the transport layer already
// wrote into the staging area.
type Source struct {
	Kind       SourceKind
	URL        string
	UploadPath string
}

// Staged is a video sitting in the staging area, ready for extraction.
type Staged struct {
	// Path is the staged file location.
	Path string
	// Owned marks files the pipeline must delete when the job finishes.
	Owned bool
}

// Acquirer stages a video for extraction and disposes of it afterwards.
type Acquirer interface {
	// Acquire makes the source available as a local file in the staging
	// area. The returned Staged must be handed to Discard once the
	// pipeline is done with it, whatever the outcome.
	Acquire(ctx context.Context, src Source) (*Staged, error)

	// Discard removes a staged video. It is idempotent and tolerates nil,
	// unowned, and already-deleted inputs.
	Discard(ctx context.Context, staged *Staged) error
}

// AllowedMIMETypes lists the upload content types the service accepts.
var AllowedMIMETypes = []string{
	"video/mp4",
	"video/mpeg",
	"video/quicktime",
	"video/x-msvideo",
	"video/webm",
}

// AllowedMIME reports whether t is an accepted video content type.
// Parameters such as codecs are ignored.
func AllowedMIME(t string) bool {
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(t))
	}
	for _, allowed := range AllowedMIMETypes {
		if mediaType == allowed {
			return true
		}
	}
	return false
}
