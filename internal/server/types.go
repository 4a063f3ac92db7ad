// Package server provides the HTTP server for the keyframe extraction API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// ExtractRequest carries the client-supplied extraction parameters. JSON
// requests decode into it directly; multipart and form-encoded requests are
// folded into the same shape so validation happens in one place.
type ExtractRequest struct {
	// VideoURL is the remote video to download when no file is uploaded.
	VideoURL string `json:"videoUrl" validate:"omitempty,url"`
	// Interval is the sampling interval in seconds between key frames.
	// A nil value means the field was absent and the default applies.
	// Bounds are checked in the handler, not here: omitempty would wave
	// an explicit zero through.
	Interval *int `json:"interval"`
}

// ExtractResponse is the HTTP response for a successful extraction.
type ExtractResponse struct {
	// Success is always true on this path.
	Success bool `json:"success"`
	// VideoID is the unique identifier for the extracted frame set.
	VideoID string `json:"videoId"`
	// Interval is the sampling interval in seconds that was applied.
	Interval int `json:"interval"`
	// FrameCount is the number of key frames produced.
	FrameCount int `json:"frameCount"`
	// KeyFrames lists the frame URLs in temporal order.
	KeyFrames []string `json:"keyFrames"`
}

// DeleteResponse is the HTTP response after deleting a frame set.
type DeleteResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Details carries the underlying cause when one is safe to expose.
	Details string `json:"details,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Timestamp is the server time in RFC 3339 format.
	Timestamp string `json:"timestamp"`
}
