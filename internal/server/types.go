// Package server provides the HTTP server for the marathon media API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/marathon-media/internal/activity"
	"github.com/maauso/marathon-media/internal/palette"
)

// NormalizeTimeRequest is the body of POST /schedule/normalize.
type NormalizeTimeRequest struct {
	// Time is the display time typed by the admin, e.g. " 7:30 pm".
	Time string `json:"time" validate:"max=64"`
}

// NormalizeTimeResponse carries the normalized display time.
type NormalizeTimeResponse struct {
	Display string `json:"display"`
}

// MomentRequest is the body of POST /schedule/moment. All fields are optional.
type MomentRequest struct {
	// Datetime is an absolute timestamp; when valid it wins over Date and Time.
	Datetime *string `json:"datetime" validate:"omitempty,max=64"`
	// Date is a calendar date, YYYY-MM-DD.
	Date *string `json:"date" validate:"omitempty,max=32"`
	// Time is a 12-hour clock time, e.g. "7:30 PM".
	Time *string `json:"time" validate:"omitempty,max=64"`
}

// MomentResponse carries the composed instant, or null.
type MomentResponse struct {
	Moment *string `json:"moment"`
}

// NextCodeRequest is the body of POST /roster/next-code.
type NextCodeRequest struct {
	// Prefix is the code prefix: "#G" for games or "#P" for players.
	Prefix string `json:"prefix" validate:"required,code_prefix"`
	// Existing lists the codes already taken.
	Existing []string `json:"existing" validate:"max=10000,dive,max=32"`
}

// NextCodeResponse carries the next free code.
type NextCodeResponse struct {
	Code string `json:"code"`
}

// PalettesRequest is the body of POST /palettes.
type PalettesRequest struct {
	// URLs are the images to extract palettes from.
	URLs []string `json:"urls" validate:"required,min=1,max=50,dive,required,http_url"`
}

// PalettesResponse carries one palette per requested URL, in request order.
type PalettesResponse struct {
	Palettes []palette.Palette `json:"palettes"`
}

// OpenCropForm holds the non-file fields of POST /crops.
type OpenCropForm struct {
	Preset      string `validate:"required,oneof=avatar portrait cover item"`
	FrameWidth  int    `validate:"omitempty,min=1,max=4096"`
	FrameHeight int    `validate:"omitempty,min=1,max=4096"`
}

// OpenTrimForm holds the non-file fields of POST /trims.
type OpenTrimForm struct {
	Target string `validate:"max=64"`
	// Duration is the client-reported length in seconds, used only when the
	// server cannot probe the video.
	Duration float64 `validate:"omitempty,gt=0,max=86400"`
}

// ReplaceSourceForm holds the non-file fields of PUT /{crops,trims}/{id}/source.
type ReplaceSourceForm struct {
	Duration float64 `validate:"omitempty,gt=0,max=86400"`
}

// PointerRequest is a drag gesture step in frame pixels.
type PointerRequest struct {
	Event string  `json:"event" validate:"required,oneof=down move up"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// UpdateCropRequest is the body of PATCH /crops/{id}. Omitted fields are unchanged.
type UpdateCropRequest struct {
	Zoom    *float64        `json:"zoom"`
	OffsetX *float64        `json:"offset_x"`
	OffsetY *float64        `json:"offset_y"`
	Pointer *PointerRequest `json:"pointer"`
}

// ApplyTrimRequest is the body of POST /trims/{id}/apply.
type ApplyTrimRequest struct {
	Start *float64 `json:"start" validate:"required"`
	End   *float64 `json:"end" validate:"required"`
}

// SourceResponse describes the file being edited.
type SourceResponse struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// RectResponse is a rectangle in source image pixels.
type RectResponse struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// CropResponse is the clamped crop draft.
type CropResponse struct {
	ImageWidth  int          `json:"image_width"`
	ImageHeight int          `json:"image_height"`
	FrameWidth  int          `json:"frame_width"`
	FrameHeight int          `json:"frame_height"`
	Zoom        float64      `json:"zoom"`
	OffsetX     float64      `json:"offset_x"`
	OffsetY     float64      `json:"offset_y"`
	MaxOffsetX  float64      `json:"max_offset_x"`
	MaxOffsetY  float64      `json:"max_offset_y"`
	Dragging    bool         `json:"dragging"`
	SourceRect  RectResponse `json:"source_rect"`
}

// TrimResponse is the trim window.
type TrimResponse struct {
	Duration   float64 `json:"duration"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	MaxClipSec float64 `json:"max_clip_sec"`
}

// SessionResponse is the HTTP view of an edit session.
type SessionResponse struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Status    string         `json:"status"`
	Preset    string         `json:"preset,omitempty"`
	Target    string         `json:"target,omitempty"`
	Source    SourceResponse `json:"source"`
	Crop      *CropResponse  `json:"crop,omitempty"`
	Trim      *TrimResponse  `json:"trim,omitempty"`
	ResultURL string         `json:"result_url,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ActivityResponse lists activity entries, newest first.
type ActivityResponse struct {
	Entries []activity.Entry `json:"entries"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
