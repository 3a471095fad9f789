package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/marathon-media/internal/activity"
	"github.com/maauso/marathon-media/internal/crop"
	"github.com/maauso/marathon-media/internal/editor"
	"github.com/maauso/marathon-media/internal/media"
	"github.com/maauso/marathon-media/internal/palette"
	"github.com/maauso/marathon-media/internal/roster"
	"github.com/maauso/marathon-media/internal/schedule"
	"github.com/maauso/marathon-media/internal/trim"
)

// defaultActivityLimit is used when GET /activity has no limit.
const defaultActivityLimit = 50

// PaletteHydrator extracts palettes for a list of image URLs.
type PaletteHydrator interface {
	Hydrate(ctx context.Context, urls []string) ([]palette.Palette, error)
}

// ActivityLog lists recorded activity, newest first.
type ActivityLog interface {
	List(ctx context.Context, limit int) []activity.Entry
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	editor    *editor.Service
	palettes  PaletteHydrator
	activity  ActivityLog
	validator *validator.Validate
	logger    *slog.Logger
	location  *time.Location
	maxUpload int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithPalettes sets the palette hydrator used by POST /palettes.
func WithPalettes(p PaletteHydrator) HandlerOption {
	return func(h *Handlers) {
		h.palettes = p
	}
}

// WithActivityLog sets the log served by GET /activity.
func WithActivityLog(l ActivityLog) HandlerOption {
	return func(h *Handlers) {
		h.activity = l
	}
}

// WithLocation sets the zone in which schedule dates are interpreted.
func WithLocation(loc *time.Location) HandlerOption {
	return func(h *Handlers) {
		if loc != nil {
			h.location = loc
		}
	}
}

// WithMaxUploadBytes caps the size of multipart uploads.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *editor.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	validate := validator.New()
	_ = validate.RegisterValidation("code_prefix", func(fl validator.FieldLevel) bool {
		return roster.IsPrefix(fl.Field().String())
	})

	h := &Handlers{
		editor:    service,
		validator: validate,
		logger:    logger,
		location:  time.Local,
		maxUpload: 200 << 20,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// NormalizeTime handles POST /schedule/normalize requests.
func (h *Handlers) NormalizeTime(w http.ResponseWriter, r *http.Request) {
	var req NormalizeTimeRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, NormalizeTimeResponse{Display: schedule.NormalizeDisplay(req.Time)})
}

// ComposeMoment handles POST /schedule/moment requests.
func (h *Handlers) ComposeMoment(w http.ResponseWriter, r *http.Request) {
	var req MomentRequest
	if !h.decode(w, r, &req) {
		return
	}

	var resp MomentResponse
	if t, ok := schedule.ComposeMomentIn(h.location, req.Datetime, req.Date, req.Time); ok {
		s := t.Format(time.RFC3339)
		resp.Moment = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// NextCode handles POST /roster/next-code requests.
func (h *Handlers) NextCode(w http.ResponseWriter, r *http.Request) {
	var req NextCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, NextCodeResponse{Code: roster.NextCode(req.Prefix, req.Existing)})
}

// Palettes handles POST /palettes requests.
func (h *Handlers) Palettes(w http.ResponseWriter, r *http.Request) {
	var req PalettesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.palettes == nil {
		writeError(w, http.StatusServiceUnavailable, "palette extraction is not configured", "INTERNAL_ERROR")
		return
	}

	palettes, err := h.palettes.Hydrate(r.Context(), req.URLs)
	if err != nil {
		// the client went away; nothing useful to send
		h.logger.Warn("palette hydration cancelled",
			slog.Int("urls", len(req.URLs)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "palette extraction cancelled", "INTERNAL_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, PalettesResponse{Palettes: palettes})
}

// Activity handles GET /activity requests.
func (h *Handlers) Activity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000", "VALIDATION_ERROR")
			return
		}
		limit = n
	}

	entries := []activity.Entry{}
	if h.activity != nil {
		entries = h.activity.List(r.Context(), limit)
	}
	writeJSON(w, http.StatusOK, ActivityResponse{Entries: entries})
}

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	return h.validate(w, dst)
}

func (h *Handlers) validate(w http.ResponseWriter, v any) bool {
	if err := h.validator.Struct(v); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeServiceError maps editor errors to status codes and error codes.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("code", code), slog.String("error", msg))
	}
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeError(w, status, msg, code)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, editor.ErrSessionNotFound), errors.Is(err, editor.ErrWrongKind):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, editor.ErrSessionClosed), errors.Is(err, editor.ErrInvalidTransition), errors.Is(err, trim.ErrBusy):
		return http.StatusConflict, "SESSION_CLOSED"
	case errors.Is(err, trim.ErrClipTooLong):
		return http.StatusUnprocessableEntity, "CLIP_TOO_LONG"
	case errors.Is(err, trim.ErrInvalidRange):
		return http.StatusUnprocessableEntity, "INVALID_RANGE"
	case errors.Is(err, trim.ErrCannotTrim):
		return http.StatusUnprocessableEntity, "CANNOT_TRIM"
	case errors.Is(err, media.ErrUnsupportedMedia), errors.Is(err, editor.ErrDecodeImage):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA"
	case errors.Is(err, editor.ErrUnknownPreset), errors.Is(err, editor.ErrInvalidPointer),
		errors.Is(err, crop.ErrInvalidDimensions), errors.Is(err, crop.ErrEmptyRegion):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, editor.ErrApplyFailed):
		return http.StatusBadGateway, "APPLY_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
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
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
