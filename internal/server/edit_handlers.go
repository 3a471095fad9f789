package server

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/maauso/marathon-media/internal/editor"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to disk.
const multipartMemory = 8 << 20

// OpenCrop handles POST /crops requests.
func (h *Handlers) OpenCrop(w http.ResponseWriter, r *http.Request) {
	file, header, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer func() { _ = file.Close() }()

	form := OpenCropForm{Preset: r.FormValue("preset")}
	var err error
	if form.FrameWidth, err = formInt(r, "frame_width"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if form.FrameHeight, err = formInt(r, "frame_height"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if !h.validate(w, form) {
		return
	}

	session, err := h.editor.OpenCrop(r.Context(), editor.OpenCropInput{
		Upload:      editor.Upload{Name: header.Filename, Data: file},
		Preset:      form.Preset,
		FrameWidth:  form.FrameWidth,
		FrameHeight: form.FrameHeight,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.sessionResponse(session))
}

// UpdateCrop handles PATCH /crops/{id} requests.
func (h *Handlers) UpdateCrop(w http.ResponseWriter, r *http.Request) {
	var req UpdateCropRequest
	if !h.decode(w, r, &req) {
		return
	}

	view := editor.CropView{Zoom: req.Zoom, OffsetX: req.OffsetX, OffsetY: req.OffsetY}
	if req.Pointer != nil {
		view.Pointer = &editor.PointerEvent{Event: req.Pointer.Event, X: req.Pointer.X, Y: req.Pointer.Y}
	}

	session, err := h.editor.UpdateCrop(r.Context(), r.PathValue("id"), view)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(session))
}

// ApplyCrop handles POST /crops/{id}/apply requests.
func (h *Handlers) ApplyCrop(w http.ResponseWriter, r *http.Request) {
	session, err := h.editor.ApplyCrop(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(session))
}

// OpenTrim handles POST /trims requests.
func (h *Handlers) OpenTrim(w http.ResponseWriter, r *http.Request) {
	file, header, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer func() { _ = file.Close() }()

	form := OpenTrimForm{Target: r.FormValue("target")}
	var err error
	if form.Duration, err = formFloat(r, "duration"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if !h.validate(w, form) {
		return
	}

	session, err := h.editor.OpenTrim(r.Context(), editor.OpenTrimInput{
		Upload: editor.Upload{Name: header.Filename, Data: file, Duration: form.Duration},
		Target: form.Target,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.sessionResponse(session))
}

// ReplaceCropSource handles PUT /crops/{id}/source requests.
func (h *Handlers) ReplaceCropSource(w http.ResponseWriter, r *http.Request) {
	h.replaceSource(w, r, editor.KindCrop)
}

// ReplaceTrimSource handles PUT /trims/{id}/source requests.
func (h *Handlers) ReplaceTrimSource(w http.ResponseWriter, r *http.Request) {
	h.replaceSource(w, r, editor.KindTrim)
}

func (h *Handlers) replaceSource(w http.ResponseWriter, r *http.Request, kind editor.Kind) {
	file, header, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer func() { _ = file.Close() }()

	form := ReplaceSourceForm{}
	var err error
	if form.Duration, err = formFloat(r, "duration"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if !h.validate(w, form) {
		return
	}

	up := editor.Upload{Name: header.Filename, Data: file, Duration: form.Duration}
	session, err := h.editor.ReplaceSource(r.Context(), r.PathValue("id"), kind, up)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(session))
}

// ApplyTrim handles POST /trims/{id}/apply requests.
func (h *Handlers) ApplyTrim(w http.ResponseWriter, r *http.Request) {
	var req ApplyTrimRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.editor.ApplyTrim(r.Context(), r.PathValue("id"), *req.Start, *req.End)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(session))
}

// CancelSession handles DELETE /sessions/{id} requests.
func (h *Handlers) CancelSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.editor.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(session))
}

// GetSession handles GET /sessions/{id} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.editor.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(session))
}

// readUpload parses a multipart body and returns its "file" part. It writes
// the error response and returns false on failure.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit", "INVALID_UPLOAD")
			return nil, nil, false
		}
		h.logger.Warn("failed to parse multipart body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_UPLOAD")
		return nil, nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", "INVALID_UPLOAD")
		return nil, nil, false
	}
	return file, header, true
}

func formInt(r *http.Request, key string) (int, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

func formFloat(r *http.Request, key string) (float64, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New(key + " must be a number")
	}
	return f, nil
}

func (h *Handlers) sessionResponse(s *editor.Session) SessionResponse {
	resp := SessionResponse{
		ID:     s.ID,
		Kind:   string(s.Kind),
		Status: string(s.Status),
		Preset: s.Preset,
		Target: s.Target,
		Source: SourceResponse{
			Name:        s.Source.Name,
			ContentType: s.Source.ContentType,
			Size:        s.Source.Size,
		},
		ResultURL: s.ResultURL,
		Error:     s.Error,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if d := s.Crop; d != nil {
		maxX, maxY := d.MaxOffset()
		rect := d.SourceRect()
		resp.Crop = &CropResponse{
			ImageWidth:  d.ImageWidth,
			ImageHeight: d.ImageHeight,
			FrameWidth:  d.FrameWidth,
			FrameHeight: d.FrameHeight,
			Zoom:        d.Zoom,
			OffsetX:     d.OffsetX,
			OffsetY:     d.OffsetY,
			MaxOffsetX:  maxX,
			MaxOffsetY:  maxY,
			Dragging:    d.Dragging(),
			SourceRect:  RectResponse{X: rect.X, Y: rect.Y, W: rect.W, H: rect.H},
		}
	}
	if d := s.Trim; d != nil {
		resp.Trim = &TrimResponse{
			Duration:   d.Duration,
			Start:      d.Start,
			End:        d.End,
			MaxClipSec: h.editor.MaxClip(),
		}
	}
	return resp
}
