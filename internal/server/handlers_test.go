package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/maauso/marathon-media/internal/activity"
	"github.com/maauso/marathon-media/internal/editor"
	"github.com/maauso/marathon-media/internal/media"
	"github.com/maauso/marathon-media/internal/palette"
	"github.com/maauso/marathon-media/internal/storage"
	"github.com/maauso/marathon-media/internal/trim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockProcessor implements media.Processor for testing.
type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockProcessor) Trim(ctx context.Context, src, dst string, start, end float64, container media.Container) error {
	args := m.Called(ctx, src, dst, start, end, container)
	return args.Error(0)
}

// stubHydrator returns fixed palettes or an error.
type stubHydrator struct {
	err  error
	urls []string
}

func (s *stubHydrator) Hydrate(_ context.Context, urls []string) ([]palette.Palette, error) {
	s.urls = urls
	if s.err != nil {
		return nil, s.err
	}
	out := make([]palette.Palette, len(urls))
	for i := range out {
		out[i] = palette.Fallback
	}
	return out, nil
}

type testEnv struct {
	handlers  *Handlers
	router    http.Handler
	processor *mockProcessor
	hydrator  *stubHydrator
	log       *activity.MemoryLog
}

func newTestEnv(t *testing.T, opts ...HandlerOption) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := storage.NewLocalStorage(t.TempDir(), storage.WithPublishDir(t.TempDir(), "https://cdn.example.com"))
	require.NoError(t, err)

	processor := &mockProcessor{}
	log := activity.NewMemoryLog(20)
	svc := editor.NewService(editor.NewMemoryRepository(), store, processor, trim.NewEngine(processor, logger),
		editor.WithRecorder(log),
		editor.WithLogger(logger),
	)

	hydrator := &stubHydrator{}
	base := []HandlerOption{
		WithPalettes(hydrator),
		WithActivityLog(log),
		WithLocation(time.UTC),
	}
	h := NewHandlers(svc, logger, append(base, opts...)...)

	return &testEnv{
		handlers:  h,
		router:    NewRouter(h, logger, DefaultConfig()),
		processor: processor,
		hydrator:  hydrator,
		log:       log,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return e.do(t, method, path, bytes.NewReader(b), "application/json")
}

// multipartBody builds a form with an optional file part.
func multipartBody(t *testing.T, fileName string, content []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if content != nil {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.NRGBA{R: 10, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader returns a PNG that declares w x h pixels but carries no image data.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := make([]byte, 4+13)
	copy(chunk, "IHDR")
	binary.BigEndian.PutUint32(chunk[4:], w)
	binary.BigEndian.PutUint32(chunk[8:], h)
	chunk[12] = 8
	chunk[13] = 2
	_ = binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func mp4Bytes() []byte {
	head := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00}
	return append(head, bytes.Repeat([]byte{0}, 256)...)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	env.handlers.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
}

func TestNormalizeTime(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		in   string
		want string
	}{
		{" 7:30   pm ", "7:30 PM"},
		{"12:05am", "12:05AM"},
		{"noon-ish", "noon-ish"},
		{"13:00 PM", "13:00 PM"},
	}
	for _, tt := range tests {
		rec := env.doJSON(t, http.MethodPost, "/schedule/normalize", NormalizeTimeRequest{Time: tt.in})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tt.want, decodeBody[NormalizeTimeResponse](t, rec).Display, "input %q", tt.in)
	}
}

func TestNormalizeTime_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/schedule/normalize", strings.NewReader("{not json"), "application/json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeBody[ErrorResponse](t, rec).Code)
}

func TestComposeMoment(t *testing.T) {
	env := newTestEnv(t)
	str := func(s string) *string { return &s }

	tests := []struct {
		name string
		req  MomentRequest
		want *string
	}{
		{"datetime wins", MomentRequest{Datetime: str("2025-06-01T10:00:00Z"), Date: str("2020-01-01"), Time: str("1:00 PM")}, str("2025-06-01T10:00:00Z")},
		{"date and time", MomentRequest{Date: str("2025-03-01"), Time: str("7:30 pm")}, str("2025-03-01T19:30:00Z")},
		{"date only", MomentRequest{Date: str("2025-03-01")}, str("2025-03-01T00:00:00Z")},
		{"unparseable time", MomentRequest{Date: str("2025-03-01"), Time: str("evening")}, str("2025-03-01T00:00:00Z")},
		{"bad date", MomentRequest{Date: str("03/01/2025"), Time: str("7:30 PM")}, nil},
		{"nothing", MomentRequest{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.doJSON(t, http.MethodPost, "/schedule/moment", tt.req)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, decodeBody[MomentResponse](t, rec).Moment)
		})
	}
}

func TestNextCode(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/roster/next-code", NextCodeRequest{Prefix: "#G", Existing: []string{"#G01", "#G03", "#P02"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#G02", decodeBody[NextCodeResponse](t, rec).Code)

	rec = env.doJSON(t, http.MethodPost, "/roster/next-code", NextCodeRequest{Prefix: "#P"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#P01", decodeBody[NextCodeResponse](t, rec).Code)

	for name, req := range map[string]NextCodeRequest{
		"missing prefix": {},
		"unknown prefix": {Prefix: "#X", Existing: []string{"#X01"}},
	} {
		t.Run(name, func(t *testing.T) {
			rec := env.doJSON(t, http.MethodPost, "/roster/next-code", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestPalettes(t *testing.T) {
	env := newTestEnv(t)

	urls := []string{"https://img.example.com/a.png", "https://img.example.com/b.png"}
	rec := env.doJSON(t, http.MethodPost, "/palettes", PalettesRequest{URLs: urls})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[PalettesResponse](t, rec)
	require.Len(t, resp.Palettes, 2)
	assert.Equal(t, palette.Fallback, resp.Palettes[0])
	assert.Equal(t, urls, env.hydrator.urls)
}

func TestPalettes_Validation(t *testing.T) {
	env := newTestEnv(t)

	tooMany := make([]string, 51)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("https://img.example.com/%d.png", i)
	}

	for name, req := range map[string]PalettesRequest{
		"empty":    {URLs: []string{}},
		"missing":  {},
		"not url":  {URLs: []string{"not a url"}},
		"file url": {URLs: []string{"file:///etc/passwd"}},
		"ftp url":  {URLs: []string{"ftp://img.example.com/a.png"}},
		"too many": {URLs: tooMany},
	} {
		t.Run(name, func(t *testing.T) {
			rec := env.doJSON(t, http.MethodPost, "/palettes", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestPalettes_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	env.hydrator.err = context.Canceled

	rec := env.doJSON(t, http.MethodPost, "/palettes", PalettesRequest{URLs: []string{"https://img.example.com/a.png"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCropFlow(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "logo.png", pngBytes(t, 300, 100), map[string]string{
		"preset":       "cover",
		"frame_width":  "320",
		"frame_height": "180",
	})
	rec := env.do(t, http.MethodPost, "/crops", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody[SessionResponse](t, rec)
	assert.Equal(t, "crop", created.Kind)
	assert.Equal(t, "OPEN", created.Status)
	assert.Equal(t, "cover", created.Preset)
	require.NotNil(t, created.Crop)
	assert.Equal(t, 300, created.Crop.ImageWidth)
	assert.Equal(t, 320, created.Crop.FrameWidth)
	assert.Equal(t, "image/png", created.Source.ContentType)

	rec = env.doJSON(t, http.MethodPatch, "/crops/"+created.ID, map[string]any{"zoom": 2.0, "offset_x": -10000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[SessionResponse](t, rec)
	assert.Equal(t, 2.0, updated.Crop.Zoom)
	assert.Equal(t, -updated.Crop.MaxOffsetX, updated.Crop.OffsetX)
	assert.GreaterOrEqual(t, updated.Crop.SourceRect.X, 0.0)
	assert.LessOrEqual(t, updated.Crop.SourceRect.X+updated.Crop.SourceRect.W, 300.0+1e-9)

	rec = env.doJSON(t, http.MethodPatch, "/crops/"+created.ID, map[string]any{"pointer": map[string]any{"event": "down", "x": 10, "y": 10}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[SessionResponse](t, rec).Crop.Dragging)

	rec = env.do(t, http.MethodPost, "/crops/"+created.ID+"/apply", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	applied := decodeBody[SessionResponse](t, rec)
	assert.Equal(t, "APPLIED", applied.Status)
	assert.Equal(t, "https://cdn.example.com/crops/cover/"+created.ID+".jpg", applied.ResultURL)

	rec = env.do(t, http.MethodGet, "/sessions/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "APPLIED", decodeBody[SessionResponse](t, rec).Status)

	rec = env.do(t, http.MethodPost, "/crops/"+created.ID+"/apply", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SESSION_CLOSED", decodeBody[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/activity?limit=5", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[ActivityResponse](t, rec).Entries
	require.Len(t, entries, 1)
	assert.Equal(t, activity.ActionCropImage, entries[0].Action)
}

func TestOpenCrop_Errors(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		content  []byte
		fields   map[string]string
		status   int
		code     string
	}{
		{"missing file", "", nil, map[string]string{"preset": "avatar"}, http.StatusBadRequest, "INVALID_UPLOAD"},
		{"unknown preset", "a.png", nil, map[string]string{"preset": "banner"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad frame", "a.png", nil, map[string]string{"preset": "avatar", "frame_width": "wide"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"frame too large", "a.png", nil, map[string]string{"preset": "avatar", "frame_width": "9000"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not an image", "a.mp4", mp4Bytes(), map[string]string{"preset": "avatar"}, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA"},
		{"frame aspect", "a.png", nil, map[string]string{"preset": "avatar", "frame_width": "400", "frame_height": "100"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"too many pixels", "huge.png", pngHeader(20000, 20000), map[string]string{"preset": "avatar"}, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			content := tt.content
			if content == nil && tt.fileName != "" {
				content = pngBytes(t, 8, 8)
			}
			body, ct := multipartBody(t, tt.fileName, content, tt.fields)
			rec := env.do(t, http.MethodPost, "/crops", body, ct)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestOpenCrop_NotMultipart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/crops", map[string]string{"preset": "avatar"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_UPLOAD", decodeBody[ErrorResponse](t, rec).Code)
}

func TestOpenCrop_TooLarge(t *testing.T) {
	env := newTestEnv(t, WithMaxUploadBytes(1024))

	body, ct := multipartBody(t, "big.png", bytes.Repeat([]byte{1}, 4096), map[string]string{"preset": "avatar"})
	rec := env.do(t, http.MethodPost, "/crops", body, ct)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "INVALID_UPLOAD", decodeBody[ErrorResponse](t, rec).Code)
}

func TestUpdateCrop_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPatch, "/crops/missing", map[string]any{"zoom": 2})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)

	rec = env.doJSON(t, http.MethodPatch, "/crops/missing", map[string]any{"pointer": map[string]any{"event": "wiggle"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeBody[ErrorResponse](t, rec).Code)
}

func TestTrimFlow(t *testing.T) {
	env := newTestEnv(t)
	env.processor.On("ProbeDuration", mock.Anything, mock.Anything).Return(90.0, nil)
	env.processor.On("Trim", mock.Anything, mock.Anything, mock.Anything, 10.0, 25.0, media.ContainerMP4).
		Run(func(args mock.Arguments) {
			_ = os.WriteFile(args.String(2), []byte("clip"), 0o600)
		}).
		Return(nil)

	body, ct := multipartBody(t, "match.mp4", mp4Bytes(), map[string]string{"target": "#G04"})
	rec := env.do(t, http.MethodPost, "/trims", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody[SessionResponse](t, rec)
	assert.Equal(t, "trim", created.Kind)
	assert.Equal(t, "#G04", created.Target)
	require.NotNil(t, created.Trim)
	assert.Equal(t, 90.0, created.Trim.Duration)
	assert.Equal(t, 60.0, created.Trim.End)
	assert.Equal(t, 60.0, created.Trim.MaxClipSec)

	rec = env.doJSON(t, http.MethodPost, "/trims/"+created.ID+"/apply", map[string]float64{"start": 0, "end": 75})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CLIP_TOO_LONG", decodeBody[ErrorResponse](t, rec).Code)

	rec = env.doJSON(t, http.MethodPost, "/trims/"+created.ID+"/apply", map[string]float64{"start": 30, "end": 20})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_RANGE", decodeBody[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/sessions/"+created.ID, nil, "")
	still := decodeBody[SessionResponse](t, rec)
	assert.Equal(t, "OPEN", still.Status)
	assert.NotEmpty(t, still.Error)

	rec = env.doJSON(t, http.MethodPost, "/trims/"+created.ID+"/apply", map[string]float64{"start": 10, "end": 25})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	applied := decodeBody[SessionResponse](t, rec)
	assert.Equal(t, "APPLIED", applied.Status)
	assert.Equal(t, "https://cdn.example.com/trims/"+created.ID+".mp4", applied.ResultURL)
	env.processor.AssertNumberOfCalls(t, "Trim", 1)
}

func TestApplyTrim_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/trims/any/apply", map[string]float64{"end": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeBody[ErrorResponse](t, rec).Code)
}

func TestOpenTrim_CannotTrim(t *testing.T) {
	env := newTestEnv(t)
	env.processor.On("ProbeDuration", mock.Anything, mock.Anything).Return(0.0, media.ErrUnsupported)

	body, ct := multipartBody(t, "match.mp4", mp4Bytes(), nil)
	rec := env.do(t, http.MethodPost, "/trims", body, ct)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CANNOT_TRIM", decodeBody[ErrorResponse](t, rec).Code)
}

func TestReplaceTrimSource(t *testing.T) {
	env := newTestEnv(t)
	env.processor.On("ProbeDuration", mock.Anything, mock.Anything).Return(30.0, nil)

	body, ct := multipartBody(t, "first.mp4", mp4Bytes(), nil)
	rec := env.do(t, http.MethodPost, "/trims", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[SessionResponse](t, rec)

	body, ct = multipartBody(t, "second.mp4", mp4Bytes(), nil)
	rec = env.do(t, http.MethodPut, "/trims/"+created.ID+"/source", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "second.mp4", decodeBody[SessionResponse](t, rec).Source.Name)
}

func TestCancelSession(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "a.png", pngBytes(t, 16, 16), map[string]string{"preset": "item"})
	rec := env.do(t, http.MethodPost, "/crops", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[SessionResponse](t, rec)

	rec = env.do(t, http.MethodDelete, "/sessions/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decodeBody[SessionResponse](t, rec).Status)

	rec = env.do(t, http.MethodDelete, "/sessions/"+created.ID, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SESSION_CLOSED", decodeBody[ErrorResponse](t, rec).Code)

	entries := env.log.List(context.Background(), 0)
	require.Len(t, entries, 1)
	assert.Equal(t, activity.ActionCancelEdit, entries[0].Action)
}

func TestGetSession_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/sessions/nope", nil, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)
}

func TestActivity_Limit(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.log.Record(context.Background(), activity.ActionTrimVideo, fmt.Sprintf("t%d", i), nil))
	}

	rec := env.do(t, http.MethodGet, "/activity?limit=2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[ActivityResponse](t, rec).Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "t2", entries[0].Target)

	for _, bad := range []string{"0", "-1", "abc", "5000"} {
		rec = env.do(t, http.MethodGet, "/activity?limit="+bad, nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", bad)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{editor.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{fmt.Errorf("wrap: %w", editor.ErrWrongKind), http.StatusNotFound, "SESSION_NOT_FOUND"},
		{editor.ErrSessionClosed, http.StatusConflict, "SESSION_CLOSED"},
		{trim.ErrClipTooLong, http.StatusUnprocessableEntity, "CLIP_TOO_LONG"},
		{trim.ErrInvalidRange, http.StatusUnprocessableEntity, "INVALID_RANGE"},
		{trim.ErrCannotTrim, http.StatusUnprocessableEntity, "CANNOT_TRIM"},
		{media.ErrUnsupportedMedia, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA"},
		{editor.ErrDecodeImage, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA"},
		{editor.ErrUnknownPreset, http.StatusBadRequest, "VALIDATION_ERROR"},
		{fmt.Errorf("%w: %w", editor.ErrApplyFailed, errors.New("s3 down")), http.StatusBadGateway, "APPLY_FAILED"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestCORSMiddleware(t *testing.T) {
	env := newTestEnv(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(env.handlers, logger, cfg)

	// Test with allowed origin
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")

	// Test with other origin
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Test OPTIONS preflight
	req = httptest.NewRequest(http.MethodOptions, "/crops", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	// Create a handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(logger)(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeBody[ErrorResponse](t, rec).Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestOpenTrim_ReportedDuration(t *testing.T) {
	env := newTestEnv(t)
	env.processor.On("ProbeDuration", mock.Anything, mock.Anything).Return(0.0, media.ErrUnsupported)

	body, ct := multipartBody(t, "match.mp4", mp4Bytes(), map[string]string{"duration": "42.5"})
	rec := env.do(t, http.MethodPost, "/trims", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[SessionResponse](t, rec)
	require.NotNil(t, created.Trim)
	assert.Equal(t, 42.5, created.Trim.Duration)

	for _, raw := range []string{"long", "-5", "0.0001e10"} {
		t.Run(raw, func(t *testing.T) {
			body, ct := multipartBody(t, "match.mp4", mp4Bytes(), map[string]string{"duration": raw})
			rec := env.do(t, http.MethodPost, "/trims", body, ct)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestReplaceSource_WrongRoute(t *testing.T) {
	env := newTestEnv(t)
	env.processor.On("ProbeDuration", mock.Anything, mock.Anything).Return(30.0, nil)

	body, ct := multipartBody(t, "logo.png", pngBytes(t, 64, 64), map[string]string{"preset": "avatar"})
	rec := env.do(t, http.MethodPost, "/crops", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cropID := decodeBody[SessionResponse](t, rec).ID

	body, ct = multipartBody(t, "match.mp4", mp4Bytes(), nil)
	rec = env.do(t, http.MethodPost, "/trims", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	trimID := decodeBody[SessionResponse](t, rec).ID

	body, ct = multipartBody(t, "other.mp4", mp4Bytes(), nil)
	rec = env.do(t, http.MethodPut, "/trims/"+cropID+"/source", body, ct)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)

	body, ct = multipartBody(t, "other.png", pngBytes(t, 64, 64), nil)
	rec = env.do(t, http.MethodPut, "/crops/"+trimID+"/source", body, ct)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/sessions/"+cropID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "logo.png", decodeBody[SessionResponse](t, rec).Source.Name)
	env.processor.AssertNumberOfCalls(t, "ProbeDuration", 1)
}
