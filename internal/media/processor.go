// Package media provides the ffmpeg-backed video pipeline and media type
// detection for uploaded files.
package media

import "context"

// Processor defines the video operations needed by the trim editor.
// Implementations should use ffmpeg or similar tools for media manipulation.
type Processor interface {
	// ProbeDuration returns the duration of a media file in seconds.
	ProbeDuration(ctx context.Context, path string) (float64, error)

	// Trim cuts the interval [start, end) seconds of src into dst, encoding
	// with the codecs of the given container. Returns ErrUnsupported when the
	// environment has no usable encoder.
	Trim(ctx context.Context, src, dst string, start, end float64, container Container) error
}

// File is an uploaded or produced media file on local disk.
type File struct {
	// Path is the location of the file on disk.
	Path string
	// Name is the client-facing file name.
	Name string
	// ContentType is the sniffed MIME type.
	ContentType string
	// Extension is the sniffed extension without the dot.
	Extension string
	// Size is the file size in bytes.
	Size int64
}
