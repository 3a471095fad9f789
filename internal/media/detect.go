package media

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// ErrUnsupportedMedia is returned when an upload is not a supported image or video.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// sniffLen is the number of leading bytes used for type detection.
const sniffLen = 261

// Container is an output video container.
type Container string

const (
	// ContainerMP4 encodes H.264 video and AAC audio.
	ContainerMP4 Container = "mp4"
	// ContainerWebM encodes VP9 video and Opus audio.
	ContainerWebM Container = "webm"
)

// Extension returns the file extension for the container, without the dot.
func (c Container) Extension() string {
	return string(c)
}

// ContentType returns the MIME type for the container.
func (c Container) ContentType() string {
	if c == ContainerWebM {
		return "video/webm"
	}
	return "video/mp4"
}

func (c Container) codecArgs() []string {
	if c == ContainerWebM {
		return []string{
			"-c:v", "libvpx-vp9",
			"-b:v", "0",
			"-crf", "32",
			"-deadline", "good",
			"-c:a", "libopus",
			"-b:a", "96k",
		}
	}
	return []string{
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
	}
}

// ContainerFor picks the output container for a source file: WebM sources
// stay WebM, anything else is written as MP4.
func ContainerFor(f *File) Container {
	if f != nil && f.Extension == "webm" {
		return ContainerWebM
	}
	return ContainerMP4
}

// Kind classifies an uploaded file.
type Kind int

const (
	// KindUnknown is anything that is neither image nor video.
	KindUnknown Kind = iota
	// KindImage is a still image.
	KindImage
	// KindVideo is a video.
	KindVideo
)

// DetectFile sniffs the type of the file at path.
func DetectFile(path string) (Kind, types.Type, error) {
	f, err := os.Open(path) // #nosec G304 - path is a temp file created by the application
	if err != nil {
		return KindUnknown, types.Unknown, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return KindUnknown, types.Unknown, fmt.Errorf("read file header: %w", err)
	}
	kind, t := Detect(head[:n])
	return kind, t, nil
}

// Detect sniffs the type from the leading bytes of a file.
func Detect(head []byte) (Kind, types.Type) {
	t, err := filetype.Match(head)
	if err != nil || t == types.Unknown {
		return KindUnknown, types.Unknown
	}
	switch {
	case filetype.IsImage(head):
		return KindImage, t
	case filetype.IsVideo(head):
		return KindVideo, t
	default:
		return KindUnknown, t
	}
}

// Describe fills in the sniffed type and size of the file at path, requiring
// it to be of the wanted kind.
func Describe(path, name string, want Kind) (*File, error) {
	kind, t, err := DetectFile(path)
	if err != nil {
		return nil, err
	}
	if kind != want {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, name)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	return &File{
		Path:        path,
		Name:        name,
		ContentType: t.MIME.Value,
		Extension:   t.Extension,
		Size:        info.Size(),
	}, nil
}
