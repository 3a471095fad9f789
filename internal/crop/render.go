package crop

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
	"math"

	"github.com/nfnt/resize"
)

// JPEGQuality is the encoder quality for cropped output.
const JPEGQuality = 90

// ErrEmptyRegion is returned when the crop region has no pixels.
var ErrEmptyRegion = errors.New("crop: empty source region")

// Preset is a named output raster size.
type Preset struct {
	Name   string
	Width  int
	Height int
}

// Output presets used by the admin forms.
var (
	PresetAvatar   = Preset{Name: "avatar", Width: 512, Height: 512}
	PresetPortrait = Preset{Name: "portrait", Width: 600, Height: 800}
	PresetCover    = Preset{Name: "cover", Width: 1280, Height: 720}
	PresetItem     = Preset{Name: "item", Width: 256, Height: 256}
)

var presets = map[string]Preset{
	PresetAvatar.Name:   PresetAvatar,
	PresetPortrait.Name: PresetPortrait,
	PresetCover.Name:    PresetCover,
	PresetItem.Name:     PresetItem,
}

// Frame resolves the on-screen frame for the preset. Zero for both sides
// gives the preset size; a single zero side is derived from the other and
// the preset aspect. A frame whose aspect differs from the preset by more
// than a pixel of rounding is rejected, since Render would stretch it.
func (p Preset) Frame(width, height int) (int, int, error) {
	if width < 0 || height < 0 {
		return 0, 0, fmt.Errorf("%w: frame=%dx%d", ErrInvalidDimensions, width, height)
	}
	switch {
	case width == 0 && height == 0:
		return p.Width, p.Height, nil
	case height == 0:
		height = max(int(math.Round(float64(width)*float64(p.Height)/float64(p.Width))), 1)
		return width, height, nil
	case width == 0:
		width = max(int(math.Round(float64(height)*float64(p.Width)/float64(p.Height))), 1)
		return width, height, nil
	}

	want := float64(width) * float64(p.Height) / float64(p.Width)
	if math.Abs(want-float64(height)) > 1 {
		return 0, 0, fmt.Errorf("%w: frame %dx%d does not match %s aspect %dx%d",
			ErrInvalidDimensions, width, height, p.Name, p.Width, p.Height)
	}
	return width, height, nil
}

// LookupPreset returns the preset with the given name.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// Render draws the draft's visible region of src into a width x height raster.
// src must have the dimensions the draft was created with.
func (d *Draft) Render(src image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: output=%dx%d", ErrInvalidDimensions, width, height)
	}
	b := src.Bounds()
	if b.Dx() != d.ImageWidth || b.Dy() != d.ImageHeight {
		return nil, fmt.Errorf("%w: source is %dx%d, draft expects %dx%d",
			ErrInvalidDimensions, b.Dx(), b.Dy(), d.ImageWidth, d.ImageHeight)
	}

	region := d.pixelRect().Add(b.Min)
	if region.Empty() {
		return nil, ErrEmptyRegion
	}

	cropped := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(cropped, cropped.Bounds(), src, region.Min, draw.Src)

	return resize.Resize(uint(width), uint(height), cropped, resize.Lanczos3), nil
}

// pixelRect rounds SourceRect to whole pixels inside the image.
func (d *Draft) pixelRect() image.Rectangle {
	r := d.SourceRect()
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.W))
	y1 := int(math.Round(r.Y + r.H))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, d.ImageWidth, d.ImageHeight))
}

// EncodeJPEG writes img as a JPEG at JPEGQuality.
func EncodeJPEG(w io.Writer, img image.Image) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}
