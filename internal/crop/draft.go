// Package crop implements pan and zoom of a source image inside a fixed
// aspect frame and renders exactly the visible region to an output raster.
//
// Geometry uses a "cover" fit: at zoom 1 the image is scaled so it fills the
// frame on both axes and overflow is cropped. Pan offsets are frame pixels and
// are always clamped so the frame never shows area outside the image.
package crop

import (
	"errors"
	"fmt"
	"math"
)

// Zoom bounds of the slider.
const (
	MinZoom = 1.0
	MaxZoom = 3.0
)

// ErrInvalidDimensions is returned when an image or frame dimension is not positive.
var ErrInvalidDimensions = errors.New("crop: dimensions must be positive")

type dragState int

const (
	stateIdle dragState = iota
	stateDragging
)

// Rect is a rectangle in source image pixels.
type Rect struct {
	X, Y, W, H float64
}

// Draft is the editing state of one crop session.
type Draft struct {
	ImageWidth  int
	ImageHeight int
	FrameWidth  int
	FrameHeight int
	Zoom        float64
	OffsetX     float64
	OffsetY     float64

	state                        dragState
	pointerX, pointerY           float64
	originOffsetX, originOffsetY float64
}

// NewDraft creates a draft at zoom 1 with the image centered in the frame.
func NewDraft(imageW, imageH, frameW, frameH int) (*Draft, error) {
	if imageW <= 0 || imageH <= 0 || frameW <= 0 || frameH <= 0 {
		return nil, fmt.Errorf("%w: image=%dx%d frame=%dx%d", ErrInvalidDimensions, imageW, imageH, frameW, frameH)
	}
	return &Draft{
		ImageWidth:  imageW,
		ImageHeight: imageH,
		FrameWidth:  frameW,
		FrameHeight: frameH,
		Zoom:        MinZoom,
	}, nil
}

// CoverScale is the scale at which the image just covers the frame.
func (d *Draft) CoverScale() float64 {
	return math.Max(
		float64(d.FrameWidth)/float64(d.ImageWidth),
		float64(d.FrameHeight)/float64(d.ImageHeight),
	)
}

// Scale is the effective render scale, cover scale times zoom.
func (d *Draft) Scale() float64 {
	return d.CoverScale() * d.Zoom
}

// MaxOffset returns the largest allowed pan magnitude on each axis.
func (d *Draft) MaxOffset() (x, y float64) {
	s := d.Scale()
	x = math.Max((float64(d.ImageWidth)*s-float64(d.FrameWidth))/2, 0)
	y = math.Max((float64(d.ImageHeight)*s-float64(d.FrameHeight))/2, 0)
	return x, y
}

// SetZoom sets the zoom, clamped to [MinZoom, MaxZoom], and re-clamps the
// current offset for the new scale.
func (d *Draft) SetZoom(z float64) {
	if math.IsNaN(z) {
		z = MinZoom
	}
	d.Zoom = math.Min(math.Max(z, MinZoom), MaxZoom)
	d.SetOffset(d.OffsetX, d.OffsetY)
}

// SetOffset moves the image to the proposed offset, clamped per axis.
func (d *Draft) SetOffset(x, y float64) {
	maxX, maxY := d.MaxOffset()
	d.OffsetX = clamp(x, maxX)
	d.OffsetY = clamp(y, maxY)
}

// Dragging reports whether a pointer drag is in progress.
func (d *Draft) Dragging() bool {
	return d.state == stateDragging
}

// PointerDown starts a drag at frame position (x, y).
func (d *Draft) PointerDown(x, y float64) {
	d.state = stateDragging
	d.pointerX, d.pointerY = x, y
	d.originOffsetX, d.originOffsetY = d.OffsetX, d.OffsetY
}

// PointerMove pans by the distance moved since PointerDown. It is ignored
// when no drag is in progress.
func (d *Draft) PointerMove(x, y float64) {
	if d.state != stateDragging {
		return
	}
	d.SetOffset(d.originOffsetX+(x-d.pointerX), d.originOffsetY+(y-d.pointerY))
}

// PointerUp ends the drag.
func (d *Draft) PointerUp() {
	d.state = stateIdle
}

// SourceRect maps the frame back into source pixels for the current zoom and
// offset. The result always lies within the image bounds.
func (d *Draft) SourceRect() Rect {
	s := d.Scale()
	renderedW := float64(d.ImageWidth) * s
	renderedH := float64(d.ImageHeight) * s

	// top-left corner of the rendered image in frame coordinates
	left := (float64(d.FrameWidth)-renderedW)/2 + d.OffsetX
	top := (float64(d.FrameHeight)-renderedH)/2 + d.OffsetY

	r := Rect{
		X: -left / s,
		Y: -top / s,
		W: float64(d.FrameWidth) / s,
		H: float64(d.FrameHeight) / s,
	}
	return r.clampTo(float64(d.ImageWidth), float64(d.ImageHeight))
}

func (r Rect) clampTo(w, h float64) Rect {
	x0 := math.Min(math.Max(r.X, 0), w)
	y0 := math.Min(math.Max(r.Y, 0), h)
	x1 := math.Min(math.Max(r.X+r.W, 0), w)
	y1 := math.Min(math.Max(r.Y+r.H, 0), h)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func clamp(v, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, -limit), limit)
}
