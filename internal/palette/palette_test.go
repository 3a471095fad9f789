package palette

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFromImage_SolidColor(t *testing.T) {
	img := solidImage(120, 80, color.NRGBA{R: 100, G: 150, B: 200, A: 255})

	p := FromImage(img)

	// bucket (96,144,192)
	assert.Equal(t, "#88b8e8", p.Primary)
	assert.Equal(t, "#5686b6", p.Secondary)
	assert.Equal(t, "#97c7f7", p.Accent)
}

func TestFromImage_Transparent(t *testing.T) {
	img := solidImage(50, 50, color.NRGBA{R: 255, G: 0, B: 0, A: 40})

	assert.Equal(t, Fallback, FromImage(img))
}

func TestFromImage_Empty(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 0, 0))

	assert.Equal(t, Fallback, FromImage(img))
}

func TestFromImage_TwoColors(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 72, 72))
	for y := 0; y < 72; y++ {
		for x := 0; x < 72; x++ {
			if x < 54 {
				img.Set(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{R: 30, G: 30, B: 200, A: 255})
			}
		}
	}

	p := FromImage(img)

	assert.Equal(t, "#e84040", p.Primary)
	assert.Equal(t, "#0e0eb6", p.Secondary)
}

func TestFromImage_Deterministic(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8((x + y) * 2), A: 255})
		}
	}

	first := FromImage(img)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, FromImage(img))
	}
}

func TestRank_FirstSeenOrderBreaksTies(t *testing.T) {
	a := color.NRGBA{R: 10, G: 10, B: 10, A: 255}
	b := color.NRGBA{R: 200, G: 200, B: 200, A: 255}
	faint := color.NRGBA{R: 90, G: 90, B: 90, A: 99}

	img := image.NewNRGBA(image.Rect(0, 0, 5, 1))
	img.Set(0, 0, b)
	img.Set(1, 0, a)
	img.Set(2, 0, faint)
	img.Set(3, 0, a)
	img.Set(4, 0, b)

	ranked := rank(img)
	require.Len(t, ranked, 2)
	assert.Equal(t, rgb{192, 192, 192}, ranked[0].color)
	assert.Equal(t, 2, ranked[0].count)
	assert.Equal(t, rgb{0, 0, 0}, ranked[1].color)
}

func TestRank_KeepsTopTen(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 12, 1))
	for x := 0; x < 12; x++ {
		img.Set(x, 0, color.NRGBA{R: uint8(x * 24), A: 255})
	}

	assert.Len(t, rank(img), topBuckets)
}

func TestDerive_FallbackChain(t *testing.T) {
	near := []bucket{
		{color: rgb{96, 96, 96}, count: 5},
		{color: rgb{120, 96, 96}, count: 3},
		{color: rgb{96, 120, 96}, count: 1},
	}

	p := derive(near)

	assert.Equal(t, rgb{96, 96, 96}.shift(primaryShift).hex(), p.Primary)
	assert.Equal(t, rgb{120, 96, 96}.shift(secondaryShift).hex(), p.Secondary)
	assert.Equal(t, rgb{96, 120, 96}.shift(accentShift).hex(), p.Accent)
}

func TestShiftClamps(t *testing.T) {
	assert.Equal(t, rgb{255, 255, 255}, rgb{240, 250, 255}.shift(40))
	assert.Equal(t, rgb{0, 0, 14}, rgb{0, 5, 24}.shift(-10))
	assert.Equal(t, "#00ff0a", rgb{0, 255, 10}.hex())
}
