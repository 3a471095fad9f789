// Package palette derives a three-colour accent palette from an image for
// decorative theming of player and game cards.
//
// Extraction never fails: any problem loading or reading the image yields
// Fallback. Buckets with equal frequency keep the order in which they were
// first seen while scanning pixels row by row; other implementations may break
// such ties differently.
package palette

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/nfnt/resize"
)

// Palette is the accent colour set applied to a card, as #rrggbb strings.
type Palette struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Accent    string `json:"accent"`
}

// Fallback is used whenever no palette can be derived.
var Fallback = Palette{
	Primary:   "#59d6ff",
	Secondary: "#6b7dff",
	Accent:    "#6dffe2",
}

const (
	sampleSize     = 36
	minAlpha       = 100
	bucketStep     = 24
	topBuckets     = 10
	secondaryDist  = 45
	accentDist     = 40
	primaryShift   = 40
	secondaryShift = -10
	accentShift    = 55
)

// rgb is a quantized colour bucket.
type rgb struct {
	r, g, b int
}

func (c rgb) distance(o rgb) float64 {
	dr, dg, db := float64(c.r-o.r), float64(c.g-o.g), float64(c.b-o.b)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

func (c rgb) shift(delta int) rgb {
	return rgb{clamp(c.r + delta), clamp(c.g + delta), clamp(c.b + delta)}
}

func (c rgb) hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.r, c.g, c.b)
}

type bucket struct {
	color rgb
	count int
}

// FromImage computes the palette of an already decoded image.
func FromImage(img image.Image) Palette {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Fallback
	}

	small := resize.Resize(sampleSize, sampleSize, img, resize.Bilinear)
	ranked := rank(small)
	if len(ranked) == 0 {
		return Fallback
	}
	return derive(ranked)
}

// rank tallies opaque pixels into quantized buckets and returns the most
// frequent ones, ties kept in first-seen order.
func rank(img image.Image) []bucket {
	counts := make(map[rgb]int)
	var order []rgb

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A < minAlpha {
				continue
			}
			key := rgb{quantize(c.R), quantize(c.G), quantize(c.B)}
			if _, seen := counts[key]; !seen {
				order = append(order, key)
			}
			counts[key]++
		}
	}

	buckets := make([]bucket, 0, len(order))
	for _, key := range order {
		buckets = append(buckets, bucket{color: key, count: counts[key]})
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].count > buckets[j].count
	})
	if len(buckets) > topBuckets {
		buckets = buckets[:topBuckets]
	}
	return buckets
}

func derive(top []bucket) Palette {
	primary := top[0].color

	secondaryIdx := -1
	for i, b := range top {
		if b.color.distance(primary) > secondaryDist {
			secondaryIdx = i
			break
		}
	}
	if secondaryIdx < 0 {
		secondaryIdx = min(1, len(top)-1)
	}
	secondary := top[secondaryIdx].color

	accentIdx := -1
	for i, b := range top {
		if i == 0 || i == secondaryIdx {
			continue
		}
		if b.color.distance(secondary) > accentDist {
			accentIdx = i
			break
		}
	}
	if accentIdx < 0 {
		accentIdx = min(2, len(top)-1)
	}
	accent := top[accentIdx].color

	return Palette{
		Primary:   primary.shift(primaryShift).hex(),
		Secondary: secondary.shift(secondaryShift).hex(),
		Accent:    accent.shift(accentShift).hex(),
	}
}

func quantize(v uint8) int {
	return int(v) / bucketStep * bucketStep
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
