package palette

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Source extracts a palette for one image URL.
type Source interface {
	Extract(ctx context.Context, imageURL string) Palette
}

// Hydrator extracts palettes for a list of images with bounded concurrency.
type Hydrator struct {
	source Source
	limit  int
}

// NewHydrator creates a Hydrator running at most limit extractions at once.
func NewHydrator(source Source, limit int) *Hydrator {
	if limit < 1 {
		limit = 1
	}
	return &Hydrator{source: source, limit: limit}
}

// Hydrate returns one palette per URL, in input order. All extractions are
// bound to ctx: when it is cancelled outstanding fetches are abandoned and
// Hydrate returns ctx.Err() with no result, so a torn-down caller never
// receives a stale list.
func (h *Hydrator) Hydrate(ctx context.Context, urls []string) ([]Palette, error) {
	palettes := make([]Palette, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.limit)

	for i, u := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			palettes[i] = h.source.Extract(gctx, u)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return palettes, nil
}
