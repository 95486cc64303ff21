// Package raster turns a display-space selection into PNG pixels. It maps the
// region onto the source pixel grid, resamples into a freshly allocated surface
// and encodes the result. Every call is atomic: on error nothing is returned.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/toolbox/pkg/types"
)

// Fit controls how a non-square source is placed on a square icon surface.
type Fit int

const (
	// FitStretch scales the whole source onto the square, ignoring its aspect ratio.
	FitStretch Fit = iota
	// FitContain letterboxes the source inside the square on a transparent background.
	FitContain
)

// ParseFit maps "stretch" or "contain" to a Fit.
func ParseFit(s string) (Fit, error) {
	switch s {
	case "", "stretch":
		return FitStretch, nil
	case "contain":
		return FitContain, nil
	}
	return FitStretch, fmt.Errorf("unknown icon fit %q", s)
}

func (f Fit) String() string {
	if f == FitContain {
		return "contain"
	}
	return "stretch"
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPixelRatio sets the device pixel ratio applied to the output surface.
// Source sampling is never affected.
func WithPixelRatio(r float64) Option {
	return func(e *Extractor) {
		if r > 0 && !math.IsInf(r, 0) {
			e.pixelRatio = r
		}
	}
}

// WithIconFit sets the placement used by RasterizeAll.
func WithIconFit(f Fit) Option {
	return func(e *Extractor) { e.iconFit = f }
}

// WithConcurrency bounds the number of icon sizes rendered at once.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Extractor) { e.log = l }
}

// Extractor produces raster results from a source image. It holds no per-image
// state and is safe for concurrent use.
type Extractor struct {
	backend     Backend
	pixelRatio  float64
	iconFit     Fit
	concurrency int
	log         zerolog.Logger
}

// NewExtractor creates an extractor drawing through backend. A nil backend
// selects the Catmull-Rom DrawBackend.
func NewExtractor(backend Backend, opts ...Option) *Extractor {
	if backend == nil {
		backend = NewDrawBackend(nil)
	}
	e := &Extractor{
		backend:     backend,
		pixelRatio:  1,
		concurrency: runtime.GOMAXPROCS(0),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// With returns a copy of e with opts applied on top of its settings.
func (e *Extractor) With(opts ...Option) *Extractor {
	c := *e
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// PixelRatio returns the configured device pixel ratio.
func (e *Extractor) PixelRatio() float64 { return e.pixelRatio }

// IconFit returns the configured icon placement.
func (e *Extractor) IconFit() Fit { return e.iconFit }

// Extract renders the display-space region of src as a PNG. The output is
// round(srcW*ratio) x round(srcH*ratio) where srcW, srcH is the region mapped
// onto the source pixel grid by t.
func (e *Extractor) Extract(src image.Image, region types.Rect, t Transform) (*types.RasterResult, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	if region.Empty() {
		return nil, fmt.Errorf("%w: %gx%g", ErrEmptyRegion, region.Width, region.Height)
	}
	if t.ScaleX <= 0 || t.ScaleY <= 0 {
		return nil, ErrInvalidTransform
	}

	sr := t.ToSource(region)
	outW := int(math.Round(sr.Width * e.pixelRatio))
	outH := int(math.Round(sr.Height * e.pixelRatio))

	surf, err := e.backend.NewSurface(outW, outH)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %dx%d surface: %w", outW, outH, err)
	}
	surf.DrawScaled(src, sr, surf.Bounds())

	data, err := encode(surf)
	if err != nil {
		return nil, err
	}

	e.log.Debug().
		Interface("region", region).
		Interface("source", sr).
		Int("width", outW).
		Int("height", outH).
		Int("bytes", len(data)).
		Msg("extracted region")

	return &types.RasterResult{Width: outW, Height: outH, Data: data}, nil
}

// RasterizeAll renders the whole source once per distinct positive size, as a
// square PNG. Results are ordered by ascending size. An empty size list returns
// an empty slice without touching the backend. Any failure fails the call.
func (e *Extractor) RasterizeAll(ctx context.Context, src image.Image, sizes []int) ([]types.RasterResult, error) {
	sizes = NormalizeSizes(sizes)
	if len(sizes) == 0 {
		return []types.RasterResult{}, nil
	}
	if src == nil {
		return nil, ErrNoSource
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: source is %dx%d", ErrEmptyRegion, b.Dx(), b.Dy())
	}

	results := make([]types.RasterResult, len(sizes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, size := range sizes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := e.rasterize(src, size)
			if err != nil {
				return fmt.Errorf("icon %dx%d: %w", size, size, err)
			}
			results[i] = *r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.log.Debug().Ints("sizes", sizes).Str("fit", e.iconFit.String()).Msg("rasterized icon set")
	return results, nil
}

func (e *Extractor) rasterize(src image.Image, size int) (*types.RasterResult, error) {
	surf, err := e.backend.NewSurface(size, size)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	full := types.Rect{Width: float64(b.Dx()), Height: float64(b.Dy())}
	surf.DrawScaled(src, full, e.iconTarget(surf.Bounds(), b))

	data, err := encode(surf)
	if err != nil {
		return nil, err
	}
	return &types.RasterResult{Width: size, Height: size, Size: size, Data: data}, nil
}

func (e *Extractor) iconTarget(dst, src image.Rectangle) image.Rectangle {
	if e.iconFit != FitContain {
		return dst
	}
	k := math.Min(float64(dst.Dx())/float64(src.Dx()), float64(dst.Dy())/float64(src.Dy()))
	w := max(1, int(math.Round(float64(src.Dx())*k)))
	h := max(1, int(math.Round(float64(src.Dy())*k)))
	x := dst.Min.X + (dst.Dx()-w)/2
	y := dst.Min.Y + (dst.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}

func encode(s Surface) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// NormalizeSizes returns the distinct positive sizes in ascending order.
func NormalizeSizes(sizes []int) []int {
	out := make([]int, 0, len(sizes))
	seen := make(map[int]struct{}, len(sizes))
	for _, s := range sizes {
		if s <= 0 {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}
