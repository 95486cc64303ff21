package raster

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/menta2k/toolbox/pkg/types"
)

var (
	ErrNoSource         = errors.New("no source image")
	ErrEmptyRegion      = errors.New("empty region")
	ErrInvalidTransform = errors.New("invalid display transform")
	ErrSurfaceTooLarge  = errors.New("raster surface too large")
	ErrEncode           = errors.New("encode failed")
)

// MaxSurfacePixels bounds a single surface allocation.
const MaxSurfacePixels = 1 << 26

// Surface is a drawable, encodable raster target.
type Surface interface {
	Bounds() image.Rectangle
	// DrawScaled samples src over the (possibly fractional) rectangle sr,
	// relative to src.Bounds().Min, into dr.
	DrawScaled(src image.Image, sr types.Rect, dr image.Rectangle)
	// Encode writes the surface as PNG.
	Encode(w io.Writer) error
}

// Backend allocates surfaces.
type Backend interface {
	NewSurface(width, height int) (Surface, error)
}

func checkSize(width, height int) error {
	if width < 1 || height < 1 {
		return fmt.Errorf("%w: %dx%d surface", ErrEmptyRegion, width, height)
	}
	if int64(width)*int64(height) > MaxSurfacePixels {
		return fmt.Errorf("%w: %dx%d", ErrSurfaceTooLarge, width, height)
	}
	return nil
}

// DrawBackend resamples with a golang.org/x/image/draw interpolator and an
// affine transform, so fractional source rectangles are honoured exactly.
type DrawBackend struct {
	Interpolator draw.Interpolator
}

// NewDrawBackend returns a backend using k, or Catmull-Rom when k is nil.
func NewDrawBackend(k draw.Interpolator) *DrawBackend {
	if k == nil {
		k = draw.CatmullRom
	}
	return &DrawBackend{Interpolator: k}
}

func (b *DrawBackend) NewSurface(width, height int) (Surface, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	return &drawSurface{
		img:    image.NewNRGBA(image.Rect(0, 0, width, height)),
		interp: b.Interpolator,
	}, nil
}

type drawSurface struct {
	img    *image.NRGBA
	interp draw.Interpolator
}

func (s *drawSurface) Bounds() image.Rectangle { return s.img.Bounds() }

func (s *drawSurface) DrawScaled(src image.Image, sr types.Rect, dr image.Rectangle) {
	if src == nil || sr.Empty() || dr.Empty() {
		return
	}
	sb := src.Bounds()
	ox, oy := float64(sb.Min.X)+sr.X, float64(sb.Min.Y)+sr.Y
	kx := float64(dr.Dx()) / sr.Width
	ky := float64(dr.Dy()) / sr.Height

	// source -> destination
	s2d := f64.Aff3{
		kx, 0, float64(dr.Min.X) - ox*kx,
		0, ky, float64(dr.Min.Y) - oy*ky,
	}
	sampled := image.Rect(
		int(math.Floor(ox)), int(math.Floor(oy)),
		int(math.Ceil(ox+sr.Width)), int(math.Ceil(oy+sr.Height)),
	).Intersect(sb)
	if sampled.Empty() {
		return
	}
	s.interp.Transform(s.img, s2d, src, sampled, draw.Src, nil)
}

func (s *drawSurface) Encode(w io.Writer) error {
	return imaging.Encode(w, s.img, imaging.PNG)
}

// ImagingBackend crops on the pixel grid and resamples with a
// disintegration/imaging filter (Lanczos by default).
type ImagingBackend struct {
	Filter imaging.ResampleFilter
}

// NewImagingBackend returns a backend using the given filter.
func NewImagingBackend(filter imaging.ResampleFilter) *ImagingBackend {
	if filter.Support == 0 && filter.Kernel == nil {
		filter = imaging.Lanczos
	}
	return &ImagingBackend{Filter: filter}
}

func (b *ImagingBackend) NewSurface(width, height int) (Surface, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	return &imagingSurface{
		img:    image.NewNRGBA(image.Rect(0, 0, width, height)),
		filter: b.Filter,
	}, nil
}

type imagingSurface struct {
	img    *image.NRGBA
	filter imaging.ResampleFilter
}

func (s *imagingSurface) Bounds() image.Rectangle { return s.img.Bounds() }

func (s *imagingSurface) DrawScaled(src image.Image, sr types.Rect, dr image.Rectangle) {
	if src == nil || sr.Empty() || dr.Empty() {
		return
	}
	sb := src.Bounds()
	ox, oy := float64(sb.Min.X)+sr.X, float64(sb.Min.Y)+sr.Y
	rect := image.Rect(
		int(math.Round(ox)), int(math.Round(oy)),
		int(math.Round(ox+sr.Width)), int(math.Round(oy+sr.Height)),
	)
	clipped := rect.Intersect(sb)
	if clipped.Empty() {
		return
	}

	// shrink the target proportionally when the source rectangle was clipped
	kx := float64(dr.Dx()) / float64(rect.Dx())
	ky := float64(dr.Dy()) / float64(rect.Dy())
	target := image.Rect(
		dr.Min.X+int(math.Round(float64(clipped.Min.X-rect.Min.X)*kx)),
		dr.Min.Y+int(math.Round(float64(clipped.Min.Y-rect.Min.Y)*ky)),
		dr.Max.X-int(math.Round(float64(rect.Max.X-clipped.Max.X)*kx)),
		dr.Max.Y-int(math.Round(float64(rect.Max.Y-clipped.Max.Y)*ky)),
	)
	if target.Empty() {
		return
	}

	cropped := imaging.Crop(src, clipped)
	resized := imaging.Resize(cropped, target.Dx(), target.Dy(), s.filter)
	draw.Draw(s.img, target, resized, image.Point{}, draw.Src)
}

func (s *imagingSurface) Encode(w io.Writer) error {
	return imaging.Encode(w, s.img, imaging.PNG)
}
