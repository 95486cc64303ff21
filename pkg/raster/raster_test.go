package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/toolbox/pkg/types"
)

// createTestImage returns a two-tone image: red left half, blue right half.
func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, color.NRGBA{255, 0, 0, 255})
			} else {
				img.Set(x, y, color.NRGBA{0, 0, 255, 255})
			}
		}
	}
	return img
}

type drawCall struct {
	src types.Rect
	dst image.Rectangle
}

// spyBackend records allocations and draw calls and delegates to a real backend.
type spyBackend struct {
	mu     sync.Mutex
	inner  Backend
	allocs []image.Point
	draws  []drawCall
	fail   error
}

func (b *spyBackend) NewSurface(w, h int) (Surface, error) {
	b.mu.Lock()
	b.allocs = append(b.allocs, image.Pt(w, h))
	b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	s, err := b.inner.NewSurface(w, h)
	if err != nil {
		return nil, err
	}
	return &spySurface{Surface: s, b: b}, nil
}

type spySurface struct {
	Surface
	b *spyBackend
}

func (s *spySurface) DrawScaled(src image.Image, sr types.Rect, dr image.Rectangle) {
	s.b.mu.Lock()
	s.b.draws = append(s.b.draws, drawCall{sr, dr})
	s.b.mu.Unlock()
	s.Surface.DrawScaled(src, sr, dr)
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func assertColorNear(t *testing.T, want color.NRGBA, got color.Color) {
	t.Helper()
	c := color.NRGBAModel.Convert(got).(color.NRGBA)
	assert.InDelta(t, want.R, c.R, 2)
	assert.InDelta(t, want.G, c.G, 2)
	assert.InDelta(t, want.B, c.B, 2)
	assert.InDelta(t, want.A, c.A, 2)
}

func TestNewTransform(t *testing.T) {
	tr, err := NewTransform(1000, 500, 500, 250)
	require.NoError(t, err)
	assert.Equal(t, 2.0, tr.ScaleX)
	assert.Equal(t, 2.0, tr.ScaleY)

	_, err = NewTransform(0, 500, 500, 250)
	assert.ErrorIs(t, err, ErrInvalidTransform)
	_, err = NewTransform(1000, 500, 0, 250)
	assert.ErrorIs(t, err, ErrInvalidTransform)
	_, err = NewTransform(1000, 500, 500, -1)
	assert.ErrorIs(t, err, ErrInvalidTransform)
}

func TestFit(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		maxW, maxH float64
		dw, dh     float64
	}{
		{"fits", 400, 300, 800, 600, 400, 300},
		{"width bound", 1600, 800, 800, 600, 800, 400},
		{"height bound", 600, 1200, 800, 600, 300, 600},
		{"unbounded", 2000, 1000, 0, 0, 2000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Fit(tt.w, tt.h, tt.maxW, tt.maxH)
			require.NoError(t, err)
			assert.InDelta(t, tt.dw, tr.DisplayWidth, 1e-9)
			assert.InDelta(t, tt.dh, tr.DisplayHeight, 1e-9)
		})
	}
}

func TestTransformRoundTrip(t *testing.T) {
	tr, err := NewTransform(1000, 500, 400, 200)
	require.NoError(t, err)
	r := types.Rect{X: 10, Y: 20, Width: 30, Height: 40}
	assert.True(t, tr.ToDisplay(tr.ToSource(r)).ApproxEqual(r, 1e-9))

	d := tr.BoxToDisplay(types.Box{X: 0.25, Y: 0.5, W: 0.5, H: 0.25})
	assert.Equal(t, types.Rect{X: 100, Y: 100, Width: 200, Height: 50}, d)
}

func TestExtractMapsRegionToSource(t *testing.T) {
	spy := &spyBackend{inner: NewDrawBackend(nil)}
	e := NewExtractor(spy)
	src := createTestImage(1000, 500)
	tr, err := NewTransform(1000, 500, 500, 250)
	require.NoError(t, err)

	res, err := e.Extract(src, types.Rect{X: 100, Y: 50, Width: 100, Height: 50}, tr)
	require.NoError(t, err)

	assert.Equal(t, 200, res.Width)
	assert.Equal(t, 100, res.Height)
	assert.Zero(t, res.Size)
	require.Len(t, spy.draws, 1)
	assert.Equal(t, types.Rect{X: 200, Y: 100, Width: 200, Height: 100}, spy.draws[0].src)
	assert.Equal(t, image.Rect(0, 0, 200, 100), spy.draws[0].dst)

	out := decodePNG(t, res.Data)
	assert.Equal(t, image.Rect(0, 0, 200, 100), out.Bounds())
	assertColorNear(t, color.NRGBA{255, 0, 0, 255}, out.At(100, 50))
}

func TestExtractPixelRatioScalesOutputOnly(t *testing.T) {
	spy := &spyBackend{inner: NewDrawBackend(nil)}
	e := NewExtractor(spy, WithPixelRatio(2))
	tr, err := NewTransform(1000, 500, 500, 250)
	require.NoError(t, err)

	res, err := e.Extract(createTestImage(1000, 500), types.Rect{X: 100, Y: 50, Width: 100, Height: 50}, tr)
	require.NoError(t, err)
	assert.Equal(t, 400, res.Width)
	assert.Equal(t, 200, res.Height)
	assert.Equal(t, types.Rect{X: 200, Y: 100, Width: 200, Height: 100}, spy.draws[0].src)
}

func TestExtractRoundsOutputSize(t *testing.T) {
	e := NewExtractor(nil)
	tr, err := NewTransform(300, 300, 200, 200)
	require.NoError(t, err)

	// 51 display px * 1.5 = 76.5 source px
	res, err := e.Extract(createTestImage(300, 300), types.Rect{X: 0, Y: 0, Width: 51, Height: 50}, tr)
	require.NoError(t, err)
	assert.Equal(t, 77, res.Width)
	assert.Equal(t, 75, res.Height)
}

func TestExtractIsDeterministic(t *testing.T) {
	for name, b := range map[string]Backend{
		"draw":    NewDrawBackend(nil),
		"imaging": NewImagingBackend(imaging.ResampleFilter{}),
	} {
		t.Run(name, func(t *testing.T) {
			e := NewExtractor(b)
			src := createTestImage(640, 480)
			tr, err := NewTransform(640, 480, 320, 240)
			require.NoError(t, err)
			region := types.Rect{X: 120, Y: 60, Width: 80.5, Height: 90.25}

			first, err := e.Extract(src, region, tr)
			require.NoError(t, err)
			second, err := e.Extract(src, region, tr)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(first.Data, second.Data))
		})
	}
}

func TestExtractErrors(t *testing.T) {
	e := NewExtractor(nil)
	tr, err := Identity(100, 100)
	require.NoError(t, err)

	_, err = e.Extract(nil, types.Rect{Width: 10, Height: 10}, tr)
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = e.Extract(createTestImage(100, 100), types.Rect{Width: 0, Height: 10}, tr)
	assert.ErrorIs(t, err, ErrEmptyRegion)

	_, err = e.Extract(createTestImage(100, 100), types.Rect{Width: 10, Height: 10}, Transform{})
	assert.ErrorIs(t, err, ErrInvalidTransform)

	// rounds to zero output pixels
	_, err = e.Extract(createTestImage(100, 100), types.Rect{Width: 0.2, Height: 10}, tr)
	assert.ErrorIs(t, err, ErrEmptyRegion)
}

func TestExtractSurfaceFailure(t *testing.T) {
	boom := errors.New("no canvas")
	e := NewExtractor(&spyBackend{inner: NewDrawBackend(nil), fail: boom})
	tr, err := Identity(100, 100)
	require.NoError(t, err)

	res, err := e.Extract(createTestImage(100, 100), types.Rect{Width: 50, Height: 50}, tr)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

func TestSurfaceTooLarge(t *testing.T) {
	_, err := NewDrawBackend(nil).NewSurface(1<<14, 1<<14)
	assert.ErrorIs(t, err, ErrSurfaceTooLarge)
}

func TestRasterizeAll(t *testing.T) {
	spy := &spyBackend{inner: NewDrawBackend(nil)}
	e := NewExtractor(spy)
	src := createTestImage(300, 200)

	results, err := e.RasterizeAll(context.Background(), src, []int{64, 16, 32, 16})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, size := range []int{16, 32, 64} {
		assert.Equal(t, size, results[i].Size)
		assert.Equal(t, size, results[i].Width)
		assert.Equal(t, size, results[i].Height)
		out := decodePNG(t, results[i].Data)
		assert.Equal(t, image.Rect(0, 0, size, size), out.Bounds())
	}
	for _, d := range spy.draws {
		assert.Equal(t, types.Rect{Width: 300, Height: 200}, d.src, "always the full source")
	}
}

func TestRasterizeAllEmptyAllocatesNothing(t *testing.T) {
	spy := &spyBackend{inner: NewDrawBackend(nil)}
	e := NewExtractor(spy)

	for _, sizes := range [][]int{nil, {}, {0, -16}} {
		results, err := e.RasterizeAll(context.Background(), createTestImage(10, 10), sizes)
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	}
	assert.Empty(t, spy.allocs)
}

func TestRasterizeAllFitContain(t *testing.T) {
	spy := &spyBackend{inner: NewDrawBackend(nil)}
	e := NewExtractor(spy, WithIconFit(FitContain))

	results, err := e.RasterizeAll(context.Background(), createTestImage(200, 100), []int{64})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, image.Rect(0, 16, 64, 48), spy.draws[0].dst)

	out := decodePNG(t, results[0].Data)
	_, _, _, a := out.At(32, 2).RGBA()
	assert.Zero(t, a, "letterbox stays transparent")
}

func TestRasterizeAllFailsAtomically(t *testing.T) {
	boom := errors.New("no canvas")
	e := NewExtractor(&spyBackend{inner: NewDrawBackend(nil), fail: boom})

	results, err := e.RasterizeAll(context.Background(), createTestImage(50, 50), []int{16, 32})
	assert.Nil(t, results)
	assert.ErrorIs(t, err, boom)
}

func TestRasterizeAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewExtractor(nil)

	_, err := e.RasterizeAll(ctx, createTestImage(50, 50), []int{16, 32})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImagingBackendClipsSource(t *testing.T) {
	e := NewExtractor(NewImagingBackend(imaging.Lanczos))
	tr, err := Identity(100, 100)
	require.NoError(t, err)

	// region hangs 50px past the right edge
	res, err := e.Extract(createTestImage(100, 100), types.Rect{X: 50, Y: 0, Width: 100, Height: 100}, tr)
	require.NoError(t, err)
	out := decodePNG(t, res.Data)
	assertColorNear(t, color.NRGBA{0, 0, 255, 255}, out.At(10, 50))
	_, _, _, a := out.At(90, 50).RGBA()
	assert.Zero(t, a)
}

func TestNormalizeSizes(t *testing.T) {
	assert.Equal(t, []int{16, 32, 48}, NormalizeSizes([]int{48, 16, 0, 32, 16, -1}))
	assert.Empty(t, NormalizeSizes(nil))
}

func TestParseFit(t *testing.T) {
	f, err := ParseFit("contain")
	require.NoError(t, err)
	assert.Equal(t, FitContain, f)
	f, err = ParseFit("")
	require.NoError(t, err)
	assert.Equal(t, FitStretch, f)
	_, err = ParseFit("cover")
	assert.Error(t, err)
}

func BenchmarkExtract(b *testing.B) {
	e := NewExtractor(nil)
	src := createTestImage(1920, 1080)
	tr, _ := NewTransform(1920, 1080, 960, 540)
	region := types.Rect{X: 100, Y: 100, Width: 300, Height: 200}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Extract(src, region, tr); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRasterizeAll(b *testing.B) {
	e := NewExtractor(nil)
	src := createTestImage(1024, 1024)
	sizes := []int{16, 32, 48, 64, 128, 256}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.RasterizeAll(context.Background(), src, sizes); err != nil {
			b.Fatal(err)
		}
	}
}
