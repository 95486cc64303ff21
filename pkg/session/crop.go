package session

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/menta2k/toolbox/internal/utils"
	"github.com/menta2k/toolbox/pkg/processing"
	"github.com/menta2k/toolbox/pkg/raster"
	"github.com/menta2k/toolbox/pkg/selector"
	"github.com/menta2k/toolbox/pkg/types"
)

// CropSession drives the crop tool: one source image, one selection, at most
// one result.
type CropSession struct {
	mu        sync.Mutex
	extractor *raster.Extractor
	processor *processing.Processor
	sel       *selector.Selector
	log       zerolog.Logger

	name      string
	src       image.Image
	transform raster.Transform
	result    *types.RasterResult
	// gen increments on every commit, load and reset; an extraction only
	// publishes its result if no newer generation exists.
	gen uint64
}

// NewCropSession creates an empty crop session.
func NewCropSession(opts ...Option) *CropSession {
	o := newOptions(opts)
	return &CropSession{
		extractor: o.extractor,
		processor: o.processor,
		sel:       selector.New(o.selector),
		log:       o.log,
	}
}

// Load replaces the source image. displayW/displayH is the size the image is
// shown at; zero means its natural size. On error the previous state is kept.
func (s *CropSession) Load(name string, img image.Image, displayW, displayH float64) error {
	if !validSource(img) {
		return ErrNoSource
	}
	b := img.Bounds()
	if displayW == 0 && displayH == 0 {
		displayW, displayH = float64(b.Dx()), float64(b.Dy())
	}
	t, err := raster.NewTransform(b.Dx(), b.Dy(), displayW, displayH)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.src = img
	s.transform = t
	s.result = nil
	s.gen++
	s.sel.Initialize(t.DisplayWidth, t.DisplayHeight, s.sel.Aspect())

	s.log.Info().
		Str("name", name).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Float64("display_width", t.DisplayWidth).
		Float64("display_height", t.DisplayHeight).
		Msg("crop source loaded")
	return nil
}

// LoadReader decodes r and loads it. Non-image input is rejected with
// processing.ErrNotImage and the previous state is kept.
func (s *CropSession) LoadReader(name string, r io.Reader, displayW, displayH float64) error {
	img, err := s.processor.Decode(r)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	return s.Load(name, img, displayW, displayH)
}

// Rescale records a new on-screen size and scales the region with it, so the
// selection keeps covering the same source pixels.
func (s *CropSession) Rescale(displayW, displayH float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return ErrNoSource
	}
	old := s.transform
	t, err := raster.NewTransform(old.NaturalWidth, old.NaturalHeight, displayW, displayH)
	if err != nil {
		return err
	}
	s.transform = t
	s.sel.SetDisplay(displayW, displayH)
	s.sel.Scale(displayW/old.DisplayWidth, displayH/old.DisplayHeight)
	return nil
}

// SetDisplay records a new on-screen size for the loaded image. The region is
// kept as is in display coordinates; use Rescale to keep it on the same pixels.
func (s *CropSession) SetDisplay(displayW, displayH float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return ErrNoSource
	}
	t, err := raster.NewTransform(s.transform.NaturalWidth, s.transform.NaturalHeight, displayW, displayH)
	if err != nil {
		return err
	}
	s.transform = t
	s.sel.SetDisplay(displayW, displayH)
	return nil
}

// Loaded reports whether a source image is present.
func (s *CropSession) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src != nil
}

// Name returns the original file name of the source.
func (s *CropSession) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Source returns the loaded image, nil when empty.
func (s *CropSession) Source() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

// Transform returns the current display transform.
func (s *CropSession) Transform() raster.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transform
}

// Region returns the current selection in display space.
func (s *CropSession) Region() types.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.Region()
}

// Aspect returns the active aspect constraint, 0 for free form.
func (s *CropSession) Aspect() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.Aspect()
}

// Completed reports whether the selection was committed.
func (s *CropSession) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.Completed()
}

func (s *CropSession) BeginMove(p selector.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.BeginMove(p)
}

func (s *CropSession) BeginResize(h selector.Handle, p selector.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.BeginResize(h, p)
}

func (s *CropSession) PointerMove(p selector.Point) types.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.PointerMove(p)
}

// HitTest maps a pointer position to a handle or a move.
func (s *CropSession) HitTest(p selector.Point, tol float64) (selector.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.HitTest(p, tol)
}

// EndGesture finishes the active gesture and commits the region.
func (s *CropSession) EndGesture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.sel.Active()
	s.sel.EndGesture()
	if active {
		s.gen++
	}
}

// Accept commits the current region without a gesture.
func (s *CropSession) Accept() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.Accept()
	s.gen++
}

// SetAspect changes the aspect constraint.
func (s *CropSession) SetAspect(ratio float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.SetAspect(ratio)
}

// Place sets and commits a region.
func (s *CropSession) Place(r types.Rect) types.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.sel.Place(r)
}

// Extract renders the committed region. It fails with ErrIncomplete until the
// selection has been committed once, and with ErrSuperseded when a newer
// commit, load or reset happened while it was rendering.
func (s *CropSession) Extract(ctx context.Context) (*types.RasterResult, error) {
	s.mu.Lock()
	if s.src == nil {
		s.mu.Unlock()
		return nil, ErrNoSource
	}
	if !s.sel.Completed() {
		s.mu.Unlock()
		return nil, ErrIncomplete
	}
	gen := s.gen
	src, region, t, name := s.src, s.sel.Region(), s.transform, s.name
	s.mu.Unlock()

	res, err := s.extractor.Extract(src, region, t)
	if err != nil {
		s.log.Error().Err(err).Str("name", name).Msg("crop failed")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Name = utils.CroppedName(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil, ErrSuperseded
	}
	s.result = res
	s.log.Info().
		Str("file", res.Name).
		Int("width", res.Width).
		Int("height", res.Height).
		Str("size", utils.FormatFileSize(int64(len(res.Data)))).
		Msg("crop ready")
	return res, nil
}

// Result returns the current crop result.
func (s *CropSession) Result() (*types.RasterResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.result != nil
}

// Download returns the download name and PNG bytes of the current result.
func (s *CropSession) Download() (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return "", nil, ErrNoResult
	}
	return s.result.Name, s.result.Data, nil
}

// Reset restores the default region and discards the result.
func (s *CropSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.Initialize(s.transform.DisplayWidth, s.transform.DisplayHeight, s.sel.Aspect())
	s.result = nil
	s.gen++
}

// Unload discards the source and everything derived from it.
func (s *CropSession) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = ""
	s.src = nil
	s.transform = raster.Transform{}
	s.result = nil
	s.gen++
	s.sel.Initialize(0, 0, s.sel.Aspect())
}
