package session

import (
	"context"
	"fmt"
	"image"
	"io"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/menta2k/toolbox/internal/utils"
	"github.com/menta2k/toolbox/pkg/bundle"
	"github.com/menta2k/toolbox/pkg/processing"
	"github.com/menta2k/toolbox/pkg/raster"
	"github.com/menta2k/toolbox/pkg/types"
)

// Palette is the fixed set of icon sizes a user can pick from.
func Palette() []int { return []int{16, 24, 32, 48, 64, 128, 256, 512} }

// DefaultIconSizes is the initial selection.
func DefaultIconSizes() []int { return []int{16, 32, 48, 64, 128, 256} }

// InPalette reports whether size can be selected.
func InPalette(size int) bool { return slices.Contains(Palette(), size) }

// IconSession drives the icon tool: one source image, a size selection and the
// generated icon set.
type IconSession struct {
	mu        sync.Mutex
	extractor *raster.Extractor
	processor *processing.Processor
	log       zerolog.Logger

	name    string
	src     image.Image
	sizes   []int
	results []types.RasterResult
	gen     uint64
}

// NewIconSession creates an empty icon session with the default selection.
func NewIconSession(opts ...Option) *IconSession {
	o := newOptions(opts)
	return &IconSession{
		extractor: o.extractor,
		processor: o.processor,
		log:       o.log,
		sizes:     DefaultIconSizes(),
	}
}

// Load replaces the source image and discards generated icons. The size
// selection is kept.
func (s *IconSession) Load(name string, img image.Image) error {
	if !validSource(img) {
		return ErrNoSource
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.src = img
	s.results = nil
	s.gen++
	s.log.Info().Str("name", name).Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).Msg("icon source loaded")
	return nil
}

// LoadReader decodes r and loads it; on error the previous state is kept.
func (s *IconSession) LoadReader(name string, r io.Reader) error {
	img, err := s.processor.Decode(r)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	return s.Load(name, img)
}

// Loaded reports whether a source image is present.
func (s *IconSession) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src != nil
}

// Sizes returns the selected sizes in ascending order.
func (s *IconSession) Sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sizes)
}

// ToggleSize adds or removes size from the selection.
func (s *IconSession) ToggleSize(size int) error {
	if !InPalette(size) {
		return fmt.Errorf("%w: %d", ErrUnknownSize, size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.sizes, size); i >= 0 {
		s.sizes = slices.Delete(s.sizes, i, i+1)
		return nil
	}
	s.sizes = append(s.sizes, size)
	slices.Sort(s.sizes)
	return nil
}

// SetSizes replaces the selection. Every size must be in the palette.
func (s *IconSession) SetSizes(sizes []int) error {
	for _, size := range sizes {
		if !InPalette(size) {
			return fmt.Errorf("%w: %d", ErrUnknownSize, size)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes = raster.NormalizeSizes(sizes)
	return nil
}

// Generate renders every selected size. With an empty selection it returns an
// empty set.
func (s *IconSession) Generate(ctx context.Context) ([]types.RasterResult, error) {
	s.mu.Lock()
	if s.src == nil {
		s.mu.Unlock()
		return nil, ErrNoSource
	}
	s.gen++
	gen := s.gen
	src, sizes, name := s.src, slices.Clone(s.sizes), s.name
	s.mu.Unlock()

	results, err := s.extractor.RasterizeAll(ctx, src, sizes)
	if err != nil {
		s.log.Error().Err(err).Str("name", name).Msg("icon generation failed")
		return nil, err
	}
	for i := range results {
		results[i].Name = utils.IconName(results[i].Size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil, ErrSuperseded
	}
	s.results = results
	s.log.Info().Str("name", name).Ints("sizes", sizes).Msg("icons ready")
	return slices.Clone(results), nil
}

// Results returns the generated icons in ascending size order.
func (s *IconSession) Results() []types.RasterResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.results)
}

// Icon returns the generated icon of one size.
func (s *IconSession) Icon(size int) (types.RasterResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results {
		if r.Size == size {
			return r, nil
		}
	}
	return types.RasterResult{}, fmt.Errorf("%w: %dx%d", ErrNoResult, size, size)
}

// Bundle packs the generated icons into a single file and returns its
// download name and bytes.
func (s *IconSession) Bundle(format bundle.Format) (string, []byte, error) {
	s.mu.Lock()
	results, name := slices.Clone(s.results), s.name
	s.mu.Unlock()

	if len(results) == 0 {
		return "", nil, ErrNoResult
	}
	data, err := bundle.Bytes(format, results)
	if err != nil {
		return "", nil, err
	}
	base := "icons"
	if b := utils.SanitizeFilename(utils.BaseName(name)); b != "" {
		base = b + "-icons"
	}
	return base + format.Ext(), data, nil
}

// Unload discards the source and generated icons.
func (s *IconSession) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = ""
	s.src = nil
	s.results = nil
	s.gen++
}
