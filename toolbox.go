// Package toolbox crops, rasterizes and converts images.
//
// A user drags a rectangular selection over an image shown at some display
// size; the toolbox maps that selection back onto the source pixels and
// produces a PNG. The same engine renders a source image into a set of square
// icons, which can be bundled as a ZIP archive or a Windows ICO file.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		"github.com/menta2k/toolbox"
//		"github.com/menta2k/toolbox/pkg/types"
//	)
//
//	func main() {
//		tb, err := toolbox.New()
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		img, err := tb.LoadImage("photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		// crop the region selected on a 500x250 preview
//		res, err := tb.Crop(context.Background(), "photo.jpg", img, toolbox.CropRequest{
//			DisplayWidth:  500,
//			DisplayHeight: 250,
//			Region:        &types.Rect{X: 100, Y: 50, Width: 100, Height: 50},
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//		os.WriteFile(res.Name, res.Data, 0644)
//	}
//
// The package is a thin facade over:
//
//   - pkg/selector: the selection rectangle and its pointer gestures
//   - pkg/raster: display-to-source mapping and PNG extraction
//   - pkg/session: per-tool state (crop and icons)
//   - pkg/bundle: ZIP and ICO packaging
//   - pkg/processing: decoding, format conversion and background removal
//   - pkg/detection: subject detection through a vision model
package toolbox

import (
	"context"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/menta2k/toolbox/internal/config"
	"github.com/menta2k/toolbox/pkg/bundle"
	"github.com/menta2k/toolbox/pkg/client"
	"github.com/menta2k/toolbox/pkg/detection"
	"github.com/menta2k/toolbox/pkg/llamacpp"
	"github.com/menta2k/toolbox/pkg/ollama"
	"github.com/menta2k/toolbox/pkg/processing"
	"github.com/menta2k/toolbox/pkg/raster"
	"github.com/menta2k/toolbox/pkg/selector"
	"github.com/menta2k/toolbox/pkg/session"
	"github.com/menta2k/toolbox/pkg/types"
	"github.com/menta2k/toolbox/pkg/vision"
)

// Version of the toolbox
const Version = "1.0.0"

// Toolbox wires the engine together from one configuration
type Toolbox struct {
	cfg       *config.Config
	log       zerolog.Logger
	processor *processing.Processor
	extractor *raster.Extractor
}

// New creates a Toolbox with the default configuration and no logging
func New() (*Toolbox, error) {
	return NewWithConfig(config.Default(), zerolog.Nop())
}

// NewWithConfig creates a Toolbox from cfg
func NewWithConfig(cfg *config.Config, log zerolog.Logger) (*Toolbox, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	extractor, err := NewExtractor(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Toolbox{
		cfg:       cfg,
		log:       log,
		processor: processing.NewProcessor(processing.WithLogger(log)),
		extractor: extractor,
	}, nil
}

// NewExtractor builds the extractor selected by the raster section of cfg
func NewExtractor(cfg *config.Config, log zerolog.Logger) (*raster.Extractor, error) {
	fit, err := raster.ParseFit(cfg.Raster.IconFit)
	if err != nil {
		return nil, err
	}
	var backend raster.Backend
	switch cfg.Raster.Backend {
	case "imaging":
		backend = raster.NewImagingBackend(imaging.Lanczos)
	default:
		backend = raster.NewDrawBackend(nil)
	}
	return raster.NewExtractor(backend,
		raster.WithPixelRatio(cfg.Raster.PixelRatio),
		raster.WithIconFit(fit),
		raster.WithConcurrency(cfg.Raster.Concurrency),
		raster.WithLogger(log),
	), nil
}

// NewVisionClient creates the vision backend named in the vision section of cfg
func NewVisionClient(cfg *config.Config) (client.VisionClient, error) {
	httpClient := &http.Client{Timeout: cfg.Vision.Timeout}
	switch cfg.Vision.Backend {
	case client.BackendLlamaCpp:
		return llamacpp.NewClient(cfg.Vision.URL, httpClient)
	case client.BackendOllama:
		return ollama.NewClient(cfg.Vision.URL, httpClient)
	case client.BackendLocal:
		return vision.NewClient(nil), nil
	}
	return nil, client.ValidateBackend(cfg.Vision.Backend)
}

// Config returns the configuration in use
func (tb *Toolbox) Config() *config.Config { return tb.cfg }

// Processor returns the shared image processor
func (tb *Toolbox) Processor() *processing.Processor { return tb.processor }

// Extractor returns the shared raster extractor
func (tb *Toolbox) Extractor() *raster.Extractor { return tb.extractor }

func (tb *Toolbox) sessionOptions(extra ...session.Option) []session.Option {
	opts := []session.Option{
		session.WithExtractor(tb.extractor),
		session.WithProcessor(tb.processor),
		session.WithSelectorConfig(tb.cfg.SelectorPolicy()),
		session.WithLogger(tb.log),
	}
	return append(opts, extra...)
}

// NewCropSession returns an empty crop session using the configured policy.
// extra options are applied last.
func (tb *Toolbox) NewCropSession(extra ...session.Option) *session.CropSession {
	return session.NewCropSession(tb.sessionOptions(extra...)...)
}

// NewIconSession returns an empty icon session
func (tb *Toolbox) NewIconSession(extra ...session.Option) *session.IconSession {
	return session.NewIconSession(tb.sessionOptions(extra...)...)
}

// NewDetector returns a subject detector for the configured vision backend
func (tb *Toolbox) NewDetector() (*detection.Detector, error) {
	c, err := NewVisionClient(tb.cfg)
	if err != nil {
		return nil, err
	}
	return detection.NewDetector(c, tb.cfg.Vision.Model, detection.WithLogger(tb.log)), nil
}

// LoadImage loads an image from a file path or http(s) URL
func (tb *Toolbox) LoadImage(source string) (image.Image, error) {
	return tb.processor.LoadImageSmart(context.Background(), source)
}

// DisplayTransform returns the transform of img laid out inside the
// configured maximum display size
func (tb *Toolbox) DisplayTransform(img image.Image) (raster.Transform, error) {
	if img == nil {
		return raster.Transform{}, raster.ErrNoSource
	}
	b := img.Bounds()
	return raster.Fit(b.Dx(), b.Dy(), tb.cfg.Display.MaxWidth, tb.cfg.Display.MaxHeight)
}

// CropRequest describes a one-shot crop
type CropRequest struct {
	// DisplayWidth and DisplayHeight give the size the region was selected
	// on. Zero means the natural image size.
	DisplayWidth  float64
	DisplayHeight float64
	// Aspect is a ratio name, "W:H" or decimal; empty uses the configured one.
	Aspect string
	// Region in display space; nil uses the default region.
	Region *types.Rect
}

// Crop runs a crop session once: load, select, extract
func (tb *Toolbox) Crop(ctx context.Context, name string, img image.Image, req CropRequest) (*types.RasterResult, error) {
	aspectName := req.Aspect
	if aspectName == "" {
		aspectName = tb.cfg.Selector.Aspect
	}
	aspect, err := selector.ParseAspect(aspectName)
	if err != nil {
		return nil, err
	}

	cs := tb.NewCropSession()
	cs.SetAspect(aspect.Ratio())
	if err := cs.Load(name, img, req.DisplayWidth, req.DisplayHeight); err != nil {
		return nil, err
	}
	if req.Region != nil {
		cs.Place(*req.Region)
	} else {
		cs.Accept()
	}
	return cs.Extract(ctx)
}

// Icons renders img at every size, in ascending order
func (tb *Toolbox) Icons(ctx context.Context, name string, img image.Image, sizes []int) ([]types.RasterResult, error) {
	is := tb.NewIconSession()
	if err := is.SetSizes(sizes); err != nil {
		return nil, err
	}
	if err := is.Load(name, img); err != nil {
		return nil, err
	}
	return is.Generate(ctx)
}

// Bundle packs icons into a ZIP archive or ICO file
func (tb *Toolbox) Bundle(format bundle.Format, icons []types.RasterResult) ([]byte, error) {
	return bundle.Bytes(format, icons)
}

// Convert re-encodes img in the target format using the configured quality
func (tb *Toolbox) Convert(img image.Image, target processing.Format) ([]byte, error) {
	return tb.processor.EncodeBytes(tb.processor.Convert(img, target), target,
		tb.cfg.Output.JPEGQuality, tb.cfg.Output.WebPLossless)
}

// RemoveBackground keys out the background with the configured tolerance
func (tb *Toolbox) RemoveBackground(img image.Image) image.Image {
	return tb.processor.RemoveBackground(img, tb.cfg.RemoveBackgroundOptions())
}

// SuggestRegion asks the vision backend for the main subject of img and
// returns it as a region in the display space of t, ready for Place
func (tb *Toolbox) SuggestRegion(ctx context.Context, d *detection.Detector, img image.Image, t raster.Transform) (types.Rect, *types.Detection, error) {
	payload, err := tb.processor.PrepareImageForModel(img, tb.cfg.Vision.MaxDim, 85)
	if err != nil {
		return types.Rect{}, nil, err
	}
	r, det, err := d.SuggestRegion(ctx, payload, t)
	if err != nil {
		return types.Rect{}, nil, err
	}
	sel := selector.New(tb.cfg.SelectorPolicy())
	sel.Initialize(t.DisplayWidth, t.DisplayHeight, 0)
	return sel.Place(r), det, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
