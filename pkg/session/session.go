// Package session holds the per-tool controllers. Each session owns its source
// image, display transform, selection and results; nothing is shared between
// sessions. Sessions are safe for concurrent use.
package session

import (
	"errors"
	"image"

	"github.com/rs/zerolog"

	"github.com/menta2k/toolbox/pkg/processing"
	"github.com/menta2k/toolbox/pkg/raster"
	"github.com/menta2k/toolbox/pkg/selector"
)

var (
	ErrNoSource    = raster.ErrNoSource
	ErrIncomplete  = errors.New("selection not completed")
	ErrNoResult    = errors.New("no result available")
	ErrSuperseded  = errors.New("superseded by a newer request")
	ErrUnknownSize = errors.New("size not in palette")
)

type options struct {
	extractor *raster.Extractor
	processor *processing.Processor
	selector  selector.Config
	log       zerolog.Logger
}

// Option configures a session.
type Option func(*options)

// WithExtractor sets the raster extractor.
func WithExtractor(e *raster.Extractor) Option {
	return func(o *options) {
		if e != nil {
			o.extractor = e
		}
	}
}

// WithProcessor sets the processor used to decode uploads.
func WithProcessor(p *processing.Processor) Option {
	return func(o *options) {
		if p != nil {
			o.processor = p
		}
	}
}

// WithSelectorConfig sets the selection policy of a crop session.
func WithSelectorConfig(c selector.Config) Option {
	return func(o *options) { o.selector = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

func newOptions(opts []Option) options {
	o := options{
		selector: selector.DefaultConfig(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.extractor == nil {
		o.extractor = raster.NewExtractor(nil, raster.WithLogger(o.log))
	}
	if o.processor == nil {
		o.processor = processing.NewProcessor(processing.WithLogger(o.log))
	}
	return o
}

func validSource(img image.Image) bool {
	return img != nil && !img.Bounds().Empty()
}
