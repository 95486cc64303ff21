// Package vision locates the most salient region of an image without a model.
//
// Saliency is the weighted sum of local edge strength and global color
// contrast, computed on a downscaled copy. Candidate windows with the image's
// aspect ratio slide over the map and the window with the highest mean
// saliency wins.
package vision

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/toolbox/pkg/types"
)

// Config tunes the saliency search
type Config struct {
	// AnalysisSize bounds the longer side of the analysed copy
	AnalysisSize int
	EdgeWeight     float64
	ContrastWeight float64
	// MinSubjectRatio is the smallest window area, as a fraction of the image
	MinSubjectRatio float64
	// WindowScales are candidate window sides relative to the image sides
	WindowScales []float64
	// MinScore is the mean saliency below which the image is considered flat
	MinScore float64
}

// DefaultConfig returns the default tuning
func DefaultConfig() Config {
	return Config{
		AnalysisSize:    128,
		EdgeWeight:      0.6,
		ContrastWeight:  0.4,
		MinSubjectRatio: 0.05,
		WindowScales:    []float64{0.25, 1.0 / 3, 0.5, 2.0 / 3},
		MinScore:        0.01,
	}
}

// FlatBox is returned for images with no salient content
var FlatBox = types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}

// Saliency is a per-pixel saliency map in [0,1]
type Saliency struct {
	Width, Height int
	Values        []float64
}

// At returns the saliency at (x, y)
func (s *Saliency) At(x, y int) float64 { return s.Values[y*s.Width+x] }

// Locator finds salient regions
type Locator struct {
	cfg Config
}

// NewLocator returns a locator. Zero fields of cfg take their defaults.
func NewLocator(cfg Config) *Locator {
	def := DefaultConfig()
	if cfg.AnalysisSize <= 0 {
		cfg.AnalysisSize = def.AnalysisSize
	}
	if cfg.EdgeWeight == 0 && cfg.ContrastWeight == 0 {
		cfg.EdgeWeight, cfg.ContrastWeight = def.EdgeWeight, def.ContrastWeight
	}
	if cfg.MinSubjectRatio <= 0 {
		cfg.MinSubjectRatio = def.MinSubjectRatio
	}
	if len(cfg.WindowScales) == 0 {
		cfg.WindowScales = def.WindowScales
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}
	return &Locator{cfg: cfg}
}

// Map computes the saliency map of img after downscaling it to the
// analysis size.
func (l *Locator) Map(img image.Image) *Saliency {
	b := img.Bounds()
	small := imaging.Clone(img)
	if b.Dx() > l.cfg.AnalysisSize || b.Dy() > l.cfg.AnalysisSize {
		small = imaging.Fit(img, l.cfg.AnalysisSize, l.cfg.AnalysisSize, imaging.Box)
	}
	w, h := small.Bounds().Dx(), small.Bounds().Dy()
	lum := make([]float64, w*h)
	rgb := make([][3]float64, w*h)
	var mean [3]float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := small.PixOffset(x, y)
			a := float64(small.Pix[i+3]) / 255
			c := [3]float64{
				float64(small.Pix[i]) / 255 * a,
				float64(small.Pix[i+1]) / 255 * a,
				float64(small.Pix[i+2]) / 255 * a,
			}
			rgb[y*w+x] = c
			lum[y*w+x] = 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
			for k := range mean {
				mean[k] += c[k]
			}
		}
	}
	n := float64(w * h)
	for k := range mean {
		mean[k] /= n
	}

	s := &Saliency{Width: w, Height: h, Values: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := lum[y*w+min(x+1, w-1)] - lum[y*w+max(x-1, 0)]
			gy := lum[min(y+1, h-1)*w+x] - lum[max(y-1, 0)*w+x]
			edge := math.Min(1, math.Hypot(gx, gy))

			c := rgb[y*w+x]
			contrast := math.Sqrt(((c[0]-mean[0])*(c[0]-mean[0]) +
				(c[1]-mean[1])*(c[1]-mean[1]) +
				(c[2]-mean[2])*(c[2]-mean[2])) / 3)

			s.Values[y*w+x] = l.cfg.EdgeWeight*edge + l.cfg.ContrastWeight*contrast
		}
	}
	return s
}

// Locate returns the most salient window of img as a normalized box and its
// mean saliency. Flat images yield FlatBox with a zero score.
func (l *Locator) Locate(img image.Image) (types.Box, float64) {
	s := l.Map(img)
	sum := s.integral()
	w, h := s.Width, s.Height

	best, bestScore := FlatBox, 0.0
	for _, scale := range l.cfg.WindowScales {
		if scale <= 0 || scale > 1 || scale*scale < l.cfg.MinSubjectRatio {
			continue
		}
		ww := max(1, int(math.Round(float64(w)*scale)))
		wh := max(1, int(math.Round(float64(h)*scale)))
		step := max(1, min(ww, wh)/8)
		for y := 0; y+wh <= h; y += step {
			for x := 0; x+ww <= w; x += step {
				score := sum.mean(x, y, ww, wh)
				if score > bestScore {
					bestScore = score
					best = types.Box{
						X: float64(x) / float64(w),
						Y: float64(y) / float64(h),
						W: float64(ww) / float64(w),
						H: float64(wh) / float64(h),
					}
				}
			}
		}
	}
	if bestScore < l.cfg.MinScore {
		return FlatBox, 0
	}
	return best, bestScore
}

// summed-area table with a zero row and column
type integral struct {
	stride int
	v      []float64
}

func (s *Saliency) integral() integral {
	stride := s.Width + 1
	t := integral{stride: stride, v: make([]float64, stride*(s.Height+1))}
	for y := 0; y < s.Height; y++ {
		row := 0.0
		for x := 0; x < s.Width; x++ {
			row += s.At(x, y)
			t.v[(y+1)*stride+x+1] = t.v[y*stride+x+1] + row
		}
	}
	return t
}

func (t integral) mean(x, y, w, h int) float64 {
	total := t.v[(y+h)*t.stride+x+w] - t.v[y*t.stride+x+w] - t.v[(y+h)*t.stride+x] + t.v[y*t.stride+x]
	return total / float64(w*h)
}
