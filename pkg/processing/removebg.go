package processing

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

// RemoveBackgroundOptions tunes the color-key background removal.
type RemoveBackgroundOptions struct {
	// Tolerance is the normalized RGB distance [0,1] under which a pixel is
	// considered background.
	Tolerance float64
	// Feather is the width of the partially transparent band above Tolerance.
	Feather float64
	// Background overrides the color estimated from the image border.
	Background *color.NRGBA
}

// DefaultRemoveBackgroundOptions returns the options used by the tools
func DefaultRemoveBackgroundOptions() RemoveBackgroundOptions {
	return RemoveBackgroundOptions{Tolerance: 0.12, Feather: 0.06}
}

// RemoveBackground keys out the dominant border color. It works for product
// shots and logos on a flat backdrop; it is not a segmentation model.
func (p *Processor) RemoveBackground(img image.Image, opts RemoveBackgroundOptions) *image.NRGBA {
	out := imaging.Clone(img)
	if opts.Tolerance < 0 {
		opts.Tolerance = 0
	}
	if opts.Feather < 0 {
		opts.Feather = 0
	}
	bg := EstimateBackground(out)
	if opts.Background != nil {
		bg = *opts.Background
	}

	const maxDist = 255 * 1.7320508075688772 // sqrt(3)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	for y := 0; y < h; y++ {
		i := y * out.Stride
		for x := 0; x < w; x++ {
			px := out.Pix[i : i+4 : i+4]
			dr := float64(px[0]) - float64(bg.R)
			dg := float64(px[1]) - float64(bg.G)
			db := float64(px[2]) - float64(bg.B)
			d := math.Sqrt(dr*dr+dg*dg+db*db) / maxDist

			switch {
			case d <= opts.Tolerance:
				px[3] = 0
			case opts.Feather > 0 && d < opts.Tolerance+opts.Feather:
				k := (d - opts.Tolerance) / opts.Feather
				px[3] = uint8(math.Round(float64(px[3]) * k))
			}
			i += 4
		}
	}

	p.log.Debug().
		Str("background", fmt.Sprintf("#%02x%02x%02x", bg.R, bg.G, bg.B)).
		Float64("tolerance", opts.Tolerance).
		Msg("removed background")
	return out
}

// EstimateBackground returns the per-channel median of the border pixels.
func EstimateBackground(img *image.NRGBA) color.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return color.NRGBA{255, 255, 255, 255}
	}

	var rs, gs, bs []int
	add := func(x, y int) {
		c := img.NRGBAAt(b.Min.X+x, b.Min.Y+y)
		rs = append(rs, int(c.R))
		gs = append(gs, int(c.G))
		bs = append(bs, int(c.B))
	}
	for x := 0; x < w; x++ {
		add(x, 0)
		if h > 1 {
			add(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		if w > 1 {
			add(w-1, y)
		}
	}
	return color.NRGBA{median(rs), median(gs), median(bs), 255}
}

func median(v []int) uint8 {
	sort.Ints(v)
	return uint8(v[len(v)/2])
}
