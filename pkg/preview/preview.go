// Package preview renders the selection overlay the way the crop tool shows it:
// the image at display size, everything outside the region dimmed, a white
// border and a grip square on each corner.
package preview

import (
	"errors"
	"image"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/menta2k/toolbox/pkg/raster"
	"github.com/menta2k/toolbox/pkg/types"
)

// Style controls the overlay appearance.
type Style struct {
	Dim         float64 // alpha of the black veil outside the region
	BorderWidth float64
	HandleSize  float64
}

// DefaultStyle matches the crop tool.
func DefaultStyle() Style {
	return Style{Dim: 0.5, BorderWidth: 2, HandleSize: 8}
}

// RenderSelection draws region over img scaled to the display size of t.
func RenderSelection(img image.Image, t raster.Transform, region types.Rect, style Style) (image.Image, error) {
	if img == nil {
		return nil, raster.ErrNoSource
	}
	dw := int(math.Round(t.DisplayWidth))
	dh := int(math.Round(t.DisplayHeight))
	if dw < 1 || dh < 1 {
		return nil, errors.New("preview: empty display size")
	}

	base := img
	if b := img.Bounds(); b.Dx() != dw || b.Dy() != dh {
		base = imaging.Resize(img, dw, dh, imaging.Linear)
	}
	dc := gg.NewContextForImage(base)
	W, H := float64(dw), float64(dh)
	x0, y0 := region.X, region.Y
	x1, y1 := region.Right(), region.Bottom()

	dc.SetRGBA(0, 0, 0, style.Dim)
	dc.DrawRectangle(0, 0, W, math.Max(0, y0))
	dc.DrawRectangle(0, y1, W, math.Max(0, H-y1))
	dc.DrawRectangle(0, y0, math.Max(0, x0), region.Height)
	dc.DrawRectangle(x1, y0, math.Max(0, W-x1), region.Height)
	dc.Fill()

	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(style.BorderWidth)
	dc.DrawRectangle(x0, y0, region.Width, region.Height)
	dc.Stroke()

	hs := style.HandleSize
	for _, c := range [][2]float64{{x0, y0}, {x1, y0}, {x0, y1}, {x1, y1}} {
		dc.DrawRectangle(c[0]-hs/2, c[1]-hs/2, hs, hs)
	}
	dc.Fill()

	return dc.Image(), nil
}

// WritePNG renders the overlay and encodes it as PNG.
func WritePNG(w io.Writer, img image.Image, t raster.Transform, region types.Rect, style Style) error {
	out, err := RenderSelection(img, t, region, style)
	if err != nil {
		return err
	}
	return imaging.Encode(w, out, imaging.PNG)
}
