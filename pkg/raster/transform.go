package raster

import (
	"fmt"
	"math"

	"github.com/menta2k/toolbox/pkg/types"
)

// Transform maps display-space coordinates onto the natural pixel grid of
// the source image.
type Transform struct {
	NaturalWidth  int
	NaturalHeight int
	DisplayWidth  float64
	DisplayHeight float64
	ScaleX        float64
	ScaleY        float64
}

// NewTransform derives the scale factors for an image of the given natural
// size rendered at the given display size.
func NewTransform(naturalW, naturalH int, displayW, displayH float64) (Transform, error) {
	if naturalW <= 0 || naturalH <= 0 {
		return Transform{}, fmt.Errorf("%w: natural size %dx%d", ErrInvalidTransform, naturalW, naturalH)
	}
	if !(displayW > 0) || !(displayH > 0) || math.IsInf(displayW, 0) || math.IsInf(displayH, 0) {
		return Transform{}, fmt.Errorf("%w: display size %gx%g", ErrInvalidTransform, displayW, displayH)
	}
	return Transform{
		NaturalWidth:  naturalW,
		NaturalHeight: naturalH,
		DisplayWidth:  displayW,
		DisplayHeight: displayH,
		ScaleX:        float64(naturalW) / displayW,
		ScaleY:        float64(naturalH) / displayH,
	}, nil
}

// Identity returns the transform of an image displayed at its natural size.
func Identity(naturalW, naturalH int) (Transform, error) {
	return NewTransform(naturalW, naturalH, float64(naturalW), float64(naturalH))
}

// Fit returns the transform of an image scaled down to fit inside maxW x maxH
// while keeping its aspect ratio, the way a browser lays out an <img> with
// max-width/max-height. Images that already fit keep their natural size.
// A non-positive bound means unbounded.
func Fit(naturalW, naturalH int, maxW, maxH float64) (Transform, error) {
	w, h := float64(naturalW), float64(naturalH)
	ratio := 1.0
	if maxW > 0 && w > maxW {
		ratio = maxW / w
	}
	if maxH > 0 && h*ratio > maxH {
		ratio = maxH / h
	}
	return NewTransform(naturalW, naturalH, w*ratio, h*ratio)
}

// ToSource maps a display-space rectangle into source pixel space.
func (t Transform) ToSource(r types.Rect) types.Rect {
	return r.Scale(t.ScaleX, t.ScaleY)
}

// ToDisplay maps a source-space rectangle into display space.
func (t Transform) ToDisplay(r types.Rect) types.Rect {
	if t.ScaleX == 0 || t.ScaleY == 0 {
		return types.Rect{}
	}
	return r.Scale(1/t.ScaleX, 1/t.ScaleY)
}

// BoxToDisplay converts a normalized [0,1] box into a display-space rectangle.
func (t Transform) BoxToDisplay(b types.Box) types.Rect {
	return types.Rect{
		X:      b.X * t.DisplayWidth,
		Y:      b.Y * t.DisplayHeight,
		Width:  b.W * t.DisplayWidth,
		Height: b.H * t.DisplayHeight,
	}
}
