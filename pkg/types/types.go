package types

import "math"

// Rect is an axis-aligned rectangle with float coordinates. It is used for
// selection regions in display space and for source rectangles in pixel space.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Scale returns the rectangle with x/width multiplied by sx and y/height by sy.
func (r Rect) Scale(sx, sy float64) Rect {
	return Rect{X: r.X * sx, Y: r.Y * sy, Width: r.Width * sx, Height: r.Height * sy}
}

// ApproxEqual compares two rectangles within tol on every component.
func (r Rect) ApproxEqual(o Rect, tol float64) bool {
	return math.Abs(r.X-o.X) <= tol && math.Abs(r.Y-o.Y) <= tol &&
		math.Abs(r.Width-o.Width) <= tol && math.Abs(r.Height-o.Height) <= tol
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Subject is the primary subject reported by a vision model
type Subject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Detection is the parsed reply of a region suggestion request
type Detection struct {
	Primary     Subject  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Fallback    bool     `json:"fallback,omitempty"`
}

// RasterResult is an encoded PNG produced by an extraction.
// Size is the icon size label and is zero for crops.
type RasterResult struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int    `json:"size,omitempty"`
	Data   []byte `json:"-"`
}

// MimeType of every raster result.
const MimeType = "image/png"
