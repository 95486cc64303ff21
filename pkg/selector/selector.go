// Package selector tracks a user-adjustable rectangular region over a displayed
// image. All coordinates are display-space pixels. The selector never fails:
// pointer input that would break the region invariants is clamped.
//
// Invariants held after every operation:
//
//	region.Width  >= MinSize
//	region.Height >= MinSize
//	region.X >= 0 && region.Y >= 0
//
// Deltas are incremental: each PointerMove is applied relative to the previous
// pointer position, not to the position where the gesture started.
package selector

import (
	"math"

	"github.com/menta2k/toolbox/pkg/types"
)

// Point is a pointer position in display space.
type Point struct {
	X, Y float64
}

// Config holds the selector policy
type Config struct {
	// MinSize is the floor for both region dimensions.
	MinSize float64
	// DefaultOffset and DefaultSize describe the free-form default region.
	DefaultOffset float64
	DefaultSize   float64
	// CenterDefault centers the free-form default region instead of using DefaultOffset.
	CenterDefault bool
	// AspectFill is the share of min(displayW, displayH) covered by the larger
	// side of an aspect-constrained default region.
	AspectFill float64
	// ClampToBounds additionally keeps the region inside the display area.
	// Off by default: only the lower bound (x, y >= 0) is enforced.
	ClampToBounds bool
	// ReshapeOnAspect re-derives the current region when the aspect constraint changes.
	ReshapeOnAspect bool
}

// DefaultConfig returns the policy of the crop tool
func DefaultConfig() Config {
	return Config{
		MinSize:       50,
		DefaultOffset: 50,
		DefaultSize:   200,
		AspectFill:    0.9,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MinSize <= 0 {
		c.MinSize = d.MinSize
	}
	if c.DefaultSize <= 0 {
		c.DefaultSize = d.DefaultSize
	}
	if c.DefaultOffset < 0 {
		c.DefaultOffset = 0
	}
	if c.AspectFill <= 0 || c.AspectFill > 1 {
		c.AspectFill = d.AspectFill
	}
	return c
}

type gesture int

const (
	gestureNone gesture = iota
	gestureMove
	gestureResize
)

// Selector owns one selection region. It is not safe for concurrent use;
// the owning session serializes access.
type Selector struct {
	cfg       Config
	region    types.Rect
	aspect    float64
	displayW  float64
	displayH  float64
	gesture   gesture
	handle    Handle
	last      Point
	completed bool
}

// New creates a Selector with the given policy and a default region over an
// unknown display size. Call Initialize once the image is laid out.
func New(cfg Config) *Selector {
	s := &Selector{cfg: cfg.normalized()}
	s.region = s.defaultRegion()
	return s
}

// Config returns the effective policy.
func (s *Selector) Config() Config { return s.cfg }

// Region returns the current selection.
func (s *Selector) Region() types.Rect { return s.region }

// Aspect returns the active width/height constraint, 0 when free form.
func (s *Selector) Aspect() float64 { return s.aspect }

// Active reports whether a move or resize gesture is in progress.
func (s *Selector) Active() bool { return s.gesture != gestureNone }

// Completed reports whether the region was committed at least once, either by
// finishing a gesture, by Accept or by Place.
func (s *Selector) Completed() bool { return s.completed }

// Display returns the display size the selector was initialized with.
func (s *Selector) Display() (float64, float64) { return s.displayW, s.displayH }

// Initialize resets the selector for a newly displayed image and returns the
// default region.
func (s *Selector) Initialize(displayW, displayH, aspect float64) types.Rect {
	s.displayW = math.Max(0, displayW)
	s.displayH = math.Max(0, displayH)
	s.aspect = sanitizeAspect(aspect)
	s.gesture = gestureNone
	s.handle = ""
	s.completed = false
	s.region = s.defaultRegion()
	return s.region
}

// SetDisplay updates the display bounds without touching the region.
func (s *Selector) SetDisplay(displayW, displayH float64) {
	s.displayW = math.Max(0, displayW)
	s.displayH = math.Max(0, displayH)
}

// Scale multiplies the region by kx and ky, for a display that was resized
// while keeping the selection over the same part of the image. The result is
// floored and clamped like any other edit. Non-positive or non-finite factors
// are ignored.
func (s *Selector) Scale(kx, ky float64) types.Rect {
	if !finite(kx) || !finite(ky) || kx <= 0 || ky <= 0 {
		return s.region
	}
	r := types.Rect{X: s.region.X * kx, Y: s.region.Y * ky, Width: s.region.Width * kx, Height: s.region.Height * ky}
	r.Width, r.Height = s.constrain(r.Width, r.Height, false)
	s.region = s.clampOrigin(r)
	return s.region
}

// BeginMove starts dragging the whole region.
func (s *Selector) BeginMove(p Point) {
	s.gesture = gestureMove
	s.handle = ""
	s.last = p
}

// BeginResize starts dragging one of the grips. Unknown handles are ignored.
func (s *Selector) BeginResize(h Handle, p Point) {
	h, ok := ParseHandle(string(h))
	if !ok {
		return
	}
	s.gesture = gestureResize
	s.handle = h
	s.last = p
}

// PointerMove applies the delta since the last pointer position to the active
// gesture. Without an active gesture it is a no-op, and so is a pointer
// with a NaN or infinite coordinate.
func (s *Selector) PointerMove(p Point) types.Rect {
	if s.gesture == gestureNone || !finite(p.X) || !finite(p.Y) {
		return s.region
	}
	dx, dy := p.X-s.last.X, p.Y-s.last.Y
	switch s.gesture {
	case gestureMove:
		s.move(dx, dy)
	case gestureResize:
		s.resize(dx, dy)
	}
	s.last = p
	return s.region
}

// EndGesture finishes the current gesture. It is idempotent.
func (s *Selector) EndGesture() {
	if s.gesture != gestureNone {
		s.completed = true
	}
	s.gesture = gestureNone
	s.handle = ""
}

// Accept commits the current region without a gesture.
func (s *Selector) Accept() {
	s.completed = true
}

// SetAspect changes the constraint; 0 or a negative ratio means free form.
// The current region is only reshaped when ReshapeOnAspect is set.
func (s *Selector) SetAspect(ratio float64) {
	s.aspect = sanitizeAspect(ratio)
	if !s.cfg.ReshapeOnAspect || s.aspect == 0 {
		return
	}
	r := s.region
	r.Width, r.Height = s.constrain(r.Width, r.Height, false)
	s.region = s.clampOrigin(r)
}

// Place sets the region programmatically. With an aspect constraint the
// largest matching rectangle centered inside r is used. The placed region
// counts as completed. NaN or infinite fields keep their current value.
func (s *Selector) Place(r types.Rect) types.Rect {
	r.X = finiteOr(r.X, s.region.X)
	r.Y = finiteOr(r.Y, s.region.Y)
	r.Width = finiteOr(r.Width, s.region.Width)
	r.Height = finiteOr(r.Height, s.region.Height)
	if s.aspect > 0 && r.Width > 0 && r.Height > 0 {
		cx, cy := r.X+r.Width/2, r.Y+r.Height/2
		if r.Width/r.Height > s.aspect {
			r.Width = r.Height * s.aspect
		} else {
			r.Height = r.Width / s.aspect
		}
		r.X, r.Y = cx-r.Width/2, cy-r.Height/2
	}
	r.Width, r.Height = s.constrain(r.Width, r.Height, false)
	s.region = s.clampOrigin(r)
	s.gesture = gestureNone
	s.handle = ""
	s.completed = true
	return s.region
}

// HitTest maps a pointer position to the gesture it should start: a resize
// handle when p is within tol of an edge or corner, a move when p is inside.
func (s *Selector) HitTest(p Point, tol float64) (h Handle, move bool) {
	r := s.region
	if p.X < r.X-tol || p.X > r.Right()+tol || p.Y < r.Y-tol || p.Y > r.Bottom()+tol {
		return "", false
	}
	var v, hz string
	switch {
	case math.Abs(p.Y-r.Y) <= tol:
		v = "n"
	case math.Abs(p.Y-r.Bottom()) <= tol:
		v = "s"
	}
	switch {
	case math.Abs(p.X-r.X) <= tol:
		hz = "w"
	case math.Abs(p.X-r.Right()) <= tol:
		hz = "e"
	}
	if v != "" || hz != "" {
		return Handle(v + hz), false
	}
	return "", true
}

func (s *Selector) move(dx, dy float64) {
	r := s.region
	r.X += dx
	r.Y += dy
	s.region = s.clampOrigin(r)
}

func (s *Selector) resize(dx, dy float64) {
	r := s.region
	h := s.handle
	right, bottom := r.Right(), r.Bottom()

	w, ht := r.Width, r.Height
	if h.east() {
		w = r.Width + dx
	}
	if h.west() {
		w = r.Width - dx
	}
	if h.south() {
		ht = r.Height + dy
	}
	if h.north() {
		ht = r.Height - dy
	}
	if s.cfg.ClampToBounds {
		if h.east() && s.displayW > 0 {
			w = math.Min(w, s.displayW-r.X)
		}
		if h.south() && s.displayH > 0 {
			ht = math.Min(ht, s.displayH-r.Y)
		}
	}
	// an edge dragged past the origin stops there
	if h.west() {
		w = math.Min(w, right)
	}
	if h.north() {
		ht = math.Min(ht, bottom)
	}
	// with an aspect the derived side must fit too
	if s.aspect > 0 && !h.vertical() {
		if h.north() {
			w = math.Min(w, bottom*s.aspect)
		}
		if h.south() && s.cfg.ClampToBounds && s.displayH > 0 {
			w = math.Min(w, (s.displayH-r.Y)*s.aspect)
		}
	}

	w, ht = s.constrain(w, ht, h.vertical())

	x, y := r.X, r.Y
	if h.west() {
		x = math.Max(0, right-w)
	}
	if h.north() {
		y = math.Max(0, bottom-ht)
	}
	s.region = types.Rect{X: x, Y: y, Width: w, Height: ht}
}

// constrain floors both dimensions at MinSize and, with an aspect ratio,
// derives the secondary dimension from the primary one.
func (s *Selector) constrain(w, h float64, heightPrimary bool) (float64, float64) {
	min := s.cfg.MinSize
	if s.aspect <= 0 {
		return math.Max(w, min), math.Max(h, min)
	}
	if heightPrimary {
		h = math.Max(h, math.Max(min, min/s.aspect))
		return h * s.aspect, h
	}
	w = math.Max(w, math.Max(min, min*s.aspect))
	return w, w / s.aspect
}

func (s *Selector) clampOrigin(r types.Rect) types.Rect {
	if s.cfg.ClampToBounds {
		if s.displayW > 0 {
			r.X = math.Min(r.X, s.displayW-r.Width)
		}
		if s.displayH > 0 {
			r.Y = math.Min(r.Y, s.displayH-r.Height)
		}
	}
	r.X = math.Max(0, r.X)
	r.Y = math.Max(0, r.Y)
	return r
}

func (s *Selector) defaultRegion() types.Rect {
	if s.aspect > 0 {
		side := s.cfg.AspectFill * math.Min(s.displayW, s.displayH)
		w, h := side, side
		if s.aspect >= 1 {
			h = side / s.aspect
		} else {
			w = side * s.aspect
		}
		w, h = s.constrain(w, h, false)
		return types.Rect{
			X:      math.Max(0, (s.displayW-w)/2),
			Y:      math.Max(0, (s.displayH-h)/2),
			Width:  w,
			Height: h,
		}
	}

	size := math.Max(s.cfg.DefaultSize, s.cfg.MinSize)
	x, y := s.cfg.DefaultOffset, s.cfg.DefaultOffset
	if s.cfg.CenterDefault {
		x = math.Max(0, (s.displayW-size)/2)
		y = math.Max(0, (s.displayH-size)/2)
	}
	return types.Rect{X: x, Y: y, Width: size, Height: size}
}

func sanitizeAspect(a float64) float64 {
	if a <= 0 || math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	return a
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func finiteOr(v, fallback float64) float64 {
	if finite(v) {
		return v
	}
	return fallback
}
