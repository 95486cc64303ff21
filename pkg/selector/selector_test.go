package selector

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/toolbox/pkg/types"
)

const tol = 1e-9

func TestNew(t *testing.T) {
	s := New(DefaultConfig())
	require.NotNil(t, s)

	assert.Equal(t, types.Rect{X: 50, Y: 50, Width: 200, Height: 200}, s.Region())
	assert.False(t, s.Completed())
	assert.False(t, s.Active())
	assert.Zero(t, s.Aspect())
}

func TestNewNormalizesConfig(t *testing.T) {
	s := New(Config{})
	cfg := s.Config()
	assert.Equal(t, 50.0, cfg.MinSize)
	assert.Equal(t, 200.0, cfg.DefaultSize)
	assert.Equal(t, 0.9, cfg.AspectFill)
}

func TestInitializeFreeForm(t *testing.T) {
	s := New(DefaultConfig())
	r := s.Initialize(800, 600, 0)
	assert.Equal(t, types.Rect{X: 50, Y: 50, Width: 200, Height: 200}, r)

	cfg := DefaultConfig()
	cfg.CenterDefault = true
	s = New(cfg)
	r = s.Initialize(800, 600, 0)
	assert.Equal(t, types.Rect{X: 300, Y: 200, Width: 200, Height: 200}, r)
}

func TestInitializeWithAspect(t *testing.T) {
	tests := []struct {
		name   string
		aspect float64
		want   types.Rect
	}{
		{"square", 1, types.Rect{X: 130, Y: 30, Width: 540, Height: 540}},
		{"landscape", 2, types.Rect{X: 130, Y: 165, Width: 540, Height: 270}},
		{"portrait", 0.5, types.Rect{X: 265, Y: 30, Width: 270, Height: 540}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(DefaultConfig())
			got := s.Initialize(800, 600, tt.aspect)
			assert.True(t, got.ApproxEqual(tt.want, tol), "got %+v want %+v", got, tt.want)
			assert.InDelta(t, tt.aspect, got.Width/got.Height, tol)
		})
	}
}

func TestInitializeTinyDisplayFloors(t *testing.T) {
	s := New(DefaultConfig())
	r := s.Initialize(20, 20, 1)
	assert.GreaterOrEqual(t, r.Width, 50.0)
	assert.GreaterOrEqual(t, r.Height, 50.0)
	assert.GreaterOrEqual(t, r.X, 0.0)
	assert.GreaterOrEqual(t, r.Y, 0.0)
}

func TestMoveIsIncremental(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 0)

	s.BeginMove(Point{100, 100})
	s.PointerMove(Point{110, 105})
	s.PointerMove(Point{120, 110})
	r := s.Region()
	assert.Equal(t, 70.0, r.X)
	assert.Equal(t, 60.0, r.Y)
	assert.Equal(t, 200.0, r.Width)
}

func TestMoveClampsLowerBoundOnly(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(300, 300, 0)

	s.BeginMove(Point{0, 0})
	r := s.PointerMove(Point{-500, -500})
	assert.Equal(t, 0.0, r.X)
	assert.Equal(t, 0.0, r.Y)

	r = s.PointerMove(Point{1000, 1000})
	assert.Equal(t, 1500.0, r.X, "no upper clamp by default")
}

func TestMoveClampToBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClampToBounds = true
	s := New(cfg)
	s.Initialize(300, 300, 0)

	s.BeginMove(Point{0, 0})
	r := s.PointerMove(Point{1000, 1000})
	assert.Equal(t, 100.0, r.X)
	assert.Equal(t, 100.0, r.Y)
}

func TestPointerMoveWithoutGesture(t *testing.T) {
	s := New(DefaultConfig())
	before := s.Region()
	s.PointerMove(Point{500, 500})
	assert.Equal(t, before, s.Region())
}

func TestResizeSouthEastKeepsOrigin(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 0)

	s.BeginResize(HandleSE, Point{250, 250})
	r := s.PointerMove(Point{300, 280})
	assert.Equal(t, types.Rect{X: 50, Y: 50, Width: 250, Height: 230}, r)

	r = s.PointerMove(Point{0, 0})
	assert.Equal(t, 50.0, r.X)
	assert.Equal(t, 50.0, r.Y)
	assert.Equal(t, 50.0, r.Width)
	assert.Equal(t, 50.0, r.Height)
}

func TestResizeNorthWestKeepsOppositeCorner(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 0)
	before := s.Region()

	s.BeginResize(HandleNW, Point{50, 50})
	for _, p := range []Point{{60, 70}, {20, 30}, {240, 240}, {45, 10}} {
		r := s.PointerMove(p)
		assert.InDelta(t, before.Right(), r.Right(), tol)
		assert.InDelta(t, before.Bottom(), r.Bottom(), tol)
	}
}

func TestResizeWestStopsAtOrigin(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 0)

	s.BeginResize(HandleW, Point{50, 100})
	r := s.PointerMove(Point{-400, 100})
	assert.Equal(t, 0.0, r.X)
	assert.Equal(t, 250.0, r.Width)
}

func TestResizeWithAspect(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 0)
	s.SetAspect(2)
	s.Place(types.Rect{X: 100, Y: 100, Width: 200, Height: 100})

	s.BeginResize(HandleE, Point{300, 150})
	r := s.PointerMove(Point{340, 190})
	assert.InDelta(t, 240.0, r.Width, tol)
	assert.InDelta(t, 120.0, r.Height, tol)

	s.EndGesture()
	s.BeginResize(HandleS, Point{0, 0})
	r = s.PointerMove(Point{0, 30})
	assert.InDelta(t, 150.0, r.Height, tol)
	assert.InDelta(t, 300.0, r.Width, tol)

	// floor respects the ratio: height must stay >= MinSize
	r = s.PointerMove(Point{0, -1000})
	assert.InDelta(t, 50.0, r.Height, tol)
	assert.InDelta(t, 100.0, r.Width, tol)
}

func TestUnknownHandleIgnored(t *testing.T) {
	s := New(DefaultConfig())
	s.BeginResize(Handle("x"), Point{})
	assert.False(t, s.Active())
}

func TestResizeHandleIsCaseInsensitive(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 0)

	s.BeginResize(Handle("SE"), Point{250, 250})
	require.True(t, s.Active())
	r := s.PointerMove(Point{300, 300})
	assert.Equal(t, types.Rect{X: 50, Y: 50, Width: 250, Height: 250}, r)
}

func TestResizeNorthWestWithAspectKeepsOppositeCorner(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 0.5)
	before := s.Place(types.Rect{X: 10, Y: 10, Width: 100, Height: 200})
	require.Equal(t, types.Rect{X: 10, Y: 10, Width: 100, Height: 200}, before)

	s.BeginResize(HandleNW, Point{10, 10})
	r := s.PointerMove(Point{-40, 5})
	assert.InDelta(t, 5, r.X, tol)
	assert.InDelta(t, 0, r.Y, tol)
	assert.InDelta(t, before.Right(), r.Right(), tol)
	assert.InDelta(t, before.Bottom(), r.Bottom(), tol)
	assert.InDelta(t, 0.5, r.Width/r.Height, tol)

	// a northeast drag upward stops when the top reaches the origin
	s.EndGesture()
	s.BeginResize(HandleNE, Point{110, 0})
	r = s.PointerMove(Point{200, -80})
	assert.InDelta(t, 0, r.Y, tol)
	assert.InDelta(t, before.Bottom(), r.Bottom(), tol)
	assert.InDelta(t, 0.5, r.Width/r.Height, tol)
}

func TestEndGestureCompletesAndIsIdempotent(t *testing.T) {
	s := New(DefaultConfig())
	s.EndGesture()
	assert.False(t, s.Completed(), "ending without a gesture commits nothing")

	s.BeginMove(Point{})
	s.PointerMove(Point{5, 5})
	s.EndGesture()
	s.EndGesture()
	assert.True(t, s.Completed())
	assert.False(t, s.Active())
}

func TestAcceptCompletes(t *testing.T) {
	s := New(DefaultConfig())
	s.Accept()
	assert.True(t, s.Completed())

	s.Initialize(100, 100, 0)
	assert.False(t, s.Completed(), "initialize clears completion")
}

func TestSetAspectDoesNotReshapeByDefault(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 0)
	before := s.Region()
	s.SetAspect(16.0 / 9.0)
	assert.Equal(t, before, s.Region())

	cfg := DefaultConfig()
	cfg.ReshapeOnAspect = true
	s = New(cfg)
	s.Initialize(800, 600, 0)
	s.SetAspect(2)
	r := s.Region()
	assert.InDelta(t, 200.0, r.Width, tol)
	assert.InDelta(t, 100.0, r.Height, tol)
}

func TestPlaceFitsAspectInsideBox(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 1)
	r := s.Place(types.Rect{X: 100, Y: 100, Width: 400, Height: 200})
	assert.True(t, r.ApproxEqual(types.Rect{X: 200, Y: 100, Width: 200, Height: 200}, tol), "%+v", r)
	assert.True(t, s.Completed())
}

func TestPlaceClampsInvalidInput(t *testing.T) {
	s := New(DefaultConfig())
	r := s.Place(types.Rect{X: -10, Y: -20, Width: 0, Height: 5})
	assert.Equal(t, types.Rect{X: 0, Y: 0, Width: 50, Height: 50}, r)
}

func TestPlaceKeepsCurrentValueForNonFiniteFields(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 0) // {50,50,200,200}

	r := s.Place(types.Rect{X: math.NaN(), Y: 30, Width: math.Inf(1), Height: 120})
	assert.Equal(t, types.Rect{X: 50, Y: 30, Width: 200, Height: 120}, r)

	r = s.Place(types.Rect{X: 10, Y: math.Inf(-1), Width: 80, Height: math.NaN()})
	assert.Equal(t, types.Rect{X: 10, Y: 30, Width: 80, Height: 120}, r)

	s.SetAspect(1)
	r = s.Place(types.Rect{X: math.NaN(), Y: math.NaN(), Width: math.NaN(), Height: math.NaN()})
	assert.False(t, math.IsNaN(r.X+r.Y+r.Width+r.Height))
	assert.InDelta(t, 1, r.Width/r.Height, tol)
}

func TestScale(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 0) // {50,50,200,200}

	assert.Equal(t, types.Rect{X: 25, Y: 25, Width: 100, Height: 100}, s.Scale(0.5, 0.5))
	assert.Equal(t, types.Rect{X: 25, Y: 25, Width: 100, Height: 100}, s.Scale(math.NaN(), 1))
	assert.Equal(t, types.Rect{X: 25, Y: 25, Width: 100, Height: 100}, s.Scale(0, 1))

	// shrinking below the floor keeps the minimum size
	r := s.Scale(0.1, 0.1)
	assert.Equal(t, 50.0, r.Width)
	assert.Equal(t, 50.0, r.Height)
	assert.False(t, s.Completed())
}

func TestHitTest(t *testing.T) {
	s := New(DefaultConfig())
	s.Initialize(800, 600, 0) // {50,50,200,200}

	tests := []struct {
		p      Point
		handle Handle
		move   bool
	}{
		{Point{50, 50}, HandleNW, false},
		{Point{250, 250}, HandleSE, false},
		{Point{250, 52}, HandleNE, false},
		{Point{150, 250}, HandleS, false},
		{Point{48, 150}, HandleW, false},
		{Point{150, 150}, "", true},
		{Point{400, 400}, "", false},
	}
	for _, tt := range tests {
		h, move := s.HitTest(tt.p, 4)
		assert.Equal(t, tt.handle, h, "point %+v", tt.p)
		assert.Equal(t, tt.move, move, "point %+v", tt.p)
	}
}

func TestParseHandle(t *testing.T) {
	h, ok := ParseHandle(" NE ")
	assert.True(t, ok)
	assert.Equal(t, HandleNE, h)

	_, ok = ParseHandle("north")
	assert.False(t, ok)
}

func TestParseAspect(t *testing.T) {
	tests := []struct {
		in      string
		ratio   float64
		wantErr bool
	}{
		{"", 0, false},
		{"free", 0, false},
		{"square", 1, false},
		{"16:9", 16.0 / 9.0, false},
		{"1.5", 1.5, false},
		{"0:3", 0, true},
		{"wide", 0, true},
	}
	for _, tt := range tests {
		a, err := ParseAspect(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.ratio, a.Ratio(), 1e-3, tt.in)
	}
}

// TestGestureInvariants drives random gesture sequences and checks the floor,
// non-negativity and fixed-edge properties after every pointer move.
func TestGestureInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	handles := Handles()
	nonFinite := []float64{math.NaN(), math.Inf(1), math.Inf(-1)}

	for _, aspect := range []float64{0, 1, 16.0 / 9.0, 0.75} {
		s := New(DefaultConfig())
		s.Initialize(640, 480, aspect)
		p := Point{}

		for i := 0; i < 2000; i++ {
			if i%20 == 0 {
				s.EndGesture()
				if rng.Intn(2) == 0 {
					s.BeginMove(p)
				} else {
					s.BeginResize(handles[rng.Intn(len(handles))], p)
				}
			}
			before := s.Region()
			if i%7 == 3 {
				bad := Point{nonFinite[rng.Intn(3)], p.Y}
				if rng.Intn(2) == 0 {
					bad = Point{p.X, nonFinite[rng.Intn(3)]}
				}
				require.Equal(t, before, s.PointerMove(bad))
			}
			p = Point{p.X + rng.Float64()*200 - 100, p.Y + rng.Float64()*200 - 100}
			r := s.PointerMove(p)

			require.GreaterOrEqual(t, r.Width, 50.0)
			require.GreaterOrEqual(t, r.Height, 50.0)
			require.GreaterOrEqual(t, r.X, 0.0)
			require.GreaterOrEqual(t, r.Y, 0.0)
			if aspect > 0 {
				require.InDelta(t, aspect, r.Width/r.Height, 1e-6)
			}
			if s.handle == HandleSE {
				require.Equal(t, before.X, r.X)
				require.Equal(t, before.Y, r.Y)
			}
			if s.handle == HandleNW {
				require.InDelta(t, before.Right(), r.Right(), 1e-6)
				require.InDelta(t, before.Bottom(), r.Bottom(), 1e-6)
			}
		}
	}
}

func BenchmarkPointerMove(b *testing.B) {
	s := New(DefaultConfig())
	s.Initialize(1920, 1080, 0)
	s.BeginResize(HandleSE, Point{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.PointerMove(Point{float64(i % 100), float64(i % 50)})
	}
}
