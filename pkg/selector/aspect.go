package selector

import (
	"fmt"
	"strconv"
	"strings"
)

// AspectRatio represents a named width:height constraint
type AspectRatio struct {
	Width  int
	Height int
	Name   string
}

// Ratio returns width/height, or 0 for the free-form ratio.
func (a AspectRatio) Ratio() float64 {
	if a.Width <= 0 || a.Height <= 0 {
		return 0
	}
	return float64(a.Width) / float64(a.Height)
}

func (a AspectRatio) String() string {
	if a.Ratio() == 0 {
		return a.Name
	}
	return fmt.Sprintf("%s (%d:%d)", a.Name, a.Width, a.Height)
}

// Common aspect ratios
var (
	Free       = AspectRatio{0, 0, "free"}
	Square     = AspectRatio{1, 1, "square"}
	Portrait   = AspectRatio{3, 4, "portrait"}
	Landscape  = AspectRatio{4, 3, "landscape"}
	Widescreen = AspectRatio{16, 9, "widescreen"}
	Instagram  = AspectRatio{4, 5, "instagram"}
	Story      = AspectRatio{9, 16, "story"}
)

// CommonAspectRatios returns the ratios offered by the crop tools, free form first
func CommonAspectRatios() []AspectRatio {
	return []AspectRatio{Free, Square, Portrait, Landscape, Widescreen, Instagram, Story}
}

// ParseAspect accepts a ratio name ("square"), a "W:H" pair or a decimal ratio.
// An empty string or "free" yields the free-form ratio.
func ParseAspect(s string) (AspectRatio, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Free, nil
	}
	for _, a := range CommonAspectRatios() {
		if a.Name == s {
			return a, nil
		}
	}
	if w, h, ok := strings.Cut(s, ":"); ok {
		wi, err1 := strconv.Atoi(strings.TrimSpace(w))
		hi, err2 := strconv.Atoi(strings.TrimSpace(h))
		if err1 != nil || err2 != nil || wi <= 0 || hi <= 0 {
			return Free, fmt.Errorf("invalid aspect ratio %q", s)
		}
		return AspectRatio{wi, hi, s}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return Free, fmt.Errorf("invalid aspect ratio %q", s)
	}
	// keep three decimals of precision as an integer pair
	return AspectRatio{int(f*1000 + 0.5), 1000, s}, nil
}
