// Package detection asks a vision model where the main subject of an image is
// and turns the answer into a starting region for the crop selector.
package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/menta2k/toolbox/pkg/client"
	"github.com/menta2k/toolbox/pkg/raster"
	"github.com/menta2k/toolbox/pkg/types"
)

// DefaultPrompt asks for the primary subject box as normalized JSON
const DefaultPrompt = `You are an image subject locator for a cropping tool.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
  },
  "description": "short neutral sentence (max 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

RULES
- Coordinates are normalized to [0,1] (NOT pixels); x,y is the top-left corner.
- The box should tightly include the visually dominant subject.
- Tags: lowercase, concise, no duplicates.
- If no subject is found, return the centered box {"x":0.25,"y":0.25,"w":0.5,"h":0.5} with label "none".
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// FallbackBox is used whenever the model reply cannot be used
var FallbackBox = types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}

// Detector handles subject detection using a vision model
type Detector struct {
	client client.VisionClient
	model  string
	prompt string
	log    zerolog.Logger
}

// Option configures a Detector
type Option func(*Detector)

// WithPrompt replaces DefaultPrompt
func WithPrompt(p string) Option {
	return func(d *Detector) {
		if strings.TrimSpace(p) != "" {
			d.prompt = p
		}
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// NewDetector creates a new detector with a vision client
func NewDetector(c client.VisionClient, model string, opts ...Option) *Detector {
	d := &Detector{client: c, model: model, prompt: DefaultPrompt, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect sends image (JPEG or PNG bytes) to the model and parses the reply.
// Unusable replies produce a centered fallback detection, not an error.
func (d *Detector) Detect(ctx context.Context, image []byte) (*types.Detection, error) {
	raw, err := d.client.Complete(ctx, d.model, d.prompt, image)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.client.Name(), err)
	}
	det := parseDetection(raw)
	det.Primary.Box = normalizeBox(det.Primary.Box)
	det.Tags = normalizeTags(det.Tags)

	d.log.Debug().
		Str("backend", d.client.Name()).
		Str("model", d.model).
		Str("label", det.Primary.Label).
		Float64("confidence", det.Primary.Confidence).
		Bool("fallback", det.Fallback).
		Msg("subject detected")
	return det, nil
}

// SuggestRegion detects the subject and maps its box into the display space of t.
// The result is meant for Selector.Place, which enforces the region invariants.
func (d *Detector) SuggestRegion(ctx context.Context, image []byte, t raster.Transform) (types.Rect, *types.Detection, error) {
	det, err := d.Detect(ctx, image)
	if err != nil {
		return types.Rect{}, nil, err
	}
	return t.BoxToDisplay(det.Primary.Box), det, nil
}

func fallback(reason string) *types.Detection {
	return &types.Detection{
		Primary:     types.Subject{Label: "none", Confidence: 0, Box: FallbackBox},
		Description: reason,
		Fallback:    true,
	}
}

// parseDetection parses the JSON reply of the vision model
func parseDetection(raw string) *types.Detection {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return fallback("model returned non-JSON response")
	}
	var det types.Detection
	if err := json.Unmarshal([]byte(raw), &det); err != nil {
		return fallback("failed to parse model response")
	}
	if det.Primary.Box.W <= 0 || det.Primary.Box.H <= 0 {
		det.Primary.Box = FallbackBox
		det.Fallback = true
	}
	return &det
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")
	raw = reBlock.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox keeps the box inside the unit square
func normalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	w := clamp(b.W, 0, 1-x)
	h := clamp(b.H, 0, 1-y)
	if w <= 0 || h <= 0 {
		return FallbackBox
	}
	return types.Box{X: x, Y: y, W: w, H: h}
}

// normalizeTags ensures tags are cleaned and limited to 5 entries
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}
