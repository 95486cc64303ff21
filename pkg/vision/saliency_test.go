package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/toolbox/pkg/client"
	"github.com/menta2k/toolbox/pkg/detection"
	"github.com/menta2k/toolbox/pkg/types"
)

// black canvas with a white square at [120,170)x[30,80)
func squareImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			c := color.NRGBA{0, 0, 0, 255}
			if x >= 120 && x < 170 && y >= 30 && y < 80 {
				c = color.NRGBA{255, 255, 255, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func flatImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 90, 120, 200, 255
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNewLocatorDefaults(t *testing.T) {
	l := NewLocator(Config{})
	assert.Equal(t, DefaultConfig(), l.cfg)

	l = NewLocator(Config{AnalysisSize: 64, EdgeWeight: 1})
	assert.Equal(t, 64, l.cfg.AnalysisSize)
	assert.Equal(t, 1.0, l.cfg.EdgeWeight)
	assert.Zero(t, l.cfg.ContrastWeight)
}

func TestMap(t *testing.T) {
	l := NewLocator(DefaultConfig())

	s := l.Map(flatImage(400, 200))
	assert.Equal(t, 128, s.Width)
	assert.Equal(t, 64, s.Height)
	for _, v := range s.Values {
		assert.InDelta(t, 0, v, 1e-9)
	}

	s = l.Map(squareImage())
	assert.Equal(t, 128, s.Width)
	// inside the square is more salient than the background
	assert.Greater(t, s.At(92, 35), s.At(20, 100))
	// the square border carries an edge term on top of the contrast
	border := 0.0
	for x := 74; x <= 80; x++ {
		border = max(border, s.At(x, 35))
	}
	assert.Greater(t, border, s.At(92, 35))
}

func TestMapSmallImageKeepsSize(t *testing.T) {
	s := NewLocator(DefaultConfig()).Map(flatImage(40, 30))
	assert.Equal(t, 40, s.Width)
	assert.Equal(t, 30, s.Height)
}

func TestLocate(t *testing.T) {
	box, score := NewLocator(DefaultConfig()).Locate(squareImage())
	require.Greater(t, score, 0.0)

	assert.InDelta(t, 0.25, box.W, 1e-9)
	assert.InDelta(t, 0.25, box.H, 1e-9)
	assert.InDelta(t, 0.725, box.X+box.W/2, 0.05)
	assert.InDelta(t, 0.275, box.Y+box.H/2, 0.05)
}

func TestLocateFlat(t *testing.T) {
	box, score := NewLocator(DefaultConfig()).Locate(flatImage(300, 300))
	assert.Equal(t, FlatBox, box)
	assert.Zero(t, score)
}

func TestLocateSkipsTinyWindows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowScales = []float64{0.1, 0.5}
	box, _ := NewLocator(cfg).Locate(squareImage())
	assert.InDelta(t, 0.5, box.W, 1e-9)
}

func TestClientComplete(t *testing.T) {
	c := NewClient(nil)
	assert.Equal(t, client.BackendLocal, c.Name())

	raw, err := c.Complete(context.Background(), "", "", encodePNG(t, squareImage()))
	require.NoError(t, err)
	var det types.Detection
	require.NoError(t, json.Unmarshal([]byte(raw), &det))
	assert.Equal(t, "salient region", det.Primary.Label)
	assert.Greater(t, det.Primary.Confidence, 0.0)
	assert.LessOrEqual(t, det.Primary.Confidence, 1.0)
	assert.Equal(t, []string{"saliency"}, det.Tags)

	raw, err = c.Complete(context.Background(), "", "", encodePNG(t, flatImage(50, 50)))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &det))
	assert.Equal(t, "center", det.Primary.Label)
	assert.Equal(t, FlatBox, det.Primary.Box)
}

func TestClientCompleteErrors(t *testing.T) {
	c := NewClient(nil)
	_, err := c.Complete(context.Background(), "", "", []byte("not an image"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Complete(ctx, "", "", encodePNG(t, squareImage()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientThroughDetector(t *testing.T) {
	d := detection.NewDetector(NewClient(nil), "")
	det, err := d.Detect(context.Background(), encodePNG(t, squareImage()))
	require.NoError(t, err)
	assert.False(t, det.Fallback)
	assert.Equal(t, "salient region", det.Primary.Label)
	assert.InDelta(t, 0.725, det.Primary.Box.X+det.Primary.Box.W/2, 0.05)
}
