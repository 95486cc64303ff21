package cli

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/toolbox/pkg/types"
)

func writeTestImage(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	for y := h / 4; y < 3*h/4; y++ {
		for x := w / 4; x < 3*w/4; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 40, 255})
		}
	}
	path := filepath.Join(dir, "photo.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	root := NewRootCommand("test")
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func pngBounds(t *testing.T, path string) image.Rectangle {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img.Bounds()
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "toolbox test\n", out)
}

func TestCropCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, 1000, 500)
	outDir := filepath.Join(dir, "out")

	t.Run("scaled display", func(t *testing.T) {
		out, err := run(t, "crop", src, "-o", outDir, "--display", "500x250",
			"--x", "100", "--y", "50", "--width", "100", "--height", "50")
		require.NoError(t, err)
		assert.Contains(t, out, "wrote "+filepath.Join(outDir, "cropped-photo.png"))
		assert.Contains(t, out, "200x100")
		assert.Equal(t, image.Rect(0, 0, 200, 100), pngBounds(t, filepath.Join(outDir, "cropped-photo.png")))
	})

	t.Run("default region", func(t *testing.T) {
		d := t.TempDir()
		_, err := run(t, "crop", src, "-o", d)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 200, 200), pngBounds(t, filepath.Join(d, "cropped-photo.png")))
	})

	t.Run("preview", func(t *testing.T) {
		d := t.TempDir()
		_, err := run(t, "crop", src, "-o", d, "--preview", "--display", "500x250")
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 500, 250), pngBounds(t, filepath.Join(d, "preview-photo.png")))
	})

	t.Run("incomplete region", func(t *testing.T) {
		_, err := run(t, "crop", src, "-o", t.TempDir(), "--x", "10")
		assert.ErrorContains(t, err, "--width and --height")
	})

	t.Run("bad display", func(t *testing.T) {
		_, err := run(t, "crop", src, "-o", t.TempDir(), "--display", "wide")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := run(t, "crop", filepath.Join(dir, "nope.png"), "-o", t.TempDir())
		assert.Error(t, err)
	})
}

func TestIconsCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, 120, 80)

	t.Run("separate files", func(t *testing.T) {
		d := t.TempDir()
		_, err := run(t, "icons", src, "-o", d, "--sizes", "32,16")
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 16, 16), pngBounds(t, filepath.Join(d, "icon-16x16.png")))
		assert.Equal(t, image.Rect(0, 0, 32, 32), pngBounds(t, filepath.Join(d, "icon-32x32.png")))
	})

	t.Run("zip", func(t *testing.T) {
		d := t.TempDir()
		out, err := run(t, "icons", src, "-o", d, "--sizes", "16,32,48", "--zip")
		require.NoError(t, err)
		assert.Contains(t, out, "3 icons")

		zr, err := zip.OpenReader(filepath.Join(d, "photo-icons.zip"))
		require.NoError(t, err)
		defer zr.Close()
		assert.Len(t, zr.File, 3)
	})

	t.Run("contain fit", func(t *testing.T) {
		d := t.TempDir()
		_, err := run(t, "icons", src, "-o", d, "--sizes", "64", "--fit", "contain")
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 64, 64), pngBounds(t, filepath.Join(d, "icon-64x64.png")))
	})

	t.Run("size outside palette", func(t *testing.T) {
		_, err := run(t, "icons", src, "-o", t.TempDir(), "--sizes", "20")
		assert.Error(t, err)
	})

	t.Run("zip and ico together", func(t *testing.T) {
		_, err := run(t, "icons", src, "-o", t.TempDir(), "--zip", "--ico")
		assert.Error(t, err)
	})
}

func TestConvertAndRemoveBgCommands(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, 40, 40)

	d := t.TempDir()
	_, err := run(t, "convert", src, "-o", d, "--to", "jpeg")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(d, "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	_, err = run(t, "convert", src, "-o", d, "--to", "psd")
	assert.Error(t, err)

	_, err = run(t, "remove-bg", src, "-o", d)
	require.NoError(t, err)
	f, err := os.Open(filepath.Join(d, "nobg-photo.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Zero(t, a)
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolbox.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = run(t, "config", "init", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "config", "init", path, "--force")
	require.NoError(t, err)

	out, err = run(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "min_size: 50")
	assert.Contains(t, out, "backend: draw")
}

func TestSuggestCommand(t *testing.T) {
	reply, err := json.Marshal(map[string]any{
		"model":   "llava",
		"message": map[string]string{"role": "assistant", "content": `{"primary":{"label":"logo","confidence":0.9,"box":{"x":0.25,"y":0.25,"w":0.5,"h":0.5}},"description":"a logo","tags":["logo"]}`},
		"done":    true,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(reply)
	}))
	defer srv.Close()

	dir := t.TempDir()
	src := writeTestImage(t, dir, 400, 200)
	t.Setenv("TOOLBOX_VISION_URL", srv.URL)

	out, err := run(t, "suggest", src, "-o", dir, "--crop")
	require.NoError(t, err)

	var got suggestOutput
	require.NoError(t, json.NewDecoder(bytes.NewReader([]byte(out))).Decode(&got))
	assert.Equal(t, types.Rect{X: 100, Y: 50, Width: 200, Height: 100}, got.Region)
	assert.Equal(t, [2]float64{400, 200}, got.Display)
	assert.Equal(t, "logo", got.Detection.Primary.Label)
	assert.Equal(t, image.Rect(0, 0, 200, 100), pngBounds(t, filepath.Join(dir, "cropped-photo.png")))
}

func TestSuggestCommandLocal(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, 400, 200)
	t.Setenv("TOOLBOX_VISION_BACKEND", "local")

	out, err := run(t, "suggest", src)
	require.NoError(t, err)

	var got suggestOutput
	require.NoError(t, json.NewDecoder(bytes.NewReader([]byte(out))).Decode(&got))
	assert.Equal(t, "salient region", got.Detection.Primary.Label)
	assert.False(t, got.Detection.Fallback)
	assert.Positive(t, got.Region.Width)
}

func TestParseDisplay(t *testing.T) {
	w, h, err := parseDisplay("500x250")
	require.NoError(t, err)
	assert.Equal(t, 500.0, w)
	assert.Equal(t, 250.0, h)

	w, h, err = parseDisplay("")
	require.NoError(t, err)
	assert.Zero(t, w+h)

	for _, bad := range []string{"500", "0x10", "ax2", "-1x5"} {
		_, _, err := parseDisplay(bad)
		assert.Error(t, err, bad)
	}
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "photo.jpg", sourceName("/tmp/a/photo.jpg"))
	assert.Equal(t, "photo.jpg", sourceName("https://example.com/img/photo.jpg?w=200"))
}
