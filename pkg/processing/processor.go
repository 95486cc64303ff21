package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrNotImage is returned for input that no registered decoder accepts.
	ErrNotImage          = errors.New("not a decodable image")
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// MaxDownloadSize caps images fetched over HTTP.
const MaxDownloadSize = 64 << 20

// Format is an output encoding
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpg"
	WebP Format = "webp"
	BMP  Format = "bmp"
	GIF  Format = "gif"
	TIFF Format = "tiff"
)

// Formats lists every supported output format
func Formats() []Format {
	return []Format{PNG, JPEG, WebP, BMP, GIF, TIFF}
}

// ParseFormat maps a name or extension ("jpeg", ".tif") to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	case "bmp":
		return BMP, nil
	case "gif":
		return GIF, nil
	case "tif", "tiff":
		return TIFF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// HasAlpha reports whether the format can store transparency
func (f Format) HasAlpha() bool {
	switch f {
	case JPEG, BMP:
		return false
	}
	return true
}

// MimeType returns the content type of the format
func (f Format) MimeType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case TIFF:
		return "image/tiff"
	}
	return "image/" + string(f)
}

// Processor handles image loading, encoding and conversion
type Processor struct {
	client *http.Client
	log    zerolog.Logger
}

// Option configures a Processor
type Option func(*Processor)

// WithHTTPClient sets the client used by LoadImageFromURL
func WithHTTPClient(c *http.Client) Option {
	return func(p *Processor) {
		if c != nil {
			p.client = c
		}
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// NewProcessor creates a new image processor
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadImageFromURL downloads and decodes an image
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "toolbox/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %s", resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: URL content type is %q", ErrNotImage, contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) > MaxDownloadSize {
		return nil, fmt.Errorf("image larger than %d bytes", MaxDownloadSize)
	}
	p.log.Debug().Str("url", imageURL).Int("bytes", len(data)).Msg("downloaded image")
	return p.DecodeBytes(data)
}

// LoadImage loads an image from a file path, honouring EXIF orientation
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(ctx, source)
	}
	return p.LoadImage(source)
}

// Decode reads r fully and decodes it
func (p *Processor) Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return p.DecodeBytes(data)
}

// DecodeBytes decodes data with the registered decoders, falling back to the
// libwebp decoder for WebP variants the pure Go one rejects
func (p *Processor) DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrNotImage)
	}
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, ErrNotImage
}

// Encode writes img to w in the given format. quality applies to JPEG and
// lossy WebP.
func (p *Processor) Encode(w io.Writer, img image.Image, format Format, quality int, lossless bool) error {
	if quality < 1 || quality > 100 {
		quality = 90
	}
	switch format {
	case WebP:
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case PNG:
		return imaging.Encode(w, img, imaging.PNG)
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case BMP:
		return imaging.Encode(w, img, imaging.BMP)
	case GIF:
		return imaging.Encode(w, img, imaging.GIF)
	case TIFF:
		return imaging.Encode(w, img, imaging.TIFF)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// EncodeBytes is Encode into memory
func (p *Processor) EncodeBytes(img image.Image, format Format, quality int, lossless bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf, img, format, quality, lossless); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path string, format Format, quality int, lossless bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Encode(f, img, format, quality, lossless); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Convert prepares img for the target format. Formats without an alpha
// channel get transparency flattened onto white.
func (p *Processor) Convert(img image.Image, target Format) image.Image {
	if target.HasAlpha() {
		return img
	}
	return Flatten(img, color.White)
}

// ConvertBytes decodes, converts and re-encodes data
func (p *Processor) ConvertBytes(data []byte, target Format, quality int) ([]byte, error) {
	img, err := p.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	return p.EncodeBytes(p.Convert(img, target), target, quality, false)
}

// Flatten composites img over an opaque background
func Flatten(img image.Image, bg color.Color) *image.NRGBA {
	b := img.Bounds()
	out := imaging.New(b.Dx(), b.Dy(), bg)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}

// PrepareImageForModel downsizes img to maxDim and encodes it as JPEG for a
// vision model request
func (p *Processor) PrepareImageForModel(img image.Image, maxDim, quality int) ([]byte, error) {
	if maxDim > 0 {
		b := img.Bounds()
		if b.Dx() > maxDim || b.Dy() > maxDim {
			img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
		}
	}
	return p.EncodeBytes(Flatten(img, color.White), JPEG, quality, false)
}
