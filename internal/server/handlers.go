package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/menta2k/toolbox/internal/utils"
	"github.com/menta2k/toolbox/pkg/bundle"
	"github.com/menta2k/toolbox/pkg/preview"
	"github.com/menta2k/toolbox/pkg/processing"
	"github.com/menta2k/toolbox/pkg/raster"
	"github.com/menta2k/toolbox/pkg/selector"
	"github.com/menta2k/toolbox/pkg/session"
	"github.com/menta2k/toolbox/pkg/types"
)

var errBadRequest = errors.New("bad request")

const maxMemory = 8 << 20

type upload struct {
	name string
	file multipart.File
}

// readUpload parses the multipart form and opens the "file" part.
func readUpload(r *http.Request) (*upload, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("upload too large: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing file field", errBadRequest)
	}
	return &upload{name: hdr.Filename, file: f}, nil
}

// formFloat reads an optional numeric form field.
func formFloat(r *http.Request, key string) (float64, bool, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", errBadRequest, key, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%w: %s must be a finite number", errBadRequest, key)
	}
	return f, true, nil
}

func formBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.FormValue(key))
	return b
}

// formRegion returns the region given by x, y, width and height. All four
// must be present for ok to be true.
func formRegion(r *http.Request) (types.Rect, bool, error) {
	var vals [4]float64
	present := 0
	for i, key := range []string{"x", "y", "width", "height"} {
		v, ok, err := formFloat(r, key)
		if err != nil {
			return types.Rect{}, false, err
		}
		if ok {
			vals[i] = v
			present++
		}
	}
	switch present {
	case 0:
		return types.Rect{}, false, nil
	case 4:
		return types.Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, true, nil
	}
	return types.Rect{}, false, fmt.Errorf("%w: region needs x, y, width and height", errBadRequest)
}

func parseSizes(s string) ([]int, error) {
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: size %q", errBadRequest, part)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

func (s *Server) sessionOptions(r *http.Request) []session.Option {
	return []session.Option{
		session.WithExtractor(s.extractor),
		session.WithProcessor(s.processor),
		session.WithSelectorConfig(s.cfg.SelectorPolicy()),
		session.WithLogger(*hlog.FromRequest(r)),
	}
}

// Crop extracts a region of the uploaded image as PNG.
//
// Form fields: file, aspect, display_width, display_height, x, y, width,
// height, preview. Without a region the default region is used. With
// preview=true the selection overlay is returned instead of the crop.
func (s *Server) Crop(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer up.file.Close()

	aspectName := r.FormValue("aspect")
	if aspectName == "" {
		aspectName = s.cfg.Selector.Aspect
	}
	aspect, err := selector.ParseAspect(aspectName)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	dw, _, err := formFloat(r, "display_width")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dh, _, err := formFloat(r, "display_height")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	region, hasRegion, err := formRegion(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	cs := session.NewCropSession(s.sessionOptions(r)...)
	cs.SetAspect(aspect.Ratio())
	if err := cs.LoadReader(up.name, up.file, dw, dh); err != nil {
		s.fail(w, r, err)
		return
	}
	if hasRegion {
		cs.Place(region)
	} else {
		cs.Accept()
	}

	if formBool(r, "preview") {
		var buf bytes.Buffer
		if err := preview.WritePNG(&buf, cs.Source(), cs.Transform(), cs.Region(), preview.DefaultStyle()); err != nil {
			s.fail(w, r, err)
			return
		}
		writeFile(w, utils.PreviewName(up.name), types.MimeType, buf.Bytes())
		return
	}

	res, err := cs.Extract(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("X-Crop-Region", fmt.Sprintf("%g,%g,%g,%g", cs.Region().X, cs.Region().Y, cs.Region().Width, cs.Region().Height))
	writeFile(w, res.Name, types.MimeType, res.Data)
}

// Icons renders square icons of the uploaded image.
//
// Form fields: file, sizes (comma separated), fit, format ("zip", "ico" or
// "png"; png requires exactly one size).
func (s *Server) Icons(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer up.file.Close()

	sizes := s.cfg.Icons.Sizes
	if v := r.FormValue("sizes"); v != "" {
		if sizes, err = parseSizes(v); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	opts := s.sessionOptions(r)
	if v := r.FormValue("fit"); v != "" {
		fit, err := raster.ParseFit(v)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		opts = append(opts, session.WithExtractor(s.extractor.With(raster.WithIconFit(fit))))
	}

	format := r.FormValue("format")
	if format == "" {
		format = s.cfg.Icons.Bundle
	}
	if format == "" {
		format = string(bundle.FormatZip)
	}

	is := session.NewIconSession(opts...)
	if err := is.SetSizes(sizes); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := is.LoadReader(up.name, up.file); err != nil {
		s.fail(w, r, err)
		return
	}
	results, err := is.Generate(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if format == "png" {
		if len(results) != 1 {
			s.fail(w, r, fmt.Errorf("%w: png output needs exactly one size, got %d", errBadRequest, len(results)))
			return
		}
		writeFile(w, results[0].Name, types.MimeType, results[0].Data)
		return
	}

	bf, err := bundle.ParseFormat(format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(results) == 0 {
		s.fail(w, r, bundle.ErrEmpty)
		return
	}
	name, data, err := is.Bundle(bf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, name, bf.MimeType(), data)
}

// Convert re-encodes the upload in the requested format.
func (s *Server) Convert(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer up.file.Close()

	target := r.FormValue("targetFormat")
	if target == "" {
		target = r.FormValue("format")
	}
	format, err := processing.ParseFormat(target)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	quality := s.cfg.Output.JPEGQuality
	if q, ok, err := formFloat(r, "quality"); err != nil {
		s.fail(w, r, err)
		return
	} else if ok {
		quality = int(q)
	}

	data, err := io.ReadAll(up.file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.processor.ConvertBytes(data, format, quality)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, utils.ConvertedName(up.name, string(format)), format.MimeType(), out)
}

// RemoveBackground keys out the estimated background color of the upload.
func (s *Server) RemoveBackground(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer up.file.Close()

	opts := s.cfg.RemoveBackgroundOptions()
	if v, ok, err := formFloat(r, "tolerance"); err != nil {
		s.fail(w, r, err)
		return
	} else if ok {
		opts.Tolerance = v
	}
	if v, ok, err := formFloat(r, "feather"); err != nil {
		s.fail(w, r, err)
		return
	} else if ok {
		opts.Feather = v
	}

	img, err := s.processor.Decode(up.file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.processor.EncodeBytes(s.processor.RemoveBackground(img, opts), processing.PNG, 0, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, utils.NoBackgroundName(up.name), types.MimeType, out)
}

type suggestResponse struct {
	Region    types.Rect       `json:"region"`
	Display   displaySize      `json:"display"`
	Detection *types.Detection `json:"detection"`
}

type displaySize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Suggest asks the vision backend for the main subject and returns it as a
// crop region in display space.
func (s *Server) Suggest(w http.ResponseWriter, r *http.Request) {
	if s.detector == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("region suggestion is not configured"))
		return
	}
	up, err := readUpload(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer up.file.Close()

	img, err := s.processor.Decode(up.file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dw, _, err := formFloat(r, "display_width")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dh, _, err := formFloat(r, "display_height")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	b := img.Bounds()
	var t raster.Transform
	if dw > 0 && dh > 0 {
		t, err = raster.NewTransform(b.Dx(), b.Dy(), dw, dh)
	} else {
		t, err = raster.Fit(b.Dx(), b.Dy(), s.cfg.Display.MaxWidth, s.cfg.Display.MaxHeight)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	payload, err := s.processor.PrepareImageForModel(img, s.cfg.Vision.MaxDim, 85)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	if s.cfg.Vision.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Vision.Timeout)
		defer cancel()
	}
	suggested, det, err := s.detector.SuggestRegion(ctx, payload, t)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	sel := selector.New(s.cfg.SelectorPolicy())
	sel.Initialize(t.DisplayWidth, t.DisplayHeight, 0)
	region := sel.Place(suggested)

	writeJSON(w, http.StatusOK, suggestResponse{
		Region:    region,
		Display:   displaySize{Width: t.DisplayWidth, Height: t.DisplayHeight},
		Detection: det,
	})
}
