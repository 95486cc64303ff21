package cli

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/spf13/cobra"

	"github.com/menta2k/toolbox"
	"github.com/menta2k/toolbox/pkg/raster"
	"github.com/menta2k/toolbox/pkg/types"
)

type suggestOutput struct {
	Region    types.Rect       `json:"region"`
	Display   [2]float64       `json:"display"`
	Detection *types.Detection `json:"detection"`
}

func newSuggestCommand(a *app) *cobra.Command {
	var (
		display string
		fit     bool
		crop    bool
	)
	cmd := &cobra.Command{
		Use:   "suggest <image>",
		Short: "Ask the vision backend for a crop region",
		Long: `Send the image to the configured vision backend (ollama, llama.cpp or the
local saliency analyser),
detect the main subject and print it as a crop region in display coordinates.

Replies that are not valid JSON fall back to a centered region.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := a.load(cmd, args[0])
			if err != nil {
				return err
			}
			t, err := a.transform(img, display, fit)
			if err != nil {
				return err
			}
			d, err := a.tb.NewDetector()
			if err != nil {
				return err
			}
			region, det, err := a.tb.SuggestRegion(a.context(cmd), d, img, t)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(suggestOutput{
				Region:    region,
				Display:   [2]float64{t.DisplayWidth, t.DisplayHeight},
				Detection: det,
			}); err != nil {
				return err
			}
			if !crop {
				return nil
			}

			name := sourceName(args[0])
			res, err := a.tb.Crop(a.context(cmd), name, img, toolbox.CropRequest{
				DisplayWidth:  t.DisplayWidth,
				DisplayHeight: t.DisplayHeight,
				Region:        &region,
			})
			if err != nil {
				return err
			}
			_, err = a.write(cmd, res.Name, res.Data, fmt.Sprintf("%dx%d", res.Width, res.Height))
			return err
		},
	}
	cmd.Flags().StringVar(&display, "display", "", "display size WxH (default natural size)")
	cmd.Flags().BoolVar(&fit, "fit", false, "lay the image out inside display.max_width x display.max_height")
	cmd.Flags().BoolVar(&crop, "crop", false, "also write the suggested crop")
	cmd.MarkFlagsMutuallyExclusive("display", "fit")
	return cmd
}

// transform resolves the display transform from an explicit WxH, the
// configured display bounds, or the natural size.
func (a *app) transform(img image.Image, display string, fit bool) (raster.Transform, error) {
	if fit {
		return a.tb.DisplayTransform(img)
	}
	b := img.Bounds()
	dw, dh, err := parseDisplay(display)
	if err != nil {
		return raster.Transform{}, err
	}
	if dw == 0 {
		return raster.Identity(b.Dx(), b.Dy())
	}
	return raster.NewTransform(b.Dx(), b.Dy(), dw, dh)
}

// suggestRegion is the --suggest path of crop
func (a *app) suggestRegion(cmd *cobra.Command, img image.Image, dw, dh float64) (types.Rect, error) {
	display := ""
	if dw > 0 {
		display = fmt.Sprintf("%gx%g", dw, dh)
	}
	t, err := a.transform(img, display, false)
	if err != nil {
		return types.Rect{}, err
	}
	d, err := a.tb.NewDetector()
	if err != nil {
		return types.Rect{}, err
	}
	r, det, err := a.tb.SuggestRegion(a.context(cmd), d, img, t)
	if err != nil {
		return types.Rect{}, err
	}
	a.log.Info().
		Str("label", det.Primary.Label).
		Float64("confidence", det.Primary.Confidence).
		Bool("fallback", det.Fallback).
		Interface("region", r).
		Msg("suggested region")
	return r, nil
}
