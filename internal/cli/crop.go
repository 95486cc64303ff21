package cli

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/toolbox"
	"github.com/menta2k/toolbox/internal/tui"
	"github.com/menta2k/toolbox/internal/utils"
	"github.com/menta2k/toolbox/pkg/preview"
	"github.com/menta2k/toolbox/pkg/selector"
	"github.com/menta2k/toolbox/pkg/types"
)

type cropOptions struct {
	x, y, width, height float64
	aspect              string
	display             string
	interactive         bool
	preview             bool
	suggest             bool
}

func newCropCommand(a *app) *cobra.Command {
	var o cropOptions
	cmd := &cobra.Command{
		Use:   "crop <image>",
		Short: "Crop a region of an image to PNG",
		Long: `Crop a region of an image and save it as PNG.

The region (--x, --y, --width, --height) is in display coordinates. Without a
region the default selection is used; with --suggest the vision backend picks
the main subject. The output is named cropped-<file>.

With -i the crop is selected interactively in the terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCrop(cmd, args[0], o)
		},
	}
	f := cmd.Flags()
	f.Float64Var(&o.x, "x", 0, "region left edge")
	f.Float64Var(&o.y, "y", 0, "region top edge")
	f.Float64Var(&o.width, "width", 0, "region width")
	f.Float64Var(&o.height, "height", 0, "region height")
	f.StringVar(&o.aspect, "aspect", "", "aspect ratio: free, square, portrait, landscape, widescreen, instagram, story or W:H")
	f.StringVar(&o.display, "display", "", "size the region was selected on, WxH (default natural size)")
	f.BoolVarP(&o.interactive, "interactive", "i", false, "select the region in the terminal")
	f.BoolVar(&o.preview, "preview", false, "write the selection overlay instead of the crop")
	f.BoolVar(&o.suggest, "suggest", false, "let the vision backend choose the region")
	cmd.MarkFlagsMutuallyExclusive("interactive", "suggest")
	cmd.MarkFlagsMutuallyExclusive("interactive", "preview")
	return cmd
}

func (a *app) runCrop(cmd *cobra.Command, source string, o cropOptions) error {
	img, err := a.load(cmd, source)
	if err != nil {
		return err
	}
	name := sourceName(source)
	ctx := a.context(cmd)

	aspectName := o.aspect
	if aspectName == "" {
		aspectName = a.cfg.Selector.Aspect
	}
	aspect, err := selector.ParseAspect(aspectName)
	if err != nil {
		return err
	}

	if o.interactive {
		cs := a.tb.NewCropSession()
		cs.SetAspect(aspect.Ratio())
		m, err := tui.NewCropModel(ctx, cs, name, img, a.cfg.Output.Dir, nil)
		if err != nil {
			return err
		}
		saved, err := tui.Run(ctx, m)
		if err != nil {
			return err
		}
		if saved != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", saved)
		}
		return nil
	}

	dw, dh, err := parseDisplay(o.display)
	if err != nil {
		return err
	}

	var region *types.Rect
	f := cmd.Flags()
	switch {
	case f.Changed("x") || f.Changed("y") || f.Changed("width") || f.Changed("height"):
		if !f.Changed("width") || !f.Changed("height") {
			return fmt.Errorf("--width and --height are required with an explicit region")
		}
		region = &types.Rect{X: o.x, Y: o.y, Width: o.width, Height: o.height}
	case o.suggest:
		r, err := a.suggestRegion(cmd, img, dw, dh)
		if err != nil {
			return err
		}
		region = &r
	}

	if o.preview {
		cs := a.tb.NewCropSession()
		cs.SetAspect(aspect.Ratio())
		if err := cs.Load(name, img, dw, dh); err != nil {
			return err
		}
		if region != nil {
			cs.Place(*region)
		}
		var buf bytes.Buffer
		if err := preview.WritePNG(&buf, img, cs.Transform(), cs.Region(), preview.DefaultStyle()); err != nil {
			return err
		}
		r := cs.Region()
		_, err := a.write(cmd, utils.PreviewName(name), buf.Bytes(),
			fmt.Sprintf("region %g,%g %gx%g", r.X, r.Y, r.Width, r.Height))
		return err
	}

	res, err := a.tb.Crop(ctx, name, img, toolbox.CropRequest{
		DisplayWidth:  dw,
		DisplayHeight: dh,
		Aspect:        aspectName,
		Region:        region,
	})
	if err != nil {
		return err
	}
	_, err = a.write(cmd, res.Name, res.Data, fmt.Sprintf("%dx%d", res.Width, res.Height))
	return err
}
