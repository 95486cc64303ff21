package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/toolbox/internal/utils"
	"github.com/menta2k/toolbox/pkg/processing"
)

func newConvertCommand(a *app) *cobra.Command {
	var (
		to       string
		quality  int
		lossless bool
	)
	cmd := &cobra.Command{
		Use:   "convert <image>",
		Short: "Convert an image to another format",
		Long: fmt.Sprintf(`Re-encode an image in another format (%v).

Formats without an alpha channel get transparency flattened onto white.`, processing.Formats()),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := processing.ParseFormat(to)
			if err != nil {
				return err
			}
			img, err := a.load(cmd, args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("quality") {
				quality = a.cfg.Output.JPEGQuality
			}
			if !cmd.Flags().Changed("lossless") {
				lossless = a.cfg.Output.WebPLossless
			}

			p := a.tb.Processor()
			data, err := p.EncodeBytes(p.Convert(img, format), format, quality, lossless)
			if err != nil {
				return err
			}
			b := img.Bounds()
			_, err = a.write(cmd, utils.ConvertedName(sourceName(args[0]), string(format)), data,
				fmt.Sprintf("%dx%d %s", b.Dx(), b.Dy(), format))
			return err
		},
	}
	cmd.Flags().StringVar(&to, "to", "png", "target format: png, jpg, webp, bmp, gif, tiff")
	cmd.Flags().IntVar(&quality, "quality", 90, "JPEG/WebP quality (1-100)")
	cmd.Flags().BoolVar(&lossless, "lossless", false, "lossless WebP")
	return cmd
}

func newRemoveBgCommand(a *app) *cobra.Command {
	var tolerance, feather float64
	cmd := &cobra.Command{
		Use:   "remove-bg <image>",
		Short: "Make the background of an image transparent",
		Long: `Estimate the background color from the image border and key it out.

Works for product shots and logos on a flat backdrop. The output is written
as nobg-<name>.png.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := a.load(cmd, args[0])
			if err != nil {
				return err
			}
			opts := a.cfg.RemoveBackgroundOptions()
			if cmd.Flags().Changed("tolerance") {
				opts.Tolerance = tolerance
			}
			if cmd.Flags().Changed("feather") {
				opts.Feather = feather
			}

			p := a.tb.Processor()
			data, err := p.EncodeBytes(p.RemoveBackground(img, opts), processing.PNG, 0, false)
			if err != nil {
				return err
			}
			_, err = a.write(cmd, utils.NoBackgroundName(sourceName(args[0])), data, "")
			return err
		},
	}
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "color distance keyed out fully, 0-1 (default from config)")
	cmd.Flags().Float64Var(&feather, "feather", 0, "width of the soft edge above tolerance, 0-1 (default from config)")
	return cmd
}
