package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/toolbox/pkg/bundle"
	"github.com/menta2k/toolbox/pkg/raster"
	"github.com/menta2k/toolbox/pkg/session"
)

func newIconsCommand(a *app) *cobra.Command {
	var (
		sizes  []int
		zipOut bool
		icoOut bool
		fit    string
	)
	cmd := &cobra.Command{
		Use:   "icons <image>",
		Short: "Render square icons of an image",
		Long: fmt.Sprintf(`Render the whole image as square PNG icons, one per size.

Sizes must come from the palette %v. Each icon is written as
icon-<size>x<size>.png unless --zip or --ico packs them into one file.
ICO files skip sizes above %d.`, session.Palette(), bundle.MaxICOSize),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := a.load(cmd, args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("sizes") {
				sizes = a.cfg.Icons.Sizes
			}

			var opts []session.Option
			if fit != "" {
				f, err := raster.ParseFit(fit)
				if err != nil {
					return err
				}
				opts = append(opts, session.WithExtractor(a.tb.Extractor().With(raster.WithIconFit(f))))
			}
			is := a.tb.NewIconSession(opts...)
			if err := is.SetSizes(sizes); err != nil {
				return err
			}
			if err := is.Load(sourceName(args[0]), img); err != nil {
				return err
			}
			results, err := is.Generate(a.context(cmd))
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sizes selected")
				return nil
			}

			format := bundle.Format(a.cfg.Icons.Bundle)
			switch {
			case zipOut:
				format = bundle.FormatZip
			case icoOut:
				format = bundle.FormatICO
			}
			if format != "" {
				name, data, err := is.Bundle(format)
				if err != nil {
					return err
				}
				_, err = a.write(cmd, name, data, fmt.Sprintf("%d icons", len(results)))
				return err
			}

			for _, r := range results {
				if _, err := a.write(cmd, r.Name, r.Data, ""); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&sizes, "sizes", nil, "icon sizes, e.g. 16,32,256 (default from config)")
	cmd.Flags().BoolVar(&zipOut, "zip", false, "pack the icons into a ZIP archive")
	cmd.Flags().BoolVar(&icoOut, "ico", false, "pack the icons into a Windows ICO file")
	cmd.Flags().StringVar(&fit, "fit", "", "non-square sources: stretch or contain (default from config)")
	cmd.MarkFlagsMutuallyExclusive("zip", "ico")
	return cmd
}
