// Package cli provides the cobra commands of the toolbox binary.
package cli

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/menta2k/toolbox"
	"github.com/menta2k/toolbox/internal/config"
	"github.com/menta2k/toolbox/internal/logging"
	"github.com/menta2k/toolbox/internal/utils"
)

// app carries the state shared by every command of one invocation.
type app struct {
	version  string
	cfgPath  string
	logLevel string
	outDir   string

	cfg *config.Config
	log zerolog.Logger
	tb  *toolbox.Toolbox
}

// NewRootCommand builds the command tree
func NewRootCommand(version string) *cobra.Command {
	a := &app{version: version, log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "toolbox",
		Short: "Crop images and turn them into icons",
		Long: `toolbox crops a region out of an image and renders square icon sets.

The crop region is given in display coordinates: the size the image is shown
at (--display), which defaults to the natural image size. The region is mapped
back onto the source pixels, so a crop selected on a small preview keeps the
full source resolution.

Configuration is read from --config (default ~/.config/toolbox/config.yaml)
and TOOLBOX_* environment variables, e.g. TOOLBOX_RASTER_PIXEL_RATIO=2.

Examples:
  toolbox crop photo.jpg --x 10 --y 20 --width 300 --height 200
  toolbox crop photo.jpg --display 500x250 --x 100 --y 50 --width 100 --height 50
  toolbox crop photo.jpg -i
  toolbox icons logo.png --sizes 16,32,256 --ico
  toolbox serve --addr :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "version", "init":
				return nil
			}
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default "+config.GetConfigPath()+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVarP(&a.outDir, "output", "o", "", "output directory (default from config)")

	root.AddCommand(
		newCropCommand(a),
		newIconsCommand(a),
		newConvertCommand(a),
		newRemoveBgCommand(a),
		newSuggestCommand(a),
		newServeCommand(a),
		newConfigCommand(a),
		newVersionCommand(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure
func Execute(version string) {
	ctx, stop := signalContext()
	defer stop()
	if err := NewRootCommand(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) init(cmd *cobra.Command) error {
	path := a.cfgPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.outDir != "" {
		cfg.Output.Dir = a.outDir
	}

	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(cfg.Logging.Level)
	lc.Format = cfg.Logging.Format
	lc.Output = cmd.ErrOrStderr()
	a.log = logging.New(lc)

	tb, err := toolbox.NewWithConfig(cfg, a.log)
	if err != nil {
		return err
	}
	a.cfg, a.tb = cfg, tb
	return nil
}

func (a *app) context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// load reads an image from a path or URL
func (a *app) load(cmd *cobra.Command, source string) (image.Image, error) {
	img, err := a.tb.Processor().LoadImageSmart(a.context(cmd), source)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", source, err)
	}
	b := img.Bounds()
	a.log.Debug().Str("source", source).Int("width", b.Dx()).Int("height", b.Dy()).Msg("loaded image")
	return img, nil
}

// write stores data in the output directory and reports it
func (a *app) write(cmd *cobra.Command, name string, data []byte, detail string) (string, error) {
	path, err := utils.WriteFile(a.cfg.Output.Dir, name, data)
	if err != nil {
		return "", err
	}
	line := fmt.Sprintf("wrote %s (%s", path, utils.FormatFileSize(int64(len(data))))
	if detail != "" {
		line += ", " + detail
	}
	fmt.Fprintln(cmd.OutOrStdout(), line+")")
	return path, nil
}

// sourceName is the file name used to derive output names
func sourceName(source string) string {
	if i := strings.IndexAny(source, "?#"); i >= 0 && strings.Contains(source, "://") {
		source = source[:i]
	}
	return filepath.Base(source)
}

// parseDisplay parses "WxH"; an empty string means the natural size
func parseDisplay(s string) (float64, float64, error) {
	if s == "" {
		return 0, 0, nil
	}
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid display size %q, want WxH", s)
	}
	w, err1 := strconv.ParseFloat(strings.TrimSpace(ws), 64)
	h, err2 := strconv.ParseFloat(strings.TrimSpace(hs), 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid display size %q, want WxH", s)
	}
	return w, h, nil
}
