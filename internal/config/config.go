package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/toolbox/pkg/bundle"
	"github.com/menta2k/toolbox/pkg/client"
	"github.com/menta2k/toolbox/pkg/processing"
	"github.com/menta2k/toolbox/pkg/raster"
	"github.com/menta2k/toolbox/pkg/selector"
	"github.com/menta2k/toolbox/pkg/session"
)

// EnvPrefix prefixes every environment override, e.g. TOOLBOX_SERVER_ADDR.
const EnvPrefix = "TOOLBOX"

// Config holds the application configuration
type Config struct {
	Selector SelectorConfig `yaml:"selector" mapstructure:"selector"`
	Display  DisplayConfig  `yaml:"display" mapstructure:"display"`
	Raster   RasterConfig   `yaml:"raster" mapstructure:"raster"`
	Icons    IconsConfig    `yaml:"icons" mapstructure:"icons"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	RemoveBG RemoveBGConfig `yaml:"remove_bg" mapstructure:"remove_bg"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Vision   VisionConfig   `yaml:"vision" mapstructure:"vision"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// SelectorConfig holds the crop selection policy
type SelectorConfig struct {
	MinSize         float64 `yaml:"min_size" mapstructure:"min_size"`
	DefaultOffset   float64 `yaml:"default_offset" mapstructure:"default_offset"`
	DefaultSize     float64 `yaml:"default_size" mapstructure:"default_size"`
	CenterDefault   bool    `yaml:"center_default" mapstructure:"center_default"`
	AspectFill      float64 `yaml:"aspect_fill" mapstructure:"aspect_fill"`
	ClampToBounds   bool    `yaml:"clamp_to_bounds" mapstructure:"clamp_to_bounds"`
	ReshapeOnAspect bool    `yaml:"reshape_on_aspect" mapstructure:"reshape_on_aspect"`
	Aspect          string  `yaml:"aspect" mapstructure:"aspect"`
}

// DisplayConfig bounds the size an image is shown at when no explicit
// display size is given. Zero means unbounded.
type DisplayConfig struct {
	MaxWidth  float64 `yaml:"max_width" mapstructure:"max_width"`
	MaxHeight float64 `yaml:"max_height" mapstructure:"max_height"`
}

// RasterConfig holds extraction settings
type RasterConfig struct {
	Backend     string  `yaml:"backend" mapstructure:"backend"` // "draw" or "imaging"
	PixelRatio  float64 `yaml:"pixel_ratio" mapstructure:"pixel_ratio"`
	IconFit     string  `yaml:"icon_fit" mapstructure:"icon_fit"` // "stretch" or "contain"
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// IconsConfig holds the icon tool defaults
type IconsConfig struct {
	Sizes  []int  `yaml:"sizes" mapstructure:"sizes"`
	Bundle string `yaml:"bundle" mapstructure:"bundle"` // "", "zip" or "ico"
}

// OutputConfig holds configuration for output files
type OutputConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	JPEGQuality  int    `yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
	WebPLossless bool   `yaml:"webp_lossless" mapstructure:"webp_lossless"`
}

// RemoveBGConfig tunes the color-key background removal
type RemoveBGConfig struct {
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
	Feather   float64 `yaml:"feather" mapstructure:"feather"`
}

// ServerConfig holds the HTTP API settings
type ServerConfig struct {
	Addr          string        `yaml:"addr" mapstructure:"addr"`
	MaxUploadMB   int           `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	ReadTimeout   time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	AllowedOrigin string        `yaml:"allowed_origin" mapstructure:"allowed_origin"`
}

// VisionConfig holds the region suggestion backend
type VisionConfig struct {
	Backend string        `yaml:"backend" mapstructure:"backend"` // "ollama", "llamacpp" or "local"
	URL     string        `yaml:"url" mapstructure:"url"`
	Model   string        `yaml:"model" mapstructure:"model"`
	MaxDim  int           `yaml:"max_dim" mapstructure:"max_dim"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LoggingConfig holds the log level and format
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	sel := selector.DefaultConfig()
	bg := processing.DefaultRemoveBackgroundOptions()
	return &Config{
		Selector: SelectorConfig{
			MinSize:       sel.MinSize,
			DefaultOffset: sel.DefaultOffset,
			DefaultSize:   sel.DefaultSize,
			AspectFill:    sel.AspectFill,
			Aspect:        "free",
		},
		Display: DisplayConfig{MaxWidth: 800, MaxHeight: 600},
		Raster: RasterConfig{
			Backend:    "draw",
			PixelRatio: 1,
			IconFit:    "stretch",
		},
		Icons:    IconsConfig{Sizes: session.DefaultIconSizes()},
		Output:   OutputConfig{Dir: ".", JPEGQuality: 90},
		RemoveBG: RemoveBGConfig{Tolerance: bg.Tolerance, Feather: bg.Feather},
		Server: ServerConfig{
			Addr:          ":8080",
			MaxUploadMB:   10,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  60 * time.Second,
			AllowedOrigin: "*",
		},
		Vision: VisionConfig{
			Backend: client.BackendOllama,
			URL:     "http://localhost:11434",
			Model:   "llava",
			MaxDim:  1024,
			Timeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads configuration from path (optional) layered over the defaults,
// then applies TOOLBOX_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Selector.MinSize <= 0 {
		return fmt.Errorf("selector.min_size must be positive")
	}
	if c.Selector.DefaultSize < c.Selector.MinSize {
		return fmt.Errorf("selector.default_size must be at least selector.min_size")
	}
	if c.Selector.AspectFill <= 0 || c.Selector.AspectFill > 1 {
		return fmt.Errorf("selector.aspect_fill must be in (0, 1]")
	}
	if _, err := selector.ParseAspect(c.Selector.Aspect); err != nil {
		return fmt.Errorf("selector.aspect: %w", err)
	}
	if c.Display.MaxWidth < 0 || c.Display.MaxHeight < 0 {
		return fmt.Errorf("display bounds cannot be negative")
	}
	if c.Raster.Backend != "draw" && c.Raster.Backend != "imaging" {
		return fmt.Errorf("raster.backend must be draw or imaging")
	}
	if c.Raster.PixelRatio <= 0 {
		return fmt.Errorf("raster.pixel_ratio must be positive")
	}
	if _, err := raster.ParseFit(c.Raster.IconFit); err != nil {
		return fmt.Errorf("raster.icon_fit: %w", err)
	}
	for _, s := range c.Icons.Sizes {
		if !session.InPalette(s) {
			return fmt.Errorf("icons.sizes: %d is not one of %v", s, session.Palette())
		}
	}
	if c.Icons.Bundle != "" {
		if _, err := bundle.ParseFormat(c.Icons.Bundle); err != nil {
			return fmt.Errorf("icons.bundle: %w", err)
		}
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality must be between 1 and 100")
	}
	if c.RemoveBG.Tolerance < 0 || c.RemoveBG.Tolerance > 1 {
		return fmt.Errorf("remove_bg.tolerance must be between 0 and 1")
	}
	if c.RemoveBG.Feather < 0 || c.RemoveBG.Feather > 1 {
		return fmt.Errorf("remove_bg.feather must be between 0 and 1")
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if err := client.ValidateBackend(c.Vision.Backend); err != nil {
		return fmt.Errorf("vision.backend: %w", err)
	}
	return nil
}

// SelectorPolicy converts the selector section into a selector.Config
func (c *Config) SelectorPolicy() selector.Config {
	return selector.Config{
		MinSize:         c.Selector.MinSize,
		DefaultOffset:   c.Selector.DefaultOffset,
		DefaultSize:     c.Selector.DefaultSize,
		CenterDefault:   c.Selector.CenterDefault,
		AspectFill:      c.Selector.AspectFill,
		ClampToBounds:   c.Selector.ClampToBounds,
		ReshapeOnAspect: c.Selector.ReshapeOnAspect,
	}
}

// RemoveBackgroundOptions converts the remove_bg section
func (c *Config) RemoveBackgroundOptions() processing.RemoveBackgroundOptions {
	return processing.RemoveBackgroundOptions{Tolerance: c.RemoveBG.Tolerance, Feather: c.RemoveBG.Feather}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./toolbox.yaml"
	}
	return filepath.Join(home, ".config", "toolbox", "config.yaml")
}
