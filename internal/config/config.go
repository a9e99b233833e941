// Package config holds runtime configuration: defaults, the YAML config file,
// environment overrides, CLI flag parsing, and validation. Precedence is
// defaults < config file < environment < flags; validation runs once, before
// any extraction starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// --- Enum types for validated string fields ---

// Format is the image re-encoding format applied by the rebuilder.
type Format string

const (
	FormatJPEG Format = "jpeg" // JPEG at OutputQuality (default).
	FormatPNG  Format = "png"  // Lossless PNG; OutputQuality is ignored.
)

// Duration is a time.Duration that decodes from strings like "90s" or "10m"
// in the config file, environment variables, and flags.
type Duration time.Duration

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Set implements flag.Value.
func (d *Duration) Set(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q (use forms like 90s or 10m)", s)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (d *Duration) UnmarshalText(text []byte) error { return d.Set(string(text)) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error { return d.Set(value.Value) }

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Config holds all runtime settings. It is populated by [DefaultConfig] and
// then layered by [LoadFile], [ApplyEnv], and [ParseFlags] before being passed
// (by pointer) to packages that need it. It is never mutated after validation.
type Config struct {
	// Paths (set from positional args).
	InputDir  string `yaml:"-" env:"-"`
	OutputDir string `yaml:"-" env:"-"`

	// TempDir is the root under which per-job working directories are created.
	TempDir string `yaml:"temp_dir" env:"TEMP_DIR"`

	// Engine settings.
	EnginePath string `yaml:"engine_path" env:"ENGINE_PATH"` // Default: "final2x-core" (resolved on PATH).
	Model      string `yaml:"model" env:"MODEL"`             // Pretrained model identifier passed to the engine.
	Scale      int    `yaml:"scale" env:"SCALE"`             // Requested magnification. Default: 4.

	// Orchestration.
	Workers      int      `yaml:"workers" env:"WORKERS"`             // Upper bound on concurrent engine processes. Default: 4.
	Retries      int      `yaml:"retries" env:"RETRIES"`             // Single-image fallback attempts per failed image. Default: 2.
	BatchTimeout Duration `yaml:"batch_timeout" env:"BATCH_TIMEOUT"` // Per-batch engine timeout; 0 disables.
	JobTimeout   Duration `yaml:"job_timeout" env:"JOB_TIMEOUT"`     // Per-container timeout; 0 disables.

	// Output settings.
	TargetLongEdge   int    `yaml:"target_long_edge" env:"TARGET_LONG_EDGE"` // Resize target for the longer edge. Default: 1872 (7.8" e-ink).
	OutputFormat     Format `yaml:"output_format" env:"OUTPUT_FORMAT"`      // Default: "jpeg".
	OutputQuality    int    `yaml:"output_quality" env:"OUTPUT_QUALITY"`    // JPEG quality 1-100. Default: 95.
	ResizeToOriginal bool   `yaml:"resize_to_original" env:"RESIZE_TO_ORIGINAL"`
	EInkLayout       bool   `yaml:"eink_layout" env:"EINK_LAYOUT"` // Default: true. Rebuild as image-per-page reader book.

	// Behavior flags.
	DryRun          bool `yaml:"-" env:"-"`
	SkipExisting    bool `yaml:"-" env:"-"` // Default: true. Cleared by --force.
	StrictMode      bool `yaml:"-" env:"-"` // Disable retry fallbacks (Retries treated as 0).
	PreserveWorkDir bool `yaml:"preserve_workdir" env:"PRESERVE_WORKDIR"` // Keep workdir after a fatal job failure.

	// Display and logging.
	Verbose   bool      `yaml:"-" env:"-"`
	ColorMode ColorMode `yaml:"color" env:"-"` // Default: "auto".
	LogFile   string    `yaml:"log_file" env:"LOG_FILE"`
	CheckOnly bool      `yaml:"-" env:"-"` // Run --check diagnostics and exit.
}

// DefaultConfig returns a Config with defaults matching the stock
// settings.yaml shipped with earlier releases. Used as the base before file,
// environment, and CLI overrides are applied.
func DefaultConfig() Config {
	return Config{
		TempDir:          os.TempDir(),
		EnginePath:       "final2x-core",
		Model:            "RealESRGAN_RealESRGAN_x4plus_anime_6B",
		Scale:            4,
		Workers:          4,
		Retries:          2,
		BatchTimeout:     0,
		JobTimeout:       0,
		TargetLongEdge:   1872,
		OutputFormat:     FormatJPEG,
		OutputQuality:    95,
		ResizeToOriginal: false,
		EInkLayout:       true,
		DryRun:           false,
		SkipExisting:     true,
		StrictMode:       false,
		PreserveWorkDir:  false,
		Verbose:          false,
		ColorMode:        ColorAuto,
		CheckOnly:        false,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// EffectiveRetries returns the retry budget with strict mode applied.
func (c *Config) EffectiveRetries() int {
	if c.StrictMode {
		return 0
	}
	return c.Retries
}

// Validate checks numeric ranges and enum fields. It fails fast so that no
// extraction begins with a broken configuration. When not in CheckOnly mode,
// it also requires that both input and output directory paths are non-empty.
func (c *Config) Validate() error {
	if c.Scale <= 0 {
		return fmt.Errorf("scale must be positive (got %d)", c.Scale)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative (got %d)", c.Retries)
	}
	if c.TargetLongEdge <= 0 {
		return fmt.Errorf("target long edge must be positive (got %d)", c.TargetLongEdge)
	}
	if c.OutputQuality < 1 || c.OutputQuality > 100 {
		return fmt.Errorf("output quality must be 1-100 (got %d)", c.OutputQuality)
	}
	if c.BatchTimeout < 0 || c.JobTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.EnginePath == "" {
		return errors.New("engine path must not be empty")
	}
	if c.Model == "" {
		return errors.New("model identifier must not be empty")
	}

	switch c.OutputFormat {
	case FormatJPEG, FormatPNG:
		// valid
	default:
		return fmt.Errorf("unknown output format %q (use 'jpeg' or 'png')", c.OutputFormat)
	}

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return fmt.Errorf("invalid color mode %q (use 'auto', 'always' or 'never')", c.ColorMode)
	}

	if c.CheckOnly {
		return nil
	}
	if c.InputDir == "" || c.OutputDir == "" {
		return errors.New("need exactly input_dir and output_dir")
	}
	return nil
}

// ValidatePaths ensures the resolved output directory is not inside (or equal
// to) the resolved input directory. This prevents the pipeline from
// discovering its own output containers. Both arguments must be absolute,
// symlink-resolved paths.
func (c *Config) ValidatePaths(inputAbs, outputAbs string) error {
	sep := string(filepath.Separator)
	if outputAbs == inputAbs || strings.HasPrefix(outputAbs+sep, inputAbs+sep) {
		return errors.New("output directory must not be inside input directory")
	}
	return nil
}
