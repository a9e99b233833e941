package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeDirArg(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no trailing slash", "/books/library", "/books/library"},
		{"single trailing slash", "/books/library/", "/books/library"},
		{"multiple trailing slashes", "/books/library///", "/books/library"},
		{"root path", "/", "/"},
		{"relative path", "output", "output"},
		{"empty string", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDirArg(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeDirArg(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidate_OutputFormat(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"jpeg is valid", FormatJPEG, false},
		{"png is valid", FormatPNG, false},
		{"empty is invalid", "", true},
		{"webp is invalid", "webp", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.CheckOnly = true // skip path requirement
			cfg.OutputFormat = tt.format
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ColorMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    ColorMode
		wantErr bool
	}{
		{"auto is valid", ColorAuto, false},
		{"always is valid", ColorAlways, false},
		{"never is valid", ColorNever, false},
		{"empty is invalid", "", true},
		{"unknown is invalid", "sometimes", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.CheckOnly = true
			cfg.ColorMode = tt.mode
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_NumericRanges(t *testing.T) {
	mutations := []struct {
		name string
		mut  func(*Config)
	}{
		{"zero scale", func(c *Config) { c.Scale = 0 }},
		{"negative scale", func(c *Config) { c.Scale = -1 }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"negative retries", func(c *Config) { c.Retries = -1 }},
		{"zero long edge", func(c *Config) { c.TargetLongEdge = 0 }},
		{"quality too low", func(c *Config) { c.OutputQuality = 0 }},
		{"quality too high", func(c *Config) { c.OutputQuality = 101 }},
		{"negative batch timeout", func(c *Config) { c.BatchTimeout = Duration(-time.Second) }},
		{"empty engine path", func(c *Config) { c.EnginePath = "" }},
		{"empty model", func(c *Config) { c.Model = "" }},
	}
	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.CheckOnly = true
			tt.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}

func TestValidate_RequiresPaths(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail when paths are empty and CheckOnly is false")
	}

	cfg.InputDir = "/in"
	cfg.OutputDir = "/out"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}

	cfg.InputDir = ""
	cfg.CheckOnly = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() in check mode: %v", err)
	}
}

func TestValidatePaths(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name    string
		in, out string
		wantErr bool
	}{
		{"separate trees", "/books/in", "/books/out", false},
		{"output inside input", "/books/in", "/books/in/out", true},
		{"same directory", "/books/in", "/books/in", true},
		{"sibling with shared prefix", "/books/in", "/books/input2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cfg.ValidatePaths(tt.in, tt.out)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePaths(%q, %q) error = %v, wantErr %v", tt.in, tt.out, err, tt.wantErr)
			}
		})
	}
}

func TestEffectiveRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retries = 3
	if got := cfg.EffectiveRetries(); got != 3 {
		t.Errorf("EffectiveRetries = %d, want 3", got)
	}
	cfg.StrictMode = true
	if got := cfg.EffectiveRetries(); got != 0 {
		t.Errorf("strict EffectiveRetries = %d, want 0", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("scale: 2\nworkers: 8\nmodel: OtherModel\neink_layout: false\nbatch_timeout: 10m\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := LoadFile(&cfg, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Scale != 2 || cfg.Workers != 8 || cfg.Model != "OtherModel" {
		t.Errorf("cfg = scale %d, workers %d, model %q", cfg.Scale, cfg.Workers, cfg.Model)
	}
	if cfg.EInkLayout {
		t.Error("eink_layout: false not applied")
	}
	if cfg.BatchTimeout != Duration(10*time.Minute) {
		t.Errorf("batch_timeout = %v, want 10m", cfg.BatchTimeout)
	}
	// Untouched fields keep their defaults.
	if cfg.OutputQuality != 95 {
		t.Errorf("quality = %d, want default 95", cfg.OutputQuality)
	}
}

func TestLoadFile_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scail: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	if err := LoadFile(&cfg, path); err == nil {
		t.Error("LoadFile accepted an unknown key")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("INKSCALE_SCALE", "3")
	t.Setenv("INKSCALE_WORKERS", "6")
	t.Setenv("INKSCALE_MODEL", "EnvModel")
	t.Setenv("INKSCALE_JOB_TIMEOUT", "30m")

	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Scale != 3 || cfg.Workers != 6 || cfg.Model != "EnvModel" {
		t.Errorf("cfg = scale %d, workers %d, model %q", cfg.Scale, cfg.Workers, cfg.Model)
	}
	if cfg.JobTimeout != Duration(30*time.Minute) {
		t.Errorf("job timeout = %v, want 30m", cfg.JobTimeout)
	}
}

func TestConfigPathFromArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"long flag", []string{"--config", "a.yaml", "in", "out"}, "a.yaml"},
		{"equals form", []string{"--config=b.yaml"}, "b.yaml"},
		{"short flag", []string{"-C", "c.yaml"}, "c.yaml"},
		{"absent", []string{"in", "out"}, ""},
		{"dangling flag", []string{"--config"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := configPathFromArgs(tt.args); got != tt.want {
				t.Errorf("configPathFromArgs(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	var f Format = FormatJPEG
	v := &formatValue{&f}

	if err := v.Set("png"); err != nil || f != FormatPNG {
		t.Errorf("Set(png): err=%v, format=%q", err, f)
	}
	if err := v.Set("jpg"); err != nil || f != FormatJPEG {
		t.Errorf("Set(jpg): err=%v, format=%q", err, f)
	}
	if err := v.Set("bmp"); err == nil {
		t.Error("Set(bmp) succeeded, want error")
	}
	if v.String() != "jpeg" {
		t.Errorf("String() = %q", v.String())
	}
}

func TestApplyNegatedFlags(t *testing.T) {
	cfg := DefaultConfig()
	applyNegatedFlags(&cfg, &negatedFlags{noEInk: true, force: true, noColor: true})
	if cfg.EInkLayout {
		t.Error("--no-eink not applied")
	}
	if cfg.SkipExisting {
		t.Error("--force did not clear SkipExisting")
	}
	if cfg.ColorMode != ColorNever {
		t.Errorf("color mode = %q, want never", cfg.ColorMode)
	}
}
