package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into engine, output, orchestration, behavior, display, and utility.
// Negated flags (e.g. --no-eink) are applied after Parse so Config defaults hold unless set.

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags layers the config file, environment, and CLI flags onto cfg, in
// that order. On --help or --version it prints and exits. On error it returns
// non-nil (e.g. unknown flag, bad value, missing positional args).
func ParseFlags(cfg *Config, version string) error {
	// The config file must be loaded before flags are defined so that flag
	// values override file values. Peek at the arguments for --config first.
	if path := configPathFromArgs(os.Args[1:]); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return err
	}

	fs := flag.NewFlagSet("inkscale", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs, version) }

	// Negated/override flags: we capture bools then apply to cfg after Parse,
	// so that defaults (and file/env values) hold unless the user passes the flag.
	var negated negatedFlags

	defineEngineFlags(fs, cfg)
	defineOutputFlags(fs, cfg, &negated)
	defineOrchestrationFlags(fs, cfg)
	defineBehaviorFlags(fs, cfg, &negated)
	defineDisplayFlags(fs, cfg, &negated)
	defineUtilityFlags(fs, &negated)

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	applyNegatedFlags(cfg, &negated)

	if negated.showHelp {
		printUsage(fs, version)
		os.Exit(0)
	}
	if negated.showVersion {
		fmt.Fprintln(os.Stdout, "inkscale v"+version)
		os.Exit(0)
	}

	return parsePositionalArgs(fs, cfg)
}

// configPathFromArgs scans raw arguments for --config/-C without consuming
// anything, so the file can be loaded before the full flag set parses.
func configPathFromArgs(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" || a == "-config" || a == "-C":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		}
	}
	return ""
}

// negatedFlags holds boolean flags that are applied after Parse.
// These either invert a default (e.g. noEInk -> EInkLayout=false) or trigger exit (showHelp, showVersion).
type negatedFlags struct {
	configPath  string // consumed by the flag set; already loaded by the pre-scan
	noEInk      bool
	eink        bool
	force       bool
	forceColor  bool
	noColor     bool
	showVersion bool
	showHelp    bool
}

// defineEngineFlags registers --engine, -m/--model, -s/--scale.
func defineEngineFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.EnginePath, "engine", cfg.EnginePath, "Path to the enhancement engine executable")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Engine model identifier")
	fs.StringVar(&cfg.Model, "m", cfg.Model, "Same as --model")
	fs.IntVar(&cfg.Scale, "scale", cfg.Scale, "Enhancement magnification factor")
	fs.IntVar(&cfg.Scale, "s", cfg.Scale, "Same as --scale")
}

// defineOutputFlags registers --long-edge, --format, --quality, --resize-to-original, --eink/--no-eink.
func defineOutputFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.IntVar(&cfg.TargetLongEdge, "long-edge", cfg.TargetLongEdge, "Resize target for the longer image edge")
	fs.Var(&formatValue{&cfg.OutputFormat}, "format", "Output image format: jpeg | png")
	fs.IntVar(&cfg.OutputQuality, "quality", cfg.OutputQuality, "JPEG output quality (1-100)")
	fs.IntVar(&cfg.OutputQuality, "q", cfg.OutputQuality, "Same as --quality")
	fs.BoolVar(&cfg.ResizeToOriginal, "resize-to-original", cfg.ResizeToOriginal, "Restore each image to its original pixel dimensions")
	fs.BoolVar(&n.eink, "eink", false, "Rebuild as image-per-page e-ink book (default: on)")
	fs.BoolVar(&n.noEInk, "no-eink", false, "Preserve the source container structure instead")
}

// defineOrchestrationFlags registers -w/--workers, --retries, --batch-timeout, --job-timeout.
func defineOrchestrationFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Upper bound on concurrent engine processes")
	fs.IntVar(&cfg.Workers, "w", cfg.Workers, "Same as --workers")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Single-image retry attempts per failed image")
	fs.Var(&cfg.BatchTimeout, "batch-timeout", "Per-batch engine timeout (0 disables)")
	fs.Var(&cfg.JobTimeout, "job-timeout", "Per-container timeout (0 disables)")
}

// defineBehaviorFlags registers dry-run, force, strict, preserve-workdir, temp.
func defineBehaviorFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Report planned batches; do not invoke the engine")
	fs.BoolVar(&cfg.DryRun, "d", false, "Same as --dry-run")
	fs.BoolVar(&n.force, "force", false, "Reprocess containers that already have output")
	fs.BoolVar(&n.force, "f", false, "Same as --force")
	fs.BoolVar(&cfg.StrictMode, "strict", false, "Disable single-image retry fallbacks")
	fs.BoolVar(&cfg.PreserveWorkDir, "preserve-workdir", cfg.PreserveWorkDir, "Keep the job working directory after a fatal failure")
	fs.StringVar(&cfg.TempDir, "temp", cfg.TempDir, "Root directory for per-job working directories")
}

// defineDisplayFlags registers --color, --no-color, verbose, --check, --log, --config.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", false, "Same as --verbose")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Run system diagnostics and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "Append logs to file")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "Same as --log")
	fs.StringVar(&n.configPath, "config", "", "YAML config file (loaded before flags)")
	fs.StringVar(&n.configPath, "C", "", "Same as --config")
}

// defineUtilityFlags registers --version and --help (exit after printing).
func defineUtilityFlags(fs *flag.FlagSet, n *negatedFlags) {
	fs.BoolVar(&n.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&n.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&n.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&n.showHelp, "h", false, "Same as --help")
}

// applyNegatedFlags copies negated and override flag values into cfg (e.g. force -> SkipExisting=false).
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.noEInk {
		cfg.EInkLayout = false
	} else if n.eink {
		cfg.EInkLayout = true
	}
	if n.force {
		cfg.SkipExisting = false
	}
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

// parsePositionalArgs sets InputDir and OutputDir from the two positional args when not in CheckOnly mode.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	args := fs.Args()
	if cfg.CheckOnly {
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("need exactly input_dir and output_dir")
	}
	cfg.InputDir = NormalizeDirArg(args[0])
	cfg.OutputDir = NormalizeDirArg(args[1])
	return nil
}

// printUsage writes the help text to stderr. Column-aligned for readability.
func printUsage(fs *flag.FlagSet, version string) {
	const col1 = 30 // width of "  -x, --long-name <arg>  "
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "InkScale v" + version + " — e-ink targeted e-book image upscaler"},
		{"", ""},
		{"  inkscale [OPTIONS] <input_dir> <output_dir>", ""},
		{"", ""},
		{"Engine", ""},
		{"  --engine <path>", "Enhancement engine executable (default: final2x-core)"},
		{"  -m, --model <name>", "Engine model identifier"},
		{"  -s, --scale <n>", "Magnification factor (default: 4)"},
		{"", ""},
		{"Output", ""},
		{"  --long-edge <px>", "Resize target for the longer edge (default: 1872)"},
		{"  --format <jpeg|png>", "Output image format (default: jpeg)"},
		{"  -q, --quality <1-100>", "JPEG quality (default: 95)"},
		{"  --resize-to-original", "Restore original pixel dimensions"},
		{"  --eink / --no-eink", "Image-per-page e-ink layout (default: on)"},
		{"", ""},
		{"Orchestration", ""},
		{"  -w, --workers <n>", "Concurrent engine processes (default: 4)"},
		{"  --retries <n>", "Single-image retries per failed image (default: 2)"},
		{"  --batch-timeout <dur>", "Per-batch timeout, e.g. 10m (default: off)"},
		{"  --job-timeout <dur>", "Per-container timeout (default: off)"},
		{"", ""},
		{"Behavior", ""},
		{"  -f, --force", "Reprocess containers with existing output"},
		{"  -d, --dry-run", "Report planned batches without invoking the engine"},
		{"  --strict", "Disable retry fallbacks"},
		{"  --preserve-workdir", "Keep workdir after a fatal failure (diagnostics)"},
		{"  --temp <dir>", "Root for per-job working directories"},
		{"", ""},
		{"Display", ""},
		{"  --color / --no-color", "Force or disable colored logs"},
		{"  -v, --verbose", "Verbose output"},
		{"", ""},
		{"Utility", ""},
		{"  -C, --config <path>", "YAML config file"},
		{"  -l, --log <path>", "Append logs to file"},
		{"  -c, --check", "System diagnostics (engine, temp dir)"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(os.Stderr)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(os.Stderr, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(os.Stderr, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(os.Stderr, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}

// flag.Value adapter so the Format enum can be used with flag.Var.

type formatValue struct{ p *Format }

func (f *formatValue) String() string {
	if f.p == nil {
		return ""
	}
	return string(*f.p)
}

func (f *formatValue) Set(s string) error {
	switch strings.ToLower(s) {
	case "jpeg", "jpg":
		*f.p = FormatJPEG
	case "png":
		*f.p = FormatPNG
	default:
		return fmt.Errorf("invalid format %q (use 'jpeg' or 'png')", s)
	}
	return nil
}
