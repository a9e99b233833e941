// Command inkscale is the CLI entrypoint for the InkScale e-book upscaler.
//
// It parses flags, validates configuration and paths, and either runs
// system diagnostics (--check) or the extract/enhance/rebuild pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/backmassage/inkscale/internal/check"
	"github.com/backmassage/inkscale/internal/config"
	"github.com/backmassage/inkscale/internal/display"
	"github.com/backmassage/inkscale/internal/engine"
	"github.com/backmassage/inkscale/internal/logging"
	"github.com/backmassage/inkscale/internal/pipeline"
)

// version and commit are injected at build time via -ldflags.
// When built with plain "go build" (no make), these retain their defaults.
var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr via fmt. Configuration errors exit 2; job
	// failures later exit 1.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, version); err != nil {
		fmt.Fprintf(os.Stderr, "inkscale: %v\n", err)
		return 2
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "inkscale: %v\n", err)
		return 2
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inkscale: %v\n", err)
		return 2
	}
	defer log.Close()

	// Phase 2: Logger available; all output goes through log from here on.
	display.PrintBanner()

	if cfg.CheckOnly {
		if err := check.RunCheck(&cfg, log); err != nil {
			return 2
		}
		return 0
	}

	// Resolve and validate paths: input must exist, output is created if
	// needed, and output must not be inside input (prevents the run from
	// discovering its own output containers).
	inputAbs, err := absPath(cfg.InputDir)
	if err != nil {
		log.Error("Input not found: %s", cfg.InputDir)
		return 2
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Error("Cannot create output directory: %s", cfg.OutputDir)
		return 2
	}
	outputAbs, err := absPath(cfg.OutputDir)
	if err != nil {
		log.Error("Cannot resolve output path: %s", cfg.OutputDir)
		return 2
	}
	if err := cfg.ValidatePaths(inputAbs, outputAbs); err != nil {
		log.Error("%v", err)
		log.Error("Choose an output path outside: %s", cfg.InputDir)
		return 2
	}

	log.Info("=== InkScale v%s (%s) ===", version, commit)
	log.Info("In:  %s", cfg.InputDir)
	log.Info("Out: %s", cfg.OutputDir)
	if cfg.DryRun {
		log.Warn("DRY RUN: no files will be written")
	}
	log.Info("")

	// Fail fast if the engine executable or temp directory are unusable.
	enginePath, err := check.CheckDeps(&cfg)
	if err != nil {
		log.Error("%v", err)
		return 2
	}
	log.Debug(cfg.Verbose, "Engine resolved to %s", enginePath)

	// Phase 3: Signal handling. Cancel the context on SIGINT/SIGTERM so
	// running engine processes are killed and no partial output is left.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("Received interrupt, stopping…")
		cancel()
	}()

	// Phase 4: Run the pipeline (discover -> extract -> enhance -> rebuild).
	runner := &pipeline.Runner{
		Cfg:    &cfg,
		Log:    log,
		Engine: engine.NewCommand(enginePath),
	}
	stats, err := runner.Run(ctx)
	stats.Report(log)
	if err != nil {
		log.Error("Run aborted: %v", err)
		return 1
	}
	return stats.ExitCode()
}

// absPath returns the absolute, symlink-resolved path for safe comparison
// of input vs output directory hierarchies.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
