// Package check verifies the external pieces the pipeline depends on before
// any container is touched: the enhancement engine executable and a usable
// temp directory. It backs both the --check diagnostics command and the
// pre-flight gate of a normal run.
package check

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/backmassage/inkscale/internal/config"
	"github.com/backmassage/inkscale/internal/logging"
)

var (
	ErrEngineNotFound      = errors.New("enhancement engine not found")
	ErrEngineNotExecutable = errors.New("enhancement engine is not executable")
	ErrTempDirUnusable     = errors.New("temp directory is not usable")
)

// ResolveEngine resolves the configured engine to an absolute executable
// path. Bare names are looked up on PATH; explicit paths are checked
// directly.
func ResolveEngine(cfg *config.Config) (string, error) {
	p := cfg.EnginePath
	if !strings.ContainsRune(p, os.PathSeparator) {
		found, err := exec.LookPath(p)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not on PATH", ErrEngineNotFound, p)
		}
		p = found
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineNotFound, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrEngineNotFound, abs)
	}
	if fi.IsDir() || fi.Mode()&0o111 == 0 {
		return "", fmt.Errorf("%w: %s", ErrEngineNotExecutable, abs)
	}
	return abs, nil
}

// checkTempDir verifies the working-directory root exists and accepts writes.
func checkTempDir(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrTempDirUnusable, dir)
	}
	probe, err := os.CreateTemp(dir, "inkscale-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTempDirUnusable, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// CheckDeps is the pre-flight gate run before any job starts. It returns the
// resolved engine path so the pipeline invokes exactly what was verified.
func CheckDeps(cfg *config.Config) (string, error) {
	engine, err := ResolveEngine(cfg)
	if err != nil {
		return "", err
	}
	if err := checkTempDir(cfg.TempDir); err != nil {
		return "", err
	}
	return engine, nil
}

// RunCheck prints the --check diagnostics report. It runs every probe rather
// than stopping at the first failure, and returns an error if any probe
// failed.
func RunCheck(cfg *config.Config, log *logging.Logger) error {
	var failed bool

	engine, err := ResolveEngine(cfg)
	if err != nil {
		log.Error("Engine: %v", err)
		failed = true
	} else {
		log.Success("Engine: %s", engine)
	}

	if err := checkTempDir(cfg.TempDir); err != nil {
		log.Error("Temp dir: %v", err)
		failed = true
	} else {
		log.Success("Temp dir: %s", cfg.TempDir)
	}

	log.Info("Model: %s (scale %dx)", cfg.Model, cfg.Scale)
	log.Info("Workers: %d, retries: %d", cfg.Workers, cfg.EffectiveRetries())
	if cfg.EInkLayout {
		log.Info("Layout: image-per-page, long edge %dpx, %s output",
			cfg.TargetLongEdge, cfg.OutputFormat)
	} else {
		log.Info("Layout: preserve structure")
	}

	if failed {
		return errors.New("one or more dependency checks failed")
	}
	return nil
}
