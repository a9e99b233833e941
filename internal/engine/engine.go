// Package engine drives the external image-enhancement executable. The
// engine is opaque: it consumes a YAML task document naming input images, an
// output directory, a model, and a scale, and signals success purely through
// its exit code. Enhanced images appear under <output dir>/outputs.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Request describes one engine invocation: a set of input images enhanced
// with the same model and scale into one output directory.
type Request struct {
	Inputs    []string // Absolute paths of staged source images.
	OutputDir string   // Directory the engine writes into (outputs/ appears inside).
	Model     string
	Scale     int
}

// Engine is the invocation contract. The orchestrator only depends on this
// interface, so tests substitute stub engines without spawning processes.
type Engine interface {
	Enhance(ctx context.Context, req Request) error
}

// Command invokes the engine as an OS-level process per request.
type Command struct {
	Path string // Engine executable path.
}

// NewCommand returns a process-spawning engine for the given executable.
func NewCommand(path string) *Command {
	return &Command{Path: path}
}

// taskDocument is the YAML task file the engine consumes.
type taskDocument struct {
	Device      string   `yaml:"device"`
	InputPath   []string `yaml:"input_path"`
	OutputPath  string   `yaml:"output_path"`
	Model       string   `yaml:"pretrained_model_name"`
	TargetScale int      `yaml:"target_scale"`
}

// Enhance writes the task file into the request's output directory and runs
// the engine process, killing it if ctx is cancelled or times out. A non-zero
// exit is reported with the tail of stderr; the reason is otherwise opaque.
func (c *Command) Enhance(ctx context.Context, req Request) error {
	taskPath, err := writeTaskFile(req)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, c.Path, "--YAML", taskPath, "--NOTOPENFOLDER")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("engine exited: %w (%s)", err, lastLine(stderr.String()))
	}
	return nil
}

// LocateOutput resolves the enhanced file the engine produced for input.
// Engines name outputs after the input basename, sometimes prefixed with the
// scale (e.g. "4x-page_0001.png"), and may change the extension.
func LocateOutput(outputDir, input string, scale int) (string, error) {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	outputs := filepath.Join(outputDir, "outputs")

	patterns := []string{
		fmt.Sprintf("%dx-%s.*", scale, stem),
		stem + ".*",
		base,
	}
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(outputs, p))
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("no engine output for %s in %s", base, outputs)
}

func writeTaskFile(req Request) (string, error) {
	doc := taskDocument{
		Device:      "auto",
		InputPath:   req.Inputs,
		OutputPath:  req.OutputDir,
		Model:       req.Model,
		TargetScale: req.Scale,
	}
	data, err := marshalTask(doc)
	if err != nil {
		return "", fmt.Errorf("encode engine task: %w", err)
	}
	path := filepath.Join(req.OutputDir, "task.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write engine task: %w", err)
	}
	return path, nil
}

// lastLine returns the final non-empty stderr line for compact error context.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return "no stderr output"
}
