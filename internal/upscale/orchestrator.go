// Package upscale is the batch orchestration engine: it partitions extracted
// images across a bounded pool of worker slots, drives the external
// enhancement engine per batch, validates outputs, and applies the retry and
// degradation policy. It performs no pixel computation itself; it only
// supervises process lifecycles.
package upscale

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/backmassage/inkscale/internal/display"
	"github.com/backmassage/inkscale/internal/engine"
	"github.com/backmassage/inkscale/internal/logging"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Orchestrator runs the batch phase for one job. Fields are fixed before Run
// and never mutated by it.
type Orchestrator struct {
	Engine  engine.Engine
	Model   string
	Scale   int
	Workers int

	// Retries is the number of isolated single-image fallback invocations a
	// failed image gets before it is marked failed-final.
	Retries int

	// BatchTimeout bounds each engine process; 0 disables. A timed-out
	// process is killed and its images enter the standard retry path.
	BatchTimeout time.Duration

	Verbose bool
	Log     *logging.Logger
}

// Run partitions records into batches, dispatches one worker slot per batch,
// then retries failed images sequentially. Per-image failures are absorbed
// into record status; the returned error is non-nil only for cancellation or
// timeout of the job context, in which case live engine processes have been
// killed and unfinished records marked failed.
//
// Each batch owns its records exclusively and each record claims a distinct
// pre-assigned output subpath, so slots share no mutable state and need no
// locking.
func (o *Orchestrator) Run(ctx context.Context, workDir string, records []*ImageRecord) error {
	if len(records) == 0 {
		return nil
	}

	upscaledDir := filepath.Join(workDir, "upscaled")
	batches := Partition(records, o.Workers)
	o.Log.Info("Dispatching %d images across %d worker slots", len(records), len(batches))

	// All batch directories are created before any slot launches, so a
	// setup failure never strands running engine processes.
	dirs := make([]string, len(batches))
	for i := range batches {
		dirs[i] = filepath.Join(upscaledDir, fmt.Sprintf("batch_%d", i))
		if err := os.MkdirAll(dirs[i], 0o755); err != nil {
			return fmt.Errorf("create batch directory: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			o.runBatch(gctx, i, dirs[i], batch)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		markUnfinished(records, err)
		return err
	}

	// Isolated single-image fallback for anything a batch could not produce.
	for _, rec := range records {
		if rec.Status != StatusFailed {
			continue
		}
		if err := ctx.Err(); err != nil {
			markUnfinished(records, err)
			return err
		}
		o.retryRecord(ctx, upscaledDir, rec)
	}
	return nil
}

// runBatch drives one worker slot: a single engine process covering every
// image of the batch, followed by per-image output validation. Failure is
// per-image, never batch-fatal: a bad image leaves its batch mates alone.
func (o *Orchestrator) runBatch(ctx context.Context, slot int, dir string, batch []*ImageRecord) {
	inputs := make([]string, len(batch))
	for i, rec := range batch {
		rec.Status = StatusDispatched
		rec.Attempts++
		inputs[i] = rec.LocalPath
	}

	start := time.Now()
	err := o.enhanceBounded(ctx, engine.Request{
		Inputs:    inputs,
		OutputDir: dir,
		Model:     o.Model,
		Scale:     o.Scale,
	})
	elapsed := time.Since(start)
	if err != nil {
		o.Log.Debug(o.Verbose, "slot %d: engine invocation failed: %v", slot, err)
	}

	// Validate every image of the batch regardless of exit status; engines
	// can produce partial output before dying.
	ok := 0
	for _, rec := range batch {
		out, lerr := engine.LocateOutput(dir, rec.LocalPath, o.Scale)
		if lerr == nil {
			lerr = validateOutput(out)
		}
		if lerr != nil {
			rec.Status = StatusFailed
			rec.LastError = failureReason(err, lerr)
			continue
		}
		rec.Status = StatusCompleted
		rec.OutputPath = out
		ok++
	}

	o.Log.Batch("slot %d: %d/%d enhanced in %s", slot, ok, len(batch), display.FormatDuration(elapsed))
}

// retryRecord re-invokes the engine for a single failed image, isolated from
// its original batch, up to the configured retry budget.
func (o *Orchestrator) retryRecord(ctx context.Context, upscaledDir string, rec *ImageRecord) {
	stem := strings.TrimSuffix(filepath.Base(rec.LocalPath), filepath.Ext(rec.LocalPath))

	for attempt := 1; attempt <= o.Retries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		rec.Status = StatusRetrying
		rec.Attempts++

		dir := filepath.Join(upscaledDir, fmt.Sprintf("%s_retry%d", stem, attempt))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			rec.LastError = err.Error()
			continue
		}

		err := o.enhanceBounded(ctx, engine.Request{
			Inputs:    []string{rec.LocalPath},
			OutputDir: dir,
			Model:     o.Model,
			Scale:     o.Scale,
		})

		out, lerr := engine.LocateOutput(dir, rec.LocalPath, o.Scale)
		if lerr == nil {
			lerr = validateOutput(out)
		}
		if lerr == nil {
			rec.Status = StatusCompleted
			rec.OutputPath = out
			o.Log.Debug(o.Verbose, "retry %d recovered %s", attempt, rec.RelPath)
			return
		}
		rec.LastError = failureReason(err, lerr)
		o.Log.Debug(o.Verbose, "retry %d failed for %s: %s", attempt, rec.RelPath, rec.LastError)
	}

	rec.Status = StatusFailedFinal
	o.Log.Warn("Image %s failed after %d attempts; original will be substituted", rec.RelPath, rec.Attempts)
}

// enhanceBounded runs one engine invocation under the per-process timeout.
// Batch and retry invocations both go through it, so a hung engine is killed
// after BatchTimeout on either path.
func (o *Orchestrator) enhanceBounded(ctx context.Context, req engine.Request) error {
	if o.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.BatchTimeout)
		defer cancel()
	}
	return o.Engine.Enhance(ctx, req)
}

// validateOutput checks the engine's product: the file exists, is non-empty,
// and decodes as an image.
func validateOutput(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return fmt.Errorf("engine output %s is empty", filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("engine output %s does not decode: %w", filepath.Base(path), err)
	}
	return nil
}

// failureReason prefers the engine's own error over the validation detail.
func failureReason(engineErr, validationErr error) string {
	if engineErr != nil {
		return engineErr.Error()
	}
	return validationErr.Error()
}

// markUnfinished moves every non-terminal record to failed on cancellation,
// so the rebuilder substitutes originals if the caller still rebuilds.
func markUnfinished(records []*ImageRecord, cause error) {
	for _, rec := range records {
		if !rec.Status.Terminal() {
			rec.Status = StatusFailed
			rec.LastError = cause.Error()
		}
	}
}
