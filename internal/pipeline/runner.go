package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/backmassage/inkscale/internal/config"
	"github.com/backmassage/inkscale/internal/display"
	"github.com/backmassage/inkscale/internal/engine"
	"github.com/backmassage/inkscale/internal/epub"
	"github.com/backmassage/inkscale/internal/extract"
	"github.com/backmassage/inkscale/internal/logging"
	"github.com/backmassage/inkscale/internal/rebuild"
	"github.com/backmassage/inkscale/internal/upscale"
)

// Runner executes one full run over the discovered containers.
type Runner struct {
	Cfg    *config.Config
	Log    *logging.Logger
	Engine engine.Engine
}

// Run discovers the source containers and processes them sequentially; only
// the image batches within a job run concurrently. It returns statistics for
// the exit code and final report. A non-nil error means the run itself was
// cut short (discovery failure or cancellation), not that a job failed.
func (r *Runner) Run(ctx context.Context) (*RunStats, error) {
	start := time.Now()
	stats := &RunStats{}

	jobs, err := Discover(r.Cfg.InputDir, r.Cfg.OutputDir)
	if err != nil {
		return stats, err
	}
	stats.Jobs = len(jobs)
	if len(jobs) == 0 {
		r.Log.Warn("No .epub or .pdf files found under %s", r.Cfg.InputDir)
		return stats, nil
	}
	r.Log.Info("Found %d container(s) under %s", len(jobs), r.Cfg.InputDir)

	for i, job := range jobs {
		if ctx.Err() != nil {
			r.Log.Warn("Interrupted; %d container(s) left unprocessed", len(jobs)-i)
			stats.Elapsed = time.Since(start)
			return stats, ctx.Err()
		}

		if r.Cfg.DryRun {
			r.planJob(i+1, len(jobs), job)
			continue
		}

		if r.Cfg.SkipExisting {
			if _, err := os.Stat(job.DestPath); err == nil {
				r.Log.Info("[%d/%d] %s already processed, skipping", i+1, len(jobs), job.RelPath)
				stats.Skipped++
				continue
			}
		}

		r.processJob(ctx, i+1, len(jobs), job, stats)
	}

	stats.Elapsed = time.Since(start)
	return stats, nil
}

// planJob logs what a real run would do for one container without touching
// the engine or the filesystem.
func (r *Runner) planJob(idx, total int, job Job) {
	r.Log.Info("[%d/%d] %s (%s, %s) -> %s", idx, total, job.RelPath, job.Kind,
		display.FormatBytes(job.Size), job.DestPath)

	if job.Kind == KindPDF {
		r.Log.Info("  embedded page images determined at extraction")
		return
	}
	rd, err := epub.Open(job.SrcPath)
	if err != nil {
		r.Log.Warn("  cannot read container: %v", err)
		return
	}
	defer rd.Close()

	n := len(rd.Manifest.RasterImages())
	sizes := upscale.BatchSizes(n, r.Cfg.Workers)
	r.Log.Info("  %d raster image(s) in %d batch(es) %v", n, len(sizes), sizes)
}

// processJob runs extraction, orchestration, and rebuild for one container,
// folding its outcome into stats. Job failures never abort the run.
func (r *Runner) processJob(ctx context.Context, idx, total int, job Job, stats *RunStats) {
	r.Log.Info("[%d/%d] %s (%s, %s)", idx, total, job.RelPath, job.Kind,
		display.FormatBytes(job.Size))
	start := time.Now()

	if r.Cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Cfg.JobTimeout.Std())
		defer cancel()
	}

	workDir, err := extract.NewWorkDir(r.Cfg.TempDir)
	if err != nil {
		r.failJob(job, stats, err)
		return
	}
	failed := false
	defer func() {
		if failed && r.Cfg.PreserveWorkDir {
			r.Log.Warn("Working directory preserved at %s", workDir)
			return
		}
		os.RemoveAll(workDir)
	}()

	var res *extract.Result
	switch job.Kind {
	case KindPDF:
		res, err = extract.FromPDF(job.SrcPath, workDir)
	default:
		res, err = extract.FromEPUB(job.SrcPath, workDir)
	}
	if err != nil {
		failed = true
		r.failJob(job, stats, err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(job.DestPath), 0o755); err != nil {
		failed = true
		r.failJob(job, stats, err)
		return
	}

	if len(res.Images) == 0 {
		if job.Kind == KindPDF {
			failed = true
			r.failJob(job, stats, fmt.Errorf("no usable page images in %s", job.RelPath))
			return
		}
		r.Log.Warn("No images to enhance in %s; copying through", job.RelPath)
		if err := copyFile(job.SrcPath, job.DestPath); err != nil {
			failed = true
			r.failJob(job, stats, err)
			return
		}
		stats.Completed++
		r.accumulateSizes(job, stats)
		return
	}
	r.Log.Debug(r.Cfg.Verbose, "Extracted %d image(s) into %s", len(res.Images), workDir)

	orch := &upscale.Orchestrator{
		Engine:       r.Engine,
		Model:        r.Cfg.Model,
		Scale:        r.Cfg.Scale,
		Workers:      r.Cfg.Workers,
		Retries:      r.Cfg.EffectiveRetries(),
		BatchTimeout: r.Cfg.BatchTimeout.Std(),
		Verbose:      r.Cfg.Verbose,
		Log:          r.Log,
	}
	if err := orch.Run(ctx, workDir, res.Images); err != nil {
		failed = true
		r.failJob(job, stats, err)
		return
	}

	builder := &rebuild.Builder{
		Transform: rebuild.Transform{
			LongEdge:         r.Cfg.TargetLongEdge,
			ResizeToOriginal: r.Cfg.ResizeToOriginal,
			Format:           r.Cfg.OutputFormat,
			Quality:          r.Cfg.OutputQuality,
		},
		Verbose: r.Cfg.Verbose,
		Log:     r.Log,
	}
	if r.Cfg.EInkLayout || res.Synthetic {
		err = builder.BuildEInk(job.DestPath, res.Manifest, res.Images)
	} else {
		err = builder.PreserveStructure(job.SrcPath, job.DestPath, res.Images)
	}
	if err != nil {
		failed = true
		r.failJob(job, stats, err)
		return
	}

	enhanced, substituted := upscale.Counts(res.Images)
	stats.ImagesEnhanced += enhanced
	stats.ImagesSubstituted += substituted
	r.accumulateSizes(job, stats)

	elapsed := display.FormatDuration(time.Since(start))
	if substituted > 0 {
		stats.Degraded++
		r.Log.Warn("Rebuilt %s with %d of %d original(s) substituted (%s)",
			filepath.Base(job.DestPath), substituted, len(res.Images), elapsed)
		return
	}
	stats.Completed++
	r.Log.Success("Enhanced %s: %d image(s) in %s", filepath.Base(job.DestPath), enhanced, elapsed)
}

func (r *Runner) failJob(job Job, stats *RunStats, err error) {
	stats.Failed++
	r.Log.Error("Failed %s: %v", job.RelPath, err)
}

// accumulateSizes folds source and destination sizes into the run totals and
// logs the per-job size delta.
func (r *Runner) accumulateSizes(job Job, stats *RunStats) {
	fi, err := os.Stat(job.DestPath)
	if err != nil {
		return
	}
	stats.BytesIn += job.Size
	stats.BytesOut += fi.Size()
	r.Log.Info("Size: %s -> %s (%s)", display.FormatBytes(job.Size),
		display.FormatBytes(fi.Size()), display.FormatBytesWithSign(fi.Size()-job.Size))
}

// copyFile copies src to dest via a .partial sibling renamed into place.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
