package pipeline

import (
	"time"

	"github.com/backmassage/inkscale/internal/display"
	"github.com/backmassage/inkscale/internal/logging"
)

// RunStats aggregates the outcome of one run across all jobs.
type RunStats struct {
	Jobs      int
	Completed int // Every image enhanced.
	Degraded  int // Rebuilt, but with at least one original substituted.
	Failed    int // No output produced.
	Skipped   int // Destination already existed.

	ImagesEnhanced    int
	ImagesSubstituted int

	BytesIn  int64
	BytesOut int64

	Elapsed time.Duration
}

// ExitCode maps the run outcome to the process exit code: 0 when every
// processed job completed cleanly, 1 when any job degraded or failed.
// Configuration and pre-flight errors exit 2 before a RunStats ever exists.
func (s *RunStats) ExitCode() int {
	if s.Failed > 0 || s.Degraded > 0 {
		return 1
	}
	return 0
}

// Report prints the end-of-run summary.
func (s *RunStats) Report(log *logging.Logger) {
	log.Info("Processed %d container(s) in %s", s.Jobs-s.Skipped, display.FormatDuration(s.Elapsed))
	if s.Skipped > 0 {
		log.Info("Skipped %d (output already exists)", s.Skipped)
	}
	if s.ImagesEnhanced > 0 || s.ImagesSubstituted > 0 {
		log.Info("Images: %d enhanced, %d substituted", s.ImagesEnhanced, s.ImagesSubstituted)
	}
	if s.BytesOut > 0 {
		log.Info("Size: %s -> %s (%s)", display.FormatBytes(s.BytesIn),
			display.FormatBytes(s.BytesOut), display.FormatBytesWithSign(s.BytesOut-s.BytesIn))
	}

	switch {
	case s.Failed > 0:
		log.Error("%d job(s) failed, %d degraded, %d completed", s.Failed, s.Degraded, s.Completed)
	case s.Degraded > 0:
		log.Warn("%d job(s) degraded, %d completed", s.Degraded, s.Completed)
	default:
		log.Success("All %d job(s) completed", s.Completed)
	}
}
