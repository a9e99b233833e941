package upscale

// Status is the per-image processing state. Transitions:
// Pending → Dispatched → {Completed | Failed};
// Failed → Retrying → {Completed | FailedFinal}.
// Completed and FailedFinal are terminal.
type Status int

const (
	StatusPending Status = iota
	StatusDispatched
	StatusCompleted
	StatusFailed
	StatusRetrying
	StatusFailedFinal
)

var statusNames = [...]string{
	StatusPending:     "pending",
	StatusDispatched:  "dispatched",
	StatusCompleted:   "completed",
	StatusFailed:      "failed",
	StatusRetrying:    "retrying",
	StatusFailedFinal: "failed-final",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailedFinal
}

// ImageRecord is one embedded image moving through the batch phase. The
// orchestrator owns records exclusively while it runs; afterwards they are
// handed read-only to the rebuilder. RelPath is the stable identity key:
// results are always merged by it, never by batch index or worker slot.
type ImageRecord struct {
	RelPath   string // Original archive-relative path inside the container.
	LocalPath string // Extracted copy in the job working area.
	Width     int    // Original pixel dimensions.
	Height    int
	IsCover   bool

	Status     Status
	OutputPath string // Enhanced image path once produced.
	Attempts   int    // Engine invocations so far (initial batch + retries).
	LastError  string // Opaque reason from the most recent failure.
}

// Results returns the records keyed by original relative path. Merge order
// therefore has no dependency on scheduling order or which worker finished
// first.
func Results(records []*ImageRecord) map[string]*ImageRecord {
	out := make(map[string]*ImageRecord, len(records))
	for _, rec := range records {
		out[rec.RelPath] = rec
	}
	return out
}

// Counts tallies terminal outcomes: enhanced images and images that will be
// substituted with their originals.
func Counts(records []*ImageRecord) (completed, substituted int) {
	for _, rec := range records {
		switch rec.Status {
		case StatusCompleted:
			completed++
		case StatusFailedFinal:
			substituted++
		}
	}
	return completed, substituted
}
