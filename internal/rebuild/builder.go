// Package rebuild assembles the output container from the original source and
// the orchestrator's per-image results. Two layouts exist: a
// structure-preserving rebuild that keeps every non-image entry byte for byte,
// and an image-per-page layout for e-ink readers. Both substitute the original
// image wherever enhancement failed, so the output is always a complete book.
package rebuild

import (
	"errors"
	"fmt"

	"github.com/backmassage/inkscale/internal/epub"
	"github.com/backmassage/inkscale/internal/logging"
	"github.com/backmassage/inkscale/internal/upscale"
)

// ErrInconsistent reports an internal mismatch between the extraction
// manifest and the source container discovered mid-rebuild.
var ErrInconsistent = errors.New("rebuild: source container changed since extraction")

// Builder writes the output container for one job.
type Builder struct {
	Transform Transform
	Verbose   bool
	Log       *logging.Logger
}

// PreserveStructure rebuilds the container at destPath from the source,
// replacing completed images with their transformed enhancements and carrying
// every other entry through unchanged. Failed-final images keep their original
// bytes. The destination appears atomically on success and not at all on
// failure.
func (b *Builder) PreserveStructure(srcPath, destPath string, records []*upscale.ImageRecord) error {
	r, err := epub.Open(srcPath)
	if err != nil {
		return err
	}
	defer r.Close()

	mediaByPath := make(map[string]string)
	for _, it := range r.Manifest.Items {
		mediaByPath[r.Manifest.EntryPath(it.Href)] = it.MediaType
	}
	results := upscale.Results(records)
	replaced := 0

	w, err := epub.NewWriter(destPath)
	if err != nil {
		return err
	}

	for _, name := range r.Entries() {
		if name == "mimetype" || name == "" || name[len(name)-1] == '/' {
			continue
		}
		data, err := r.ReadFile(name)
		if err != nil {
			w.Abort()
			return fmt.Errorf("%w: %s: %v", ErrInconsistent, name, err)
		}

		if rec, ok := results[name]; ok && rec.Status == upscale.StatusCompleted {
			out, err := b.Transform.EntryBytes(rec, mediaByPath[name])
			if err != nil {
				w.Abort()
				return err
			}
			b.Log.Debug(b.Verbose, "replaced %s (%d -> %d bytes)", name, len(data), len(out))
			data = out
			replaced++
		}

		if err := w.Add(name, data); err != nil {
			w.Abort()
			return err
		}
	}

	// Results are merged by path, so the check counts distinct completed
	// paths; duplicate records for one entry are not a mismatch.
	if want := countCompleted(records); replaced != want {
		w.Abort()
		return fmt.Errorf("%w: %d completed images, %d entries replaced",
			ErrInconsistent, want, replaced)
	}
	return w.Commit()
}

func countCompleted(records []*upscale.ImageRecord) int {
	paths := make(map[string]bool)
	for _, rec := range records {
		if rec.Status == upscale.StatusCompleted {
			paths[rec.RelPath] = true
		}
	}
	return len(paths)
}
