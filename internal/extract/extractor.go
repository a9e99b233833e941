// Package extract reads a source container, captures its manifest, and copies
// its raster images into an isolated per-job working area as the image set
// the orchestrator will process.
package extract

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/backmassage/inkscale/internal/epub"
	"github.com/backmassage/inkscale/internal/upscale"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// minEdge is the minimum width/height for an image to be worth enhancing.
// Smaller entries (icons, ornaments) pass through the rebuild untouched.
const minEdge = 100

// Result is the extraction outcome handed to the orchestrator and rebuilder.
type Result struct {
	Manifest *epub.Manifest
	Images   []*upscale.ImageRecord

	// Synthetic marks a manifest synthesized from a non-EPUB source (PDF);
	// the rebuild must then use the e-ink layout, as there is no container
	// structure to preserve.
	Synthetic bool
}

// NewWorkDir creates the per-job working directory under root, with the
// images/ and upscaled/ subdirectories the pipeline stages use. The caller
// owns removal; the pipeline removes it on every job exit path.
func NewWorkDir(root string) (string, error) {
	dir := filepath.Join(root, "inkscale-job-"+uuid.NewString())
	for _, sub := range []string{"images", "upscaled"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create working directory: %w", err)
		}
	}
	return dir, nil
}

// FromEPUB captures the container's manifest and extracts its raster images
// into workDir/images. Records are ordered by manifest declaration order,
// which keeps batch partitioning deterministic across runs.
func FromEPUB(srcPath, workDir string) (*Result, error) {
	r, err := epub.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	man := r.Manifest
	res := &Result{Manifest: man}

	page := 0
	seen := make(map[string]bool)
	for _, it := range man.RasterImages() {
		entry := man.EntryPath(it.Href)
		// Manifests can declare the same archive entry under more than one
		// href spelling; one record per entry keeps the merge-by-path
		// identity intact.
		if seen[entry] {
			continue
		}
		seen[entry] = true
		data, err := r.ReadFile(entry)
		if err != nil {
			return nil, fmt.Errorf("read declared image %s: %w", entry, err)
		}

		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			// Declared as an image but not decodable; leave it untouched
			// in the rebuilt container rather than failing the job.
			continue
		}
		if cfg.Width < minEdge || cfg.Height < minEdge {
			continue
		}

		page++
		local := filepath.Join(workDir, "images",
			fmt.Sprintf("page_%04d%s", page, extFor(entry)))
		if err := os.WriteFile(local, data, 0o644); err != nil {
			return nil, fmt.Errorf("stage image %s: %w", entry, err)
		}

		res.Images = append(res.Images, &upscale.ImageRecord{
			RelPath:   entry,
			LocalPath: local,
			Width:     cfg.Width,
			Height:    cfg.Height,
			IsCover:   man.IsCoverItem(it),
			Status:    upscale.StatusPending,
		})
	}

	return res, nil
}

// extFor returns the entry's extension, defaulting to .png for extensionless
// entries so the staged copy still sniffs correctly downstream.
func extFor(entry string) string {
	if ext := path.Ext(entry); ext != "" {
		return ext
	}
	return ".png"
}
