// Package pipeline ties the stages together: it discovers source containers,
// runs extraction, orchestration, and rebuild per job, and aggregates run
// statistics and the process exit code.
package pipeline

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// SourceKind distinguishes the supported container formats.
type SourceKind int

const (
	KindEPUB SourceKind = iota
	KindPDF
)

func (k SourceKind) String() string {
	if k == KindPDF {
		return "pdf"
	}
	return "epub"
}

// Job is one discovered source container and its output destination. The
// destination mirrors the source's position under the input directory and is
// always an .epub, so PDF sources convert on the way through.
type Job struct {
	SrcPath  string
	RelPath  string
	DestPath string
	Kind     SourceKind
	Size     int64
}

// Discover walks inputDir recursively and returns one job per .epub or .pdf
// file, sorted by relative path so runs process identical trees in identical
// order. Hidden files and directories are skipped.
func Discover(inputDir, outputDir string) ([]Job, error) {
	var jobs []Job
	err := filepath.WalkDir(inputDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && p != inputDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		var kind SourceKind
		switch strings.ToLower(filepath.Ext(name)) {
		case ".epub":
			kind = KindEPUB
		case ".pdf":
			kind = KindPDF
		default:
			return nil
		}

		rel, err := filepath.Rel(inputDir, p)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}

		dest := rel
		if kind == KindPDF {
			dest = strings.TrimSuffix(rel, filepath.Ext(rel)) + ".epub"
		}
		jobs = append(jobs, Job{
			SrcPath:  p,
			RelPath:  rel,
			DestPath: filepath.Join(outputDir, dest),
			Kind:     kind,
			Size:     fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan input directory: %w", err)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].RelPath < jobs[j].RelPath })
	return jobs, nil
}
