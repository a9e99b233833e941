package extract

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/backmassage/inkscale/internal/epub"
	"github.com/backmassage/inkscale/internal/upscale"
)

// FromPDF extracts the embedded page images of a PDF source into
// workDir/images and synthesizes a manifest (title from the filename).
// Comic/manga PDFs carry one full-page raster per page, so extracting the
// embedded images recovers the pages without rasterizing content streams.
func FromPDF(srcPath, workDir string) (*Result, error) {
	extractDir := filepath.Join(workDir, "pdf")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction directory: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractImagesFile(srcPath, extractDir, nil, conf); err != nil {
		return nil, fmt.Errorf("extract images from %s: %w", filepath.Base(srcPath), err)
	}

	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return nil, fmt.Errorf("list extracted images: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	// pdfcpu names extracted files by page and object number; lexicographic
	// order matches page order for its zero-padded naming.
	sort.Strings(names)

	title := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	res := &Result{
		Manifest:  &epub.Manifest{Title: title, Language: "en"},
		Synthetic: true,
	}

	page := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(extractDir, name))
		if err != nil {
			return nil, fmt.Errorf("read extracted image %s: %w", name, err)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil || cfg.Width < minEdge || cfg.Height < minEdge {
			continue
		}

		page++
		local := filepath.Join(workDir, "images",
			fmt.Sprintf("page_%04d%s", page, extFor(name)))
		if err := os.Rename(filepath.Join(extractDir, name), local); err != nil {
			return nil, fmt.Errorf("stage image %s: %w", name, err)
		}

		res.Images = append(res.Images, &upscale.ImageRecord{
			RelPath:   fmt.Sprintf("images/page_%04d%s", page, extFor(name)),
			LocalPath: local,
			Width:     cfg.Width,
			Height:    cfg.Height,
			IsCover:   page == 1,
			Status:    upscale.StatusPending,
		})
	}

	return res, nil
}
