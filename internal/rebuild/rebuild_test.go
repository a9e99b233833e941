package rebuild

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/backmassage/inkscale/internal/config"
	"github.com/backmassage/inkscale/internal/epub"
	"github.com/backmassage/inkscale/internal/logging"
	"github.com/backmassage/inkscale/internal/upscale"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testBuilder(t *testing.T, tr Transform) *Builder {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ColorMode = config.ColorNever
	log, err := logging.NewLogger(&cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return &Builder{Transform: tr, Log: log}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name     string
		w, h     int
		longEdge int
		ww, wh   int
	}{
		{"landscape shrink", 4000, 3000, 1872, 1872, 1404},
		{"portrait shrink", 3000, 4000, 1872, 1404, 1872},
		{"already smaller", 1000, 800, 1872, 1000, 800},
		{"exact fit", 1872, 936, 1872, 1872, 936},
		{"disabled", 4000, 3000, 0, 4000, 3000},
		{"square", 4000, 4000, 1000, 1000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, gh := fitWithin(tt.w, tt.h, tt.longEdge)
			if gw != tt.ww || gh != tt.wh {
				t.Errorf("fitWithin(%d, %d, %d) = %dx%d, want %dx%d",
					tt.w, tt.h, tt.longEdge, gw, gh, tt.ww, tt.wh)
			}
		})
	}
}

func TestScaleImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 80))
	dst := scaleImage(src, 50, 40)
	if b := dst.Bounds(); b.Dx() != 50 || b.Dy() != 40 {
		t.Errorf("scaled bounds = %v", b)
	}
	// Identity sizes must not reallocate.
	if same := scaleImage(src, 100, 80); same != image.Image(src) {
		t.Error("identity scale returned a new image")
	}
}

func TestEntryBytes_PassThrough(t *testing.T) {
	dir := t.TempDir()
	enhanced := pngBytes(t, 400, 320)
	rec := &upscale.ImageRecord{
		RelPath:    "OEBPS/images/p1.png",
		Width:      100,
		Height:     80,
		Status:     upscale.StatusCompleted,
		OutputPath: writeFile(t, dir, "out.png", enhanced),
	}

	// No resize needed, declared format matches: bytes must be untouched.
	tr := Transform{LongEdge: 1872, Format: config.FormatJPEG, Quality: 90}
	got, err := tr.EntryBytes(rec, "image/png")
	if err != nil {
		t.Fatalf("EntryBytes: %v", err)
	}
	if !bytes.Equal(got, enhanced) {
		t.Error("pass-through re-encoded the engine output")
	}
}

func TestEntryBytes_ResizeToOriginal(t *testing.T) {
	dir := t.TempDir()
	rec := &upscale.ImageRecord{
		RelPath:    "OEBPS/images/p1.png",
		Width:      100,
		Height:     80,
		Status:     upscale.StatusCompleted,
		OutputPath: writeFile(t, dir, "out.png", pngBytes(t, 400, 320)),
	}

	tr := Transform{ResizeToOriginal: true, Format: config.FormatJPEG, Quality: 90}
	got, err := tr.EntryBytes(rec, "image/png")
	if err != nil {
		t.Fatalf("EntryBytes: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 80 {
		t.Errorf("result dims = %dx%d, want 100x80", cfg.Width, cfg.Height)
	}
	if format != "png" {
		t.Errorf("result format = %q, want declared png", format)
	}
}

func TestEntryBytes_KeepsDeclaredFormat(t *testing.T) {
	dir := t.TempDir()
	rec := &upscale.ImageRecord{
		RelPath:    "OEBPS/images/p1.jpg",
		Width:      100,
		Height:     80,
		Status:     upscale.StatusCompleted,
		OutputPath: writeFile(t, dir, "out.png", pngBytes(t, 200, 160)),
	}

	// Engine produced PNG for a declared-JPEG entry: must re-encode.
	tr := Transform{Format: config.FormatPNG, Quality: 90}
	got, err := tr.EntryBytes(rec, "image/jpeg")
	if err != nil {
		t.Fatalf("EntryBytes: %v", err)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("result format = %q, want jpeg", format)
	}
}

// --- container fixtures ---

func writeBookFixture(t *testing.T, images map[string][]byte, extras map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	zw := zip.NewWriter(f)
	add := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("fixture entry %s: %v", name, err)
		}
		w.Write(data)
	}

	add("mimetype", []byte(epub.Mimetype))
	add("META-INF/container.xml", []byte(`<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
<rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`))

	var opf bytes.Buffer
	opf.WriteString(`<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
<metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
<dc:title>Fixture</dc:title><dc:language>en</dc:language>
</metadata>
<manifest>
`)
	i := 0
	for name, data := range images {
		fmt.Fprintf(&opf, `<item id="i%d" href="%s" media-type="image/png"/>`+"\n", i, name)
		add("OEBPS/"+name, data)
		i++
	}
	opf.WriteString("</manifest>\n<spine/>\n</package>\n")
	add("OEBPS/content.opf", opf.Bytes())
	for name, data := range extras {
		add(name, data)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
	f.Close()
	return path
}

func readEntry(t *testing.T, archive, name string) []byte {
	t.Helper()
	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("open %s: %v", archive, err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("open entry %s: %v", name, err)
			}
			defer rc.Close()
			var buf bytes.Buffer
			buf.ReadFrom(rc)
			return buf.Bytes()
		}
	}
	t.Fatalf("entry %s not found in %s", name, archive)
	return nil
}

func TestPreserveStructure(t *testing.T) {
	workDir := t.TempDir()
	original1 := pngBytes(t, 150, 200)
	original2 := pngBytes(t, 160, 210)
	css := []byte("body { margin: 0 }")

	src := writeBookFixture(t,
		map[string][]byte{"images/p1.png": original1, "images/p2.png": original2},
		map[string][]byte{"OEBPS/style.css": css})

	enhanced := pngBytes(t, 600, 800)
	records := []*upscale.ImageRecord{
		{
			RelPath:    "OEBPS/images/p1.png",
			Width:      150,
			Height:     200,
			Status:     upscale.StatusCompleted,
			OutputPath: writeFile(t, workDir, "enhanced1.png", enhanced),
		},
		{
			RelPath: "OEBPS/images/p2.png",
			Width:   160,
			Height:  210,
			Status:  upscale.StatusFailedFinal,
		},
	}

	dest := filepath.Join(t.TempDir(), "out.epub")
	b := testBuilder(t, Transform{Format: config.FormatJPEG, Quality: 90})
	if err := b.PreserveStructure(src, dest, records); err != nil {
		t.Fatalf("PreserveStructure: %v", err)
	}

	if !bytes.Equal(readEntry(t, dest, "OEBPS/images/p1.png"), enhanced) {
		t.Error("completed entry was not replaced with the enhanced bytes")
	}
	if !bytes.Equal(readEntry(t, dest, "OEBPS/images/p2.png"), original2) {
		t.Error("failed-final entry was not substituted with the original bytes")
	}
	if !bytes.Equal(readEntry(t, dest, "OEBPS/style.css"), css) {
		t.Error("non-image entry changed")
	}
	if !bytes.Equal(readEntry(t, dest, "OEBPS/content.opf"),
		readEntry(t, src, "OEBPS/content.opf")) {
		t.Error("package document changed")
	}

	zr, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("open result: %v", err)
	}
	defer zr.Close()
	if zr.File[0].Name != "mimetype" || zr.File[0].Method != zip.Store {
		t.Errorf("first entry = %q (method %d)", zr.File[0].Name, zr.File[0].Method)
	}
}

func TestPreserveStructure_DetectsInconsistency(t *testing.T) {
	workDir := t.TempDir()
	src := writeBookFixture(t,
		map[string][]byte{"images/p1.png": pngBytes(t, 150, 200)}, nil)

	records := []*upscale.ImageRecord{{
		RelPath:    "OEBPS/images/ghost.png",
		Status:     upscale.StatusCompleted,
		OutputPath: writeFile(t, workDir, "enhanced.png", pngBytes(t, 600, 800)),
	}}

	dest := filepath.Join(t.TempDir(), "out.epub")
	b := testBuilder(t, Transform{Format: config.FormatJPEG, Quality: 90})
	err := b.PreserveStructure(src, dest, records)
	if !errors.Is(err, ErrInconsistent) {
		t.Fatalf("PreserveStructure = %v, want ErrInconsistent", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("destination exists after failed rebuild")
	}
}

func TestPreserveStructure_DuplicateRecordsForOneEntry(t *testing.T) {
	workDir := t.TempDir()
	src := writeBookFixture(t,
		map[string][]byte{"images/p1.png": pngBytes(t, 150, 200)}, nil)

	enhanced := pngBytes(t, 600, 800)
	out := writeFile(t, workDir, "enhanced.png", enhanced)
	// Two completed records naming the same entry count as one replacement,
	// not an inconsistency.
	records := []*upscale.ImageRecord{
		{RelPath: "OEBPS/images/p1.png", Width: 150, Height: 200,
			Status: upscale.StatusCompleted, OutputPath: out},
		{RelPath: "OEBPS/images/p1.png", Width: 150, Height: 200,
			Status: upscale.StatusCompleted, OutputPath: out},
	}

	dest := filepath.Join(t.TempDir(), "out.epub")
	b := testBuilder(t, Transform{Format: config.FormatJPEG, Quality: 90})
	if err := b.PreserveStructure(src, dest, records); err != nil {
		t.Fatalf("PreserveStructure: %v", err)
	}
	if !bytes.Equal(readEntry(t, dest, "OEBPS/images/p1.png"), enhanced) {
		t.Error("entry was not replaced with the enhanced bytes")
	}
}

func TestOrderCoverFirst(t *testing.T) {
	a := &upscale.ImageRecord{RelPath: "a"}
	b := &upscale.ImageRecord{RelPath: "b"}
	c := &upscale.ImageRecord{RelPath: "c", IsCover: true}

	got := orderCoverFirst([]*upscale.ImageRecord{a, b, c})
	if got[0] != c || got[1] != a || got[2] != b {
		t.Errorf("order = %s, %s, %s", got[0].RelPath, got[1].RelPath, got[2].RelPath)
	}

	// No cover: order unchanged.
	got = orderCoverFirst([]*upscale.ImageRecord{a, b})
	if got[0] != a || got[1] != b {
		t.Error("coverless order changed")
	}
}

func TestBuildEInk(t *testing.T) {
	workDir := t.TempDir()
	records := []*upscale.ImageRecord{
		{
			RelPath:    "OEBPS/images/page1.png",
			Width:      150,
			Height:     200,
			Status:     upscale.StatusCompleted,
			OutputPath: writeFile(t, workDir, "e1.png", pngBytes(t, 600, 800)),
		},
		{
			RelPath:    "OEBPS/images/cover.png",
			Width:      120,
			Height:     160,
			IsCover:    true,
			Status:     upscale.StatusCompleted,
			OutputPath: writeFile(t, workDir, "e2.png", pngBytes(t, 480, 640)),
		},
		{
			RelPath:   "OEBPS/images/page2.png",
			Width:     150,
			Height:    200,
			Status:    upscale.StatusFailedFinal,
			LocalPath: writeFile(t, workDir, "orig3.png", pngBytes(t, 150, 200)),
		},
	}
	man := &epub.Manifest{Title: "A Book", Creator: "Someone", Language: "ja"}

	dest := filepath.Join(t.TempDir(), "out.epub")
	b := testBuilder(t, Transform{LongEdge: 1872, Format: config.FormatJPEG, Quality: 90})
	if err := b.BuildEInk(dest, man, records); err != nil {
		t.Fatalf("BuildEInk: %v", err)
	}

	opf := string(readEntry(t, dest, "OEBPS/content.opf"))
	for _, want := range []string{
		"<dc:title>A Book</dc:title>",
		"<dc:creator>Someone</dc:creator>",
		"<dc:language>ja</dc:language>",
		"pre-paginated",
		`properties="cover-image"`,
	} {
		if !bytes.Contains([]byte(opf), []byte(want)) {
			t.Errorf("package document missing %q", want)
		}
	}

	// Cover first: page 1 must carry the cover's aspect (480x640 -> jpeg).
	img1 := readEntry(t, dest, "OEBPS/images/page_0001.jpg")
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img1))
	if err != nil {
		t.Fatalf("decode page 1: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("page 1 format = %q, want jpeg", format)
	}
	if cfg.Width != 480 || cfg.Height != 640 {
		t.Errorf("page 1 dims = %dx%d, want the cover's 480x640", cfg.Width, cfg.Height)
	}

	// Failed-final page substitutes the original bytes, keeping its format.
	img3 := readEntry(t, dest, "OEBPS/images/page_0003.png")
	if _, format, _ = image.DecodeConfig(bytes.NewReader(img3)); format != "png" {
		t.Errorf("substituted page format = %q, want png", format)
	}

	for i := 1; i <= 3; i++ {
		readEntry(t, dest, fmt.Sprintf("OEBPS/text/page_%04d.xhtml", i))
	}
}

func TestBuildEInk_NoPages(t *testing.T) {
	b := testBuilder(t, Transform{LongEdge: 1872, Format: config.FormatJPEG, Quality: 90})
	dest := filepath.Join(t.TempDir(), "out.epub")
	if err := b.BuildEInk(dest, &epub.Manifest{Title: "x"}, nil); err == nil {
		t.Error("BuildEInk with no images succeeded, want error")
	}
}
