package epub

import (
	"archive/zip"
	"fmt"
	"os"
)

// Mimetype is the required first entry of every EPUB container.
const Mimetype = "application/epub+zip"

// Writer builds a container at a temporary path next to the destination and
// renames it into place on Commit. The mimetype entry is written immediately,
// uncompressed, as the format requires.
type Writer struct {
	dest string
	tmp  string
	f    *os.File
	zw   *zip.Writer
}

// NewWriter creates the temporary archive and writes the mimetype entry.
func NewWriter(dest string) (*Writer, error) {
	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create output container: %w", err)
	}

	zw := zip.NewWriter(f)
	hdr := &zip.FileHeader{Name: "mimetype", Method: zip.Store}
	w, err := zw.CreateHeader(hdr)
	if err == nil {
		_, err = w.Write([]byte(Mimetype))
	}
	if err != nil {
		zw.Close()
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("write mimetype: %w", err)
	}

	return &Writer{dest: dest, tmp: tmp, f: f, zw: zw}, nil
}

// Add writes one deflated entry. Entry names are archive paths ("OEBPS/…").
func (w *Writer) Add(name string, data []byte) error {
	ew, err := w.zw.Create(name)
	if err != nil {
		return fmt.Errorf("add entry %s: %w", name, err)
	}
	if _, err := ew.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}

// Commit finalizes the archive and atomically replaces the destination.
func (w *Writer) Commit() error {
	if err := w.zw.Close(); err != nil {
		w.f.Close()
		os.Remove(w.tmp)
		return fmt.Errorf("finalize container: %w", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmp)
		return fmt.Errorf("close container: %w", err)
	}
	if err := os.Rename(w.tmp, w.dest); err != nil {
		os.Remove(w.tmp)
		return fmt.Errorf("replace destination: %w", err)
	}
	return nil
}

// Abort discards the partial archive. Safe to call after a failed Commit.
func (w *Writer) Abort() {
	w.zw.Close()
	w.f.Close()
	os.Remove(w.tmp)
}
