// Package epub reads and writes EPUB containers at the archive level.
//
// The reader captures the structural manifest (OPF metadata, manifest items,
// spine order, cover reference) and exposes raw entry access; it does not
// interpret XHTML content. The writer produces a spec-conformant archive:
// the mimetype entry first and uncompressed, everything else deflated, built
// at a temporary path and atomically renamed onto the destination so a crash
// mid-write never leaves a corrupt output container.
package epub
