package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const containerPath = "META-INF/container.xml"

// ErrNoRootfile is returned when META-INF/container.xml is missing or names
// no package document.
var ErrNoRootfile = errors.New("container has no rootfile declaration")

// Reader provides access to an opened container and its captured manifest.
type Reader struct {
	zr       *zip.ReadCloser
	Manifest *Manifest
}

// Open opens the container at path and parses its package document.
func Open(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}

	r := &Reader{zr: zr}
	man, err := r.readManifest()
	if err != nil {
		zr.Close()
		return nil, err
	}
	r.Manifest = man
	return r, nil
}

// Close releases the underlying archive.
func (r *Reader) Close() error { return r.zr.Close() }

// Entries returns all archive entry names in archive order.
func (r *Reader) Entries() []string {
	names := make([]string, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		names = append(names, f.Name)
	}
	return names
}

// ReadFile returns the raw bytes of an archive entry.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	for _, f := range r.zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("entry %q not found in container", name)
}

// --- package document parsing ---

type xmlContainer struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type xmlPackage struct {
	Metadata struct {
		Titles      []string `xml:"title"`
		Creators    []string `xml:"creator"`
		Languages   []string `xml:"language"`
		Identifiers []string `xml:"identifier"`
		Metas       []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		TOC  string `xml:"toc,attr"`
		Refs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// readManifest locates the OPF package document via container.xml and
// captures metadata, manifest, and spine.
func (r *Reader) readManifest() (*Manifest, error) {
	data, err := r.ReadFile(containerPath)
	if err != nil {
		return nil, fmt.Errorf("missing %s: %w", containerPath, err)
	}

	var c xmlContainer
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", containerPath, err)
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return nil, ErrNoRootfile
	}
	rootfile := c.Rootfiles[0].FullPath

	opf, err := r.ReadFile(rootfile)
	if err != nil {
		return nil, fmt.Errorf("missing package document %s: %w", rootfile, err)
	}

	var p xmlPackage
	if err := xml.Unmarshal(opf, &p); err != nil {
		return nil, fmt.Errorf("parse package document %s: %w", rootfile, err)
	}

	man := &Manifest{
		RootfilePath: rootfile,
		Title:        first(p.Metadata.Titles),
		Creator:      first(p.Metadata.Creators),
		Language:     first(p.Metadata.Languages),
		Identifier:   first(p.Metadata.Identifiers),
		SpineTOC:     p.Spine.TOC,
	}
	for _, m := range p.Metadata.Metas {
		if m.Name == "cover" {
			man.CoverID = m.Content
			break
		}
	}
	for _, it := range p.Manifest.Items {
		man.Items = append(man.Items, Item{
			ID:         it.ID,
			Href:       it.Href,
			MediaType:  strings.TrimSpace(it.MediaType),
			Properties: it.Properties,
		})
	}
	for _, ref := range p.Spine.Refs {
		man.Spine = append(man.Spine, ref.IDRef)
	}
	return man, nil
}

func first(ss []string) string {
	for _, s := range ss {
		if t := strings.TrimSpace(s); t != "" {
			return t
		}
	}
	return ""
}
