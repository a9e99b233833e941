package epub

import (
	"net/url"
	"path"
	"strings"
)

// Item is one manifest entry of the package document.
type Item struct {
	ID         string
	Href       string // Relative to the OPF document's directory, as declared.
	MediaType  string
	Properties string // Space-separated EPUB 3 properties (e.g. "cover-image", "nav").
}

// Manifest is the structural metadata captured from a container. It is
// immutable once captured; the rebuilder only reads it.
type Manifest struct {
	RootfilePath string // Archive path of the OPF package document.

	Title      string
	Creator    string
	Language   string
	Identifier string

	CoverID  string // Item ID named by <meta name="cover"> (EPUB 2), if any.
	Items    []Item // In declaration order.
	Spine    []string
	SpineTOC string // The spine's toc attribute (NCX item ID), if any.
}

// rasterTypes are the image media types the enhancement pipeline handles.
// Vector types (SVG) pass through the rebuild untouched.
var rasterTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// EntryPath resolves a manifest href to its archive entry path, relative to
// the OPF document's directory. Percent-encoded hrefs are unescaped.
func (m *Manifest) EntryPath(href string) string {
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	dir := path.Dir(m.RootfilePath)
	if dir == "." {
		return path.Clean(href)
	}
	return path.Clean(path.Join(dir, href))
}

// ItemByID returns the manifest item with the given ID.
func (m *Manifest) ItemByID(id string) (Item, bool) {
	for _, it := range m.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// RasterImages returns the manifest items with raster image media types,
// in declaration order.
func (m *Manifest) RasterImages() []Item {
	var out []Item
	for _, it := range m.Items {
		if rasterTypes[it.MediaType] {
			out = append(out, it)
		}
	}
	return out
}

// IsCoverItem reports whether it is the container's cover image, via the
// EPUB 3 cover-image property, the EPUB 2 cover meta, or (as a last resort)
// "cover" appearing in the href.
func (m *Manifest) IsCoverItem(it Item) bool {
	for _, p := range strings.Fields(it.Properties) {
		if p == "cover-image" {
			return true
		}
	}
	if m.CoverID != "" && it.ID == m.CoverID {
		return true
	}
	return strings.Contains(strings.ToLower(path.Base(it.Href)), "cover")
}
