package rebuild

import (
	"bytes"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/inkscale/internal/epub"
	"github.com/backmassage/inkscale/internal/upscale"
)

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

const pageCSS = `html, body { margin: 0; padding: 0; }
.page { text-align: center; }
.page img { max-width: 100%; max-height: 100%; }
`

// BuildEInk writes a fresh image-per-page container at destPath: one XHTML
// page per image, pre-paginated for a portrait reader viewport derived from
// the configured long edge (width is three quarters of it, the common e-ink
// panel ratio). The cover image becomes the first page. Book metadata is
// carried over from the source manifest.
func (b *Builder) BuildEInk(destPath string, man *epub.Manifest, records []*upscale.ImageRecord) error {
	pages := orderCoverFirst(records)
	if len(pages) == 0 {
		return fmt.Errorf("no images to lay out for %s", destPath)
	}

	w, err := epub.NewWriter(destPath)
	if err != nil {
		return err
	}
	abort := func(err error) error {
		w.Abort()
		return err
	}

	if err := w.Add("META-INF/container.xml", []byte(containerXML)); err != nil {
		return abort(err)
	}
	if err := w.Add("OEBPS/style.css", []byte(pageCSS)); err != nil {
		return abort(err)
	}

	vw := b.Transform.LongEdge * 3 / 4
	vh := b.Transform.LongEdge

	exts := make([]string, len(pages))
	for i, rec := range pages {
		data, ext, err := b.Transform.PageBytes(rec)
		if err != nil {
			return abort(err)
		}
		exts[i] = ext
		name := fmt.Sprintf("OEBPS/images/page_%04d%s", i+1, ext)
		if err := w.Add(name, data); err != nil {
			return abort(err)
		}
		page := pageXHTML(i+1, fmt.Sprintf("page_%04d%s", i+1, ext), vw, vh)
		if err := w.Add(fmt.Sprintf("OEBPS/text/page_%04d.xhtml", i+1), page); err != nil {
			return abort(err)
		}
	}

	title := man.Title
	if title == "" {
		title = "Untitled"
	}
	ident := man.Identifier
	if ident == "" {
		ident = "urn:uuid:" + uuid.NewString()
	}
	lang := man.Language
	if lang == "" {
		lang = "en"
	}

	if err := w.Add("OEBPS/content.opf", packageOPF(title, man.Creator, lang, ident, exts)); err != nil {
		return abort(err)
	}
	if err := w.Add("OEBPS/nav.xhtml", navXHTML(title)); err != nil {
		return abort(err)
	}
	if err := w.Add("OEBPS/toc.ncx", tocNCX(title, ident)); err != nil {
		return abort(err)
	}
	return w.Commit()
}

// orderCoverFirst returns the records with the first cover (if any) moved to
// the front; everything else keeps its original order.
func orderCoverFirst(records []*upscale.ImageRecord) []*upscale.ImageRecord {
	coverIdx := -1
	for i, rec := range records {
		if rec.IsCover {
			coverIdx = i
			break
		}
	}
	if coverIdx <= 0 {
		return records
	}
	out := make([]*upscale.ImageRecord, 0, len(records))
	out = append(out, records[coverIdx])
	out = append(out, records[:coverIdx]...)
	return append(out, records[coverIdx+1:]...)
}

func pageXHTML(n int, imgName string, vw, vh int) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
<title>Page %d</title>
<meta name="viewport" content="width=%d, height=%d"/>
<link rel="stylesheet" type="text/css" href="../style.css"/>
</head>
<body>
<div class="page"><img src="../images/%s" alt="Page %d"/></div>
</body>
</html>
`, n, vw, vh, imgName, n)
	return buf.Bytes()
}

func packageOPF(title, creator, lang, ident string, exts []string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
<metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
<dc:identifier id="bookid">%s</dc:identifier>
<dc:title>%s</dc:title>
`, html.EscapeString(ident), html.EscapeString(title))
	if creator != "" {
		fmt.Fprintf(&buf, "<dc:creator>%s</dc:creator>\n", html.EscapeString(creator))
	}
	fmt.Fprintf(&buf, `<dc:language>%s</dc:language>
<meta property="dcterms:modified">%s</meta>
<meta property="rendition:layout">pre-paginated</meta>
<meta property="rendition:orientation">portrait</meta>
<meta name="cover" content="img_0001"/>
</metadata>
<manifest>
<item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
<item id="css" href="style.css" media-type="text/css"/>
`, html.EscapeString(lang), time.Now().UTC().Format("2006-01-02T15:04:05Z"))

	for i, ext := range exts {
		props := ""
		if i == 0 {
			props = ` properties="cover-image"`
		}
		fmt.Fprintf(&buf, "<item id=\"img_%04d\" href=\"images/page_%04d%s\" media-type=\"%s\"%s/>\n",
			i+1, i+1, ext, mediaTypeFor(ext), props)
		fmt.Fprintf(&buf, "<item id=\"page_%04d\" href=\"text/page_%04d.xhtml\" media-type=\"application/xhtml+xml\"/>\n",
			i+1, i+1)
	}

	buf.WriteString("</manifest>\n<spine toc=\"ncx\">\n")
	for i := range exts {
		fmt.Fprintf(&buf, "<itemref idref=\"page_%04d\"/>\n", i+1)
	}
	buf.WriteString("</spine>\n</package>\n")
	return buf.Bytes()
}

func navXHTML(title string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>%s</title></head>
<body>
<nav epub:type="toc">
<ol>
<li><a href="text/page_0001.xhtml">%s</a></li>
`, html.EscapeString(title), html.EscapeString(title))
	buf.WriteString("</ol>\n</nav>\n</body>\n</html>\n")
	return buf.Bytes()
}

func tocNCX(title, ident string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
<head>
<meta name="dtb:uid" content="%s"/>
<meta name="dtb:depth" content="1"/>
</head>
<docTitle><text>%s</text></docTitle>
<navMap>
<navPoint id="p1" playOrder="1">
<navLabel><text>%s</text></navLabel>
<content src="text/page_0001.xhtml"/>
</navPoint>
</navMap>
</ncx>
`, html.EscapeString(ident), html.EscapeString(title), html.EscapeString(title))
	return buf.Bytes()
}
