package rebuild

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/draw"

	"github.com/backmassage/inkscale/internal/config"
	"github.com/backmassage/inkscale/internal/upscale"

	_ "golang.org/x/image/webp"
)

// Transform holds the pixel-level output policy applied to enhanced images
// during rebuild: the resize target and the re-encoding format.
type Transform struct {
	// LongEdge is the target for the longer image edge; enhanced images larger
	// than it are scaled down. 0 disables resizing.
	LongEdge int

	// ResizeToOriginal scales each enhanced image back to its source
	// dimensions, trading resolution for the engine's denoising pass.
	ResizeToOriginal bool

	Format  config.Format
	Quality int
}

// fitWithin returns dimensions scaled so the longer edge equals longEdge,
// preserving aspect ratio. Images already within the bound keep their size;
// this never upscales.
func fitWithin(w, h, longEdge int) (int, int) {
	long := w
	if h > w {
		long = h
	}
	if longEdge <= 0 || long <= longEdge {
		return w, h
	}
	if w >= h {
		return longEdge, max(1, h*longEdge/w)
	}
	return max(1, w*longEdge/h), longEdge
}

// targetSize resolves the output dimensions for one enhanced image.
func (t *Transform) targetSize(rec *upscale.ImageRecord, w, h int) (int, int) {
	if t.ResizeToOriginal {
		return rec.Width, rec.Height
	}
	return fitWithin(w, h, t.LongEdge)
}

// EntryBytes produces the replacement bytes for a completed record in
// structure-preserving mode. Hrefs in the package document are never
// rewritten, so the replacement must keep the entry's declared format. When
// the engine output already matches the declared format and needs no resize,
// its bytes pass through untouched.
func (t *Transform) EntryBytes(rec *upscale.ImageRecord, mediaType string) ([]byte, error) {
	data, err := os.ReadFile(rec.OutputPath)
	if err != nil {
		return nil, err
	}
	cfg, sniffed, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode enhanced %s: %w", rec.RelPath, err)
	}

	tw, th := t.targetSize(rec, cfg.Width, cfg.Height)
	declared := formatName(mediaType)
	if tw == cfg.Width && th == cfg.Height && sniffed == declared {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode enhanced %s: %w", rec.RelPath, err)
	}
	img = scaleImage(img, tw, th)
	return encodeAs(img, declared, t.Quality)
}

// PageBytes produces the page image for the image-per-page layout, plus its
// file extension. Completed records are fitted to the long edge and encoded
// in the configured output format; anything else falls back to the staged
// original, byte for byte.
func (t *Transform) PageBytes(rec *upscale.ImageRecord) ([]byte, string, error) {
	if rec.Status != upscale.StatusCompleted {
		data, err := os.ReadFile(rec.LocalPath)
		if err != nil {
			return nil, "", err
		}
		_, sniffed, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode original %s: %w", rec.RelPath, err)
		}
		return data, extensionFor(sniffed), nil
	}

	data, err := os.ReadFile(rec.OutputPath)
	if err != nil {
		return nil, "", err
	}
	cfg, sniffed, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode enhanced %s: %w", rec.RelPath, err)
	}

	tw, th := fitWithin(cfg.Width, cfg.Height, t.LongEdge)
	declared := string(t.Format)
	if tw == cfg.Width && th == cfg.Height && sniffed == declared {
		return data, extensionFor(declared), nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode enhanced %s: %w", rec.RelPath, err)
	}
	img = scaleImage(img, tw, th)
	out, err := encodeAs(img, declared, t.Quality)
	if err != nil {
		return nil, "", err
	}
	return out, extensionFor(declared), nil
}

// scaleImage resamples src to w×h with Catmull-Rom interpolation. A no-op
// when the size already matches.
func scaleImage(src image.Image, w, h int) image.Image {
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// encodeAs serializes img in the named format. WebP has no encoder in the
// toolchain, so declared-webp entries are emitted as PNG; readers sniff
// content rather than trusting the extension.
func encodeAs(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// formatName maps an image media type to its registered decode format name.
func formatName(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return "jpeg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

// mediaTypeFor maps a file extension to its image media type.
func mediaTypeFor(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// extensionFor returns the file extension for a format name.
func extensionFor(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "gif":
		return ".gif"
	case "webp":
		return ".webp"
	default:
		return ".png"
	}
}
