package images

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
)

// Quality holds format specific encode parameters.
// PNGCompression follows the zlib 1..9 scale; 0 selects the default.
type Quality struct {
	JPEG           int `yaml:"jpeg"`
	PNGCompression int `yaml:"png_compression"`
}

var (
	// DefaultQuality is used for originals when a field leaves quality unset.
	DefaultQuality = Quality{JPEG: 80, PNGCompression: 9}

	// MaxQuality is used for every derived variant.
	MaxQuality = Quality{JPEG: 100, PNGCompression: 9}
)

func (q Quality) withDefaults() Quality {
	if q.JPEG == 0 {
		q.JPEG = DefaultQuality.JPEG
	}
	if q.PNGCompression == 0 {
		q.PNGCompression = DefaultQuality.PNGCompression
	}
	return q
}

func (q Quality) pngLevel() png.CompressionLevel {
	switch {
	case q.PNGCompression <= 0:
		return png.DefaultCompression
	case q.PNGCompression <= 3:
		return png.BestSpeed
	case q.PNGCompression <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// Processor is the image primitive set used by ingestion and the variant cache.
type Processor interface {
	Decode(r io.Reader) (image.Image, error)
	// Fit scales img down to fit within width x height keeping its aspect
	// ratio. Images already inside the box are returned unscaled.
	Fit(img image.Image, width, height int) image.Image
	Resize(img image.Image, width, height int) image.Image
	Canvas(width, height int, fill color.Color) image.Image
	// Overlay alpha-composites src onto a copy of dst at the given point.
	Overlay(dst, src image.Image, at image.Point) image.Image
	Encode(w io.Writer, img image.Image, ext string, q Quality) error
}

// ImagingProcessor implements Processor with github.com/disintegration/imaging.
type ImagingProcessor struct {
	Filter imaging.ResampleFilter
}

// NewImagingProcessor returns a processor resampling with Lanczos.
func NewImagingProcessor() *ImagingProcessor {
	return &ImagingProcessor{Filter: imaging.Lanczos}
}

func (p *ImagingProcessor) Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

func (p *ImagingProcessor) Fit(img image.Image, width, height int) image.Image {
	return imaging.Fit(img, width, height, p.Filter)
}

func (p *ImagingProcessor) Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, p.Filter)
}

func (p *ImagingProcessor) Canvas(width, height int, fill color.Color) image.Image {
	return imaging.New(width, height, fill)
}

func (p *ImagingProcessor) Overlay(dst, src image.Image, at image.Point) image.Image {
	return imaging.Overlay(dst, src, at, 1.0)
}

func (p *ImagingProcessor) Encode(w io.Writer, img image.Image, ext string, q Quality) error {
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return fmt.Errorf("images: encode: %w", err)
	}

	switch format {
	case imaging.JPEG:
		return imaging.Encode(w, img, format, imaging.JPEGQuality(q.JPEG))
	case imaging.PNG:
		return imaging.Encode(w, img, format, imaging.PNGCompressionLevel(q.pngLevel()))
	default:
		return fmt.Errorf("images: encode: unsupported format %s", format)
	}
}

func supportedExtension(ext string) bool {
	switch ext {
	case "jpg", "jpeg", "png":
		return true
	}
	return false
}
