package images_test

import (
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"recordimages/internal/images"
)

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}

	colorTransparent = color.NRGBA{}
)

// record is a minimal images.Record.
type record struct {
	key   string
	attrs map[string]any
}

func (r *record) PrimaryKey() string         { return r.key }
func (r *record) Attribute(name string) any { return r.attrs[name] }

// writePNG writes a solid w x h PNG into dir and returns it as a Source.
func writePNG(t *testing.T, dir, name string, w, h int, c color.Color) images.FileSource {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return images.FileSource(path)
}

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img
}

func imageSize(t *testing.T, path string) (int, int) {
	t.Helper()
	b := decodeFile(t, path).Bounds()
	return b.Dx(), b.Dy()
}

// listDir returns the sorted base names in dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// countingProcessor counts Fit calls on top of the imaging processor.
type countingProcessor struct {
	*images.ImagingProcessor
	fits atomic.Int32
}

func (p *countingProcessor) Fit(img image.Image, width, height int) image.Image {
	p.fits.Add(1)
	return p.ImagingProcessor.Fit(img, width, height)
}

// gatedProcessor parks the first Fit call made while armed until release is
// closed. entered is closed once that call is parked.
type gatedProcessor struct {
	*images.ImagingProcessor
	armed   atomic.Bool
	fits    atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func newGatedProcessor() *gatedProcessor {
	return &gatedProcessor{
		ImagingProcessor: images.NewImagingProcessor(),
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
}

func (p *gatedProcessor) Fit(img image.Image, width, height int) image.Image {
	p.fits.Add(1)
	if p.armed.CompareAndSwap(true, false) {
		close(p.entered)
		<-p.release
	}
	return p.ImagingProcessor.Fit(img, width, height)
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
}

func newBehavior(t *testing.T, fields []images.FieldConfig, opts ...images.Option) (*images.Behavior, string) {
	t.Helper()
	root := t.TempDir()
	b, err := images.New(images.Config{
		RootPath: root,
		WebPath:  "/files",
		Fields:   fields,
	}, opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return b, root
}

func isWhite(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 > 240 && g>>8 > 240 && b>>8 > 240
}

func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 > 200 && g>>8 < 60 && b>>8 < 60
}

func isBlue(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 < 60 && g>>8 < 60 && b>>8 > 200
}

func attach(t *testing.T, b *images.Behavior, rec images.Record) *images.Attachment {
	t.Helper()
	a, err := b.For(rec)
	if err != nil {
		t.Fatalf("For(%q) failed: %v", rec.PrimaryKey(), err)
	}
	return a
}
