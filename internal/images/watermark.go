package images

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// pasteWatermark composites wm onto the bottom-right corner of base. A watermark
// at least as wide as base is scaled down uniformly to base's width; the height
// check then runs against the possibly scaled watermark.
func pasteWatermark(p Processor, base, wm image.Image) image.Image {
	bw, bh := base.Bounds().Dx(), base.Bounds().Dy()
	ww, wh := wm.Bounds().Dx(), wm.Bounds().Dy()
	if bw == 0 || bh == 0 || ww == 0 || wh == 0 {
		return base
	}

	if bw <= ww {
		ratio := float64(bw) / float64(ww)
		wm = p.Resize(wm, scaled(ww, ratio), scaled(wh, ratio))
		ww, wh = wm.Bounds().Dx(), wm.Bounds().Dy()
	}
	if bh <= wh {
		ratio := float64(bh) / float64(wh)
		wm = p.Resize(wm, scaled(ww, ratio), scaled(wh, ratio))
		ww, wh = wm.Bounds().Dx(), wm.Bounds().Dy()
	}

	return p.Overlay(base, wm, image.Pt(bw-ww, bh-wh))
}

func scaled(n int, ratio float64) int {
	v := int(math.Round(float64(n) * ratio))
	if v < 1 {
		return 1
	}
	return v
}

// TextWatermark renders text on a transparent canvas with the Go regular font.
func TextWatermark(text string, size float64) (image.Image, error) {
	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, err
	}

	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72})
	defer face.Close()

	pad := int(math.Ceil(size / 4))
	metrics := face.Metrics()
	w := font.MeasureString(face, text).Ceil() + 2*pad
	h := (metrics.Ascent + metrics.Descent).Ceil() + 2*pad

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(size)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)
	c.SetSrc(image.NewUniform(color.NRGBA{R: 40, G: 40, B: 40, A: 150}))
	c.SetHinting(font.HintingFull)

	pt := freetype.Pt(pad, pad+metrics.Ascent.Ceil())
	if _, err := c.DrawString(text, pt); err != nil {
		return nil, err
	}
	return dst, nil
}
