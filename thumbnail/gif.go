package thumbnail

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"

	"github.com/ericpauley/go-quantize/quantize"
)

var transparent = color.RGBA{0, 0, 0, 0}

// normalizeImage draws img onto a fresh RGBA canvas. The jpeg decoder hands
// back YCbCr images that don't implement draw.Image.
func normalizeImage(img image.Image) draw.Image {
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, img.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}

// transparentQuantizer is a median cut quantizer whose first palette entry is
// always fully transparent.
type transparentQuantizer struct {
	quantize.MedianCutQuantizer
}

func (q transparentQuantizer) Quantize(p color.Palette, m image.Image) color.Palette {
	palette := q.MedianCutQuantizer.Quantize(p, m)
	if len(palette) == 0 {
		return append(palette, transparent)
	}
	palette[0] = transparent
	return palette
}

// transparentDrawer dithers like draw.FloydSteinberg but leaves pixels that
// are fully transparent in src transparent instead of dithering them.
type transparentDrawer struct{}

func (transparentDrawer) Draw(dst draw.Image, r image.Rectangle, src image.Image, sp image.Point) {
	draw.FloydSteinberg.Draw(dst, r, src, sp)

	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if _, _, _, a := src.At(sp.X+x-r.Min.X, sp.Y+y-r.Min.Y).RGBA(); a == 0 {
				dst.Set(x, y, transparent)
			}
		}
	}
}

func encodeGif(w io.Writer, img image.Image) error {
	err := gif.Encode(w, normalizeImage(img), &gif.Options{
		NumColors: 256,
		Quantizer: transparentQuantizer{quantize.MedianCutQuantizer{}},
		Drawer:    transparentDrawer{},
	})
	if err != nil {
		return fmt.Errorf("encode gif: %w", err)
	}
	return nil
}
