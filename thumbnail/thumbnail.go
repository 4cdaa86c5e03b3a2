// Package thumbnail renders small previews of uploaded images.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"slices"

	"github.com/nfnt/resize"
)

const (
	Width  uint = 1920 / 4
	Height uint = 1080 / 4
)

var AllowedMimeTypes = []string{"image/jpeg", "image/png"}

// ErrUnsupported is returned for files that can't be turned into thumbnails.
var ErrUnsupported = errors.New("thumbnails are not supported for this file type")

// ErrCorrupt is returned when the bytes don't decode as the claimed image type.
var ErrCorrupt = errors.New("image could not be decoded")

type Format string

const (
	PNG Format = "png"
	GIF Format = "gif"
)

// ParseFormat maps a query value to a Format. Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", PNG:
		return PNG, nil
	case GIF:
		return GIF, nil
	}
	return "", fmt.Errorf("unknown thumbnail format %q", s)
}

func (f Format) ContentType() string {
	return "image/" + string(f)
}

// Supported reports whether a thumbnail can be made for the mime type.
func Supported(mime string) bool {
	return slices.Contains(AllowedMimeTypes, mime)
}

func decode(mime string, original io.Reader) (image.Image, error) {
	switch mime {
	case "image/jpeg":
		img, err := jpeg.Decode(original)
		if err != nil {
			return nil, fmt.Errorf("%w: decode jpeg: %w", ErrCorrupt, err)
		}
		return img, nil
	case "image/png":
		img, err := png.Decode(original)
		if err != nil {
			return nil, fmt.Errorf("%w: decode png: %w", ErrCorrupt, err)
		}
		return img, nil
	}
	return nil, fmt.Errorf("mime type '%s': %w", mime, ErrUnsupported)
}

// Make decodes the original upload and encodes a Width x Height thumbnail of
// it in the requested format.
func Make(mime string, original io.Reader, format Format) ([]byte, error) {
	img, err := decode(mime, original)
	if err != nil {
		return nil, err
	}

	thumb := resize.Resize(Width, Height, img, resize.Lanczos3)

	buff := new(bytes.Buffer)
	switch format {
	case GIF:
		if err := encodeGif(buff, thumb); err != nil {
			return nil, err
		}
	default:
		if err := png.Encode(buff, thumb); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	}

	return buff.Bytes(), nil
}
