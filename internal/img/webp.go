// internal/img/webp.go
package img

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var (
	// ErrDecode is returned when the source bytes are not a parseable image.
	ErrDecode         = errors.New("decode image")
	ErrInvalidQuality = errors.New("invalid quality")
)

const ContentTypeWebP = "image/webp"

// Info describes a source image without converting it.
type Info struct {
	Format   string
	Width    int
	Height   int
	HasAlpha bool
}

// WebPTranscoder converts jpg, png, gif, bmp and tiff sources to WebP.
// Sources with transparency are encoded lossless, everything else lossy at
// the requested quality.
type WebPTranscoder struct{}

func NewWebPTranscoder() *WebPTranscoder { return &WebPTranscoder{} }

func (t *WebPTranscoder) Name() string { return "webp" }

func (t *WebPTranscoder) Supports(filename string) bool { return IsSupportedExtension(filename) }

// ToWebP decodes data and re-encodes it as WebP.
func (t *WebPTranscoder) ToWebP(ctx context.Context, data []byte, quality int) ([]byte, error) {
	if quality < 0 || quality > 100 {
		return nil, fmt.Errorf("%w: must be between 0 and 100 (got %d)", ErrInvalidQuality, quality)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, format, err := decode(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if HasAlphaChannel(format, src) {
		// webp reads RGBA pixels as non-premultiplied, so hand it the NRGBA
		// buffer directly to keep exact color under partial transparency.
		n := imaging.Clone(src)
		straight := &image.RGBA{Pix: n.Pix, Stride: n.Stride, Rect: n.Rect}
		err = webp.Encode(&buf, straight, &webp.Options{Lossless: true, Exact: true})
	} else {
		err = webp.Encode(&buf, src, &webp.Options{Quality: float32(quality)})
	}
	if err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

// Inspect reports format, dimensions and transparency of data. Dimensions
// are after EXIF orientation, as ToWebP sees them.
func Inspect(data []byte) (Info, error) {
	m, format, err := decode(data)
	if err != nil {
		return Info{}, err
	}
	b := m.Bounds()
	return Info{
		Format:   format,
		Width:    b.Dx(),
		Height:   b.Dy(),
		HasAlpha: HasAlphaChannel(format, m),
	}, nil
}

func decode(data []byte) (image.Image, string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	m, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return m, format, nil
}

// HasAlphaChannel reports whether a decoded source declares transparency:
// a straight-alpha color model, or a palette with any non-opaque entry
// (a GIF transparent index or PNG tRNS), whether or not a pixel uses it.
//
// The png and bmp decoders return *image.RGBA only for sources without
// alpha. The tiff decoder also uses it for premultiplied alpha, so that one
// case is settled by Opaque.
func HasAlphaChannel(format string, m image.Image) bool {
	if format == "jpeg" {
		return false
	}
	switch v := m.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.Alpha, *image.Alpha16:
		return true
	case *image.Paletted:
		for _, c := range v.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	case *image.RGBA:
		return format == "tiff" && !v.Opaque()
	case *image.RGBA64:
		return format == "tiff" && !v.Opaque()
	}
	switch m.ColorModel() {
	case color.NRGBAModel, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model:
		return true
	}
	return false
}
