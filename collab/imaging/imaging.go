// Package imaging decodes PNG and JPEG files into 8-bit pixel buffers for
// scripts that read maps and masks.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
)

var ErrOutOfBounds = errors.New("pixel out of bounds")

// Image is an RGB or RGBA buffer, row-major, Channels bytes per pixel.
type Image struct {
	width, height, channels int
	pix                     []uint8
}

// Load decodes path. Images without an alpha channel load as RGB.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	b := src.Bounds()
	channels := 3
	if hasAlpha(src) {
		channels = 4
	}
	img := &Image{width: b.Dx(), height: b.Dy(), channels: channels, pix: make([]uint8, b.Dx()*b.Dy()*channels)}
	o := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			px := [4]uint8{c.R, c.G, c.B, c.A}
			o += copy(img.pix[o:o+channels], px[:channels])
		}
	}
	return img, nil
}

func hasAlpha(img image.Image) bool {
	switch img.ColorModel() {
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model:
		return true
	}
	if p, ok := img.(*image.Paletted); ok {
		for _, c := range p.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// Blank returns a zeroed image. channels must be 3 or 4.
func Blank(width, height, channels int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", width, height)
	}
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	return &Image{width: width, height: height, channels: channels, pix: make([]uint8, width*height*channels)}, nil
}

func (img *Image) Width() int    { return img.width }
func (img *Image) Height() int   { return img.height }
func (img *Image) Channels() int { return img.channels }

func (img *Image) offset(x, y int) (int, error) {
	if x < 0 || y < 0 || x >= img.width || y >= img.height {
		return 0, fmt.Errorf("%w: (%d, %d) in %dx%d", ErrOutOfBounds, x, y, img.width, img.height)
	}
	return (y*img.width + x) * img.channels, nil
}

// At returns pixel (x, y). Alpha is 255 for RGB images.
func (img *Image) At(x, y int) (r, g, b, a uint8, err error) {
	o, err := img.offset(x, y)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	p := img.pix[o : o+img.channels]
	if img.channels == 4 {
		return p[0], p[1], p[2], p[3], nil
	}
	return p[0], p[1], p[2], 255, nil
}

// Set writes pixel (x, y). Alpha is dropped for RGB images.
func (img *Image) Set(x, y int, r, g, b, a uint8) error {
	o, err := img.offset(x, y)
	if err != nil {
		return err
	}
	p := img.pix[o : o+img.channels]
	p[0], p[1], p[2] = r, g, b
	if img.channels == 4 {
		p[3] = a
	}
	return nil
}

// PNG encodes the image.
func (img *Image) PNG() ([]byte, error) {
	out := image.NewNRGBA(image.Rect(0, 0, img.width, img.height))
	for i := 0; i < img.width*img.height; i++ {
		src := img.pix[i*img.channels:]
		dst := out.Pix[i*4:]
		dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 255
		if img.channels == 4 {
			dst[3] = src[3]
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
