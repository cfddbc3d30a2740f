package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name string, encode func(*bytes.Buffer) error) string {
	t.Helper()
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	nrgba := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	nrgba.Set(2, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 40})
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	gray.Set(1, 1, color.Gray{Y: 200})

	tests := []struct {
		name     string
		path     string
		w, h, ch int
		x, y     int
		want     [4]uint8
	}{
		{
			name: "png with alpha",
			path: writeFile(t, "a.png", func(b *bytes.Buffer) error { return png.Encode(b, nrgba) }),
			w:    3, h: 2, ch: 4, x: 2, y: 1,
			want: [4]uint8{10, 20, 30, 40},
		},
		{
			name: "opaque png",
			path: writeFile(t, "g.png", func(b *bytes.Buffer) error { return png.Encode(b, gray) }),
			w:    4, h: 4, ch: 3, x: 1, y: 1,
			want: [4]uint8{200, 200, 200, 255},
		},
		{
			name: "jpeg",
			path: writeFile(t, "g.jpg", func(b *bytes.Buffer) error { return jpeg.Encode(b, image.NewGray(image.Rect(0, 0, 8, 8)), nil) }),
			w:    8, h: 8, ch: 3, x: 0, y: 0,
			want: [4]uint8{0, 0, 0, 255},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Load(tt.path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if img.Width() != tt.w || img.Height() != tt.h || img.Channels() != tt.ch {
				t.Fatalf("got %dx%dx%d", img.Width(), img.Height(), img.Channels())
			}
			r, g, b, a, err := img.At(tt.x, tt.y)
			if err != nil {
				t.Fatal(err)
			}
			if got := [4]uint8{r, g, b, a}; got != tt.want {
				t.Fatalf("At(%d, %d) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.png")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: %v", err)
	}
	bad := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatal("garbage decoded")
	}
}

func TestBlankSetAndPNG(t *testing.T) {
	if _, err := Blank(0, 1, 4); err == nil {
		t.Fatal("zero width accepted")
	}
	if _, err := Blank(1, 1, 2); err == nil {
		t.Fatal("two channels accepted")
	}

	img, err := Blank(2, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := img.Set(1, 0, 1, 2, 3, 4); err != nil {
		t.Fatal(err)
	}
	if err := img.Set(2, 0, 0, 0, 0, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("Set out of bounds = %v", err)
	}
	if _, _, _, _, err := img.At(-1, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("At out of bounds = %v", err)
	}

	data, err := img.PNG()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	got := color.NRGBAModel.Convert(decoded.At(1, 0)).(color.NRGBA)
	if got != (color.NRGBA{R: 1, G: 2, B: 3, A: 255}) {
		t.Fatalf("encoded pixel = %v", got)
	}
}
