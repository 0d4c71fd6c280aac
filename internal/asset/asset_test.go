package asset

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 300, 200))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	data := encodePNG(t, src)

	a, err := Decode("face.png", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a.Width() != 300 || a.Height() != 200 {
		t.Errorf("dimensions = %s, want 300x200", a.Dimensions())
	}
	if a.Format() != "png" {
		t.Errorf("format = %q", a.Format())
	}
	if a.Mode() != ModeRGB {
		t.Errorf("mode = %s, want RGB", a.Mode())
	}
	f := a.File()
	if f.Name != "face.png" || f.Size != int64(len(data)) || len(f.Head) == 0 {
		t.Errorf("unexpected file info %+v", f)
	}
}

func TestDecodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 32)), nil); err != nil {
		t.Fatal(err)
	}
	a, err := Decode("ref.jpg", buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a.Format() != "jpeg" || a.Mode() != ModeRGB {
		t.Errorf("format=%q mode=%s", a.Format(), a.Mode())
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	_, err := Decode("notes.txt", []byte("definitely not an image"))
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestModeOf(t *testing.T) {
	translucent := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	translucent.Set(0, 0, color.NRGBA{R: 1, A: 10})

	tests := []struct {
		name string
		img  image.Image
		want Mode
	}{
		{"gray", image.NewGray(image.Rect(0, 0, 1, 1)), ModeGray},
		{"paletted", image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.Black}), ModePaletted},
		{"cmyk", image.NewCMYK(image.Rect(0, 0, 1, 1)), ModeCMYK},
		{"translucent", translucent, ModeRGBA},
		{"alpha", image.NewAlpha(image.Rect(0, 0, 1, 1)), ModeUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ModeOf(tc.img); got != tc.want {
				t.Errorf("ModeOf() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestBytesRoundTrip(t *testing.T) {
	a := New(image.NewGray(image.Rect(0, 0, 10, 12)))
	data, err := a.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Decode("out.png", data)
	if err != nil {
		t.Fatal(err)
	}
	if b.Dimensions() != a.Dimensions() {
		t.Errorf("dimensions changed: %s -> %s", a.Dimensions(), b.Dimensions())
	}
	if !a.File().IsZero() {
		t.Error("in-memory asset should have no file info")
	}
}
