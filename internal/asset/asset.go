// Package asset holds the immutable raster value passed between pipeline
// stages. An Asset is never modified after construction; every transform
// produces a new one.
package asset

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
)

// ErrUnknownFormat is returned by Decode for data that is neither PNG nor JPEG.
var ErrUnknownFormat = errors.New("asset: unknown image format")

const headSize = 512

type Mode int

const (
	ModeUnknown Mode = iota
	ModeRGB
	ModeRGBA
	ModeGray
	ModePaletted
	ModeCMYK
)

func (m Mode) String() string {
	switch m {
	case ModeRGB:
		return "RGB"
	case ModeRGBA:
		return "RGBA"
	case ModeGray:
		return "L"
	case ModePaletted:
		return "P"
	case ModeCMYK:
		return "CMYK"
	default:
		return "unknown"
	}
}

// File describes where a decoded Asset came from. It is zero for assets
// built in memory.
type File struct {
	Name string
	Size int64
	Head []byte // leading bytes of the encoded file, for signature checks
}

func (f File) IsZero() bool {
	return f.Name == "" && f.Size == 0 && len(f.Head) == 0
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

type Asset struct {
	img    image.Image
	mode   Mode
	format string
	file   File
}

// New wraps img. The caller gives up ownership of img and must not modify it
// afterwards.
func New(img image.Image) *Asset {
	return &Asset{img: img, mode: ModeOf(img)}
}

// Decode parses a PNG or JPEG file. The returned Asset remembers name, the
// encoded size and the leading bytes of data.
func Decode(name string, data []byte) (*Asset, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnknownFormat
		}
		return nil, fmt.Errorf("asset: decode %s: %w", name, err)
	}
	if format != "png" && format != "jpeg" {
		return nil, ErrUnknownFormat
	}
	head := data[:min(len(data), headSize)]
	return &Asset{
		img:    img,
		mode:   ModeOf(img),
		format: format,
		file: File{
			Name: name,
			Size: int64(len(data)),
			Head: append([]byte(nil), head...),
		},
	}, nil
}

// Image exposes the pixels read-only.
func (a *Asset) Image() image.Image { return a.img }

func (a *Asset) Mode() Mode { return a.mode }

// Format is "png" or "jpeg" for decoded assets and "" otherwise.
func (a *Asset) Format() string { return a.format }

func (a *Asset) File() File { return a.file }

func (a *Asset) Width() int { return a.img.Bounds().Dx() }

func (a *Asset) Height() int { return a.img.Bounds().Dy() }

func (a *Asset) Dimensions() Dimensions {
	return Dimensions{Width: a.Width(), Height: a.Height()}
}

func (a *Asset) EncodePNG(w io.Writer) error {
	return png.Encode(w, a.img)
}

func (a *Asset) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := a.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ModeOf classifies the colour model of img. Images with an alpha channel
// whose pixels are all opaque count as RGB.
func ModeOf(img image.Image) Mode {
	switch m := img.(type) {
	case *image.YCbCr:
		return ModeRGB
	case *image.Gray, *image.Gray16:
		return ModeGray
	case *image.Paletted:
		return ModePaletted
	case *image.CMYK:
		return ModeCMYK
	case *image.NYCbCrA:
		return ModeRGBA
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		if o, ok := m.(interface{ Opaque() bool }); ok && opaque(o) {
			return ModeRGB
		}
		return ModeRGBA
	default:
		return ModeUnknown
	}
}

// opaque reports false for images whose pixel buffer is shorter than their
// bounds claim; validation reports those as corrupt.
func opaque(o interface{ Opaque() bool }) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return o.Opaque()
}
