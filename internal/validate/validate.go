// Package validate rejects malformed transfer requests before any expensive
// work starts. Every check is pure.
package validate

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

const (
	DefaultMaxFileSize  = 10 << 20
	DefaultMinDimension = 256
)

var (
	extensions = []string{".png", ".jpg", ".jpeg"}
	mimeTypes  = []string{"image/png", "image/jpeg"}
)

type Limits struct {
	MaxFileSize  int64
	MinDimension int
}

func DefaultLimits() Limits {
	return Limits{MaxFileSize: DefaultMaxFileSize, MinDimension: DefaultMinDimension}
}

type Outcome struct {
	Valid    bool
	Reason   *Error
	Warnings []*Error
}

func (o *Outcome) add(errs ...*Error) {
	for _, err := range errs {
		if err == nil {
			continue
		}
		if o.Reason == nil {
			o.Reason = err
		} else {
			o.Warnings = append(o.Warnings, err)
		}
		o.Valid = false
	}
}

func (o *Outcome) merge(other Outcome) {
	o.add(other.Reason)
	o.add(other.Warnings...)
}

// Errors lists the primary reason followed by the warnings.
func (o Outcome) Errors() []*Error {
	if o.Reason == nil {
		return nil
	}
	return append([]*Error{o.Reason}, o.Warnings...)
}

// Err returns the primary reason, or nil when the outcome is valid.
func (o Outcome) Err() error {
	if o.Reason == nil {
		return nil
	}
	return o.Reason
}

func valid() Outcome { return Outcome{Valid: true} }

type Validator struct {
	limits Limits
}

func New(limits Limits) *Validator {
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = DefaultMaxFileSize
	}
	if limits.MinDimension <= 0 {
		limits.MinDimension = DefaultMinDimension
	}
	return &Validator{limits: limits}
}

func (v *Validator) Limits() Limits { return v.limits }

// ValidateFile checks the declared size and the format of an encoded file.
// A zero File (an image built in memory) passes.
func (v *Validator) ValidateFile(f asset.File) Outcome {
	out := valid()
	if f.IsZero() {
		return out
	}
	if f.Size > v.limits.MaxFileSize {
		out.add(newError(FileTooLarge, fmt.Sprintf("%s is %d bytes, limit is %d", displayName(f.Name), f.Size, v.limits.MaxFileSize)))
	}
	if f.Name != "" {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if !lo.Contains(extensions, ext) {
			out.add(newError(UnsupportedFormat, fmt.Sprintf("%s: extension %q is not one of %s", displayName(f.Name), ext, strings.Join(extensions, ", "))))
		}
	}
	mime := mimetype.Detect(f.Head)
	if !lo.Contains(mimeTypes, mime.String()) {
		out.add(newError(UnsupportedFormat, fmt.Sprintf("%s: content is %s, expected PNG or JPEG", displayName(f.Name), mime.String())))
	}
	return out
}

// ValidateContent checks a decoded image against the size floor and the
// colour modes the preprocessor can normalize.
func (v *Validator) ValidateContent(a *asset.Asset) Outcome {
	out := valid()
	floor := v.limits.MinDimension
	if a.Width() < floor || a.Height() < floor {
		out.add(newError(ImageTooSmall, fmt.Sprintf("image is %s, minimum is %dx%d", a.Dimensions(), floor, floor)))
	}
	if err := checkMode(a); err != nil {
		out.add(err)
	}
	if err := checkBuffer(a.Image()); err != nil {
		out.add(err)
	}
	return out
}

// ValidateRequest checks the style parameters. Out of range smoothness is
// rejected rather than clamped.
func (v *Validator) ValidateRequest(style model.Style, smoothness int) Outcome {
	out := valid()
	if smoothness < model.MinSmoothness || smoothness > model.MaxSmoothness {
		out.add(newError(InvalidParameter, fmt.Sprintf("smoothness %d is outside [%d,%d]", smoothness, model.MinSmoothness, model.MaxSmoothness)))
	}
	if !style.Valid() {
		out.add(newError(InvalidParameter, fmt.Sprintf("style %q is not one of %s", style, strings.Join(lo.Map(model.Styles, func(s model.Style, _ int) string {
			return string(s)
		}), ", "))))
	}
	return out
}

// Input is one image of a request as the validator sees it. Asset is nil when
// decoding failed, in which case DecodeErr says why.
type Input struct {
	File      asset.File
	Asset     *asset.Asset
	DecodeErr error
}

type Subject struct {
	Face       Input
	Reference  Input
	Style      model.Style
	Smoothness int
}

// Check runs every check, in the order file(face), file(reference),
// content(face), content(reference), request. The first failure becomes the
// primary reason and the rest are kept as warnings.
func (v *Validator) Check(s Subject) Outcome {
	out := valid()
	out.merge(v.ValidateFile(s.Face.File))
	out.merge(v.ValidateFile(s.Reference.File))
	out.merge(v.content("face", s.Face))
	out.merge(v.content("reference", s.Reference))
	out.merge(v.ValidateRequest(s.Style, s.Smoothness))
	return out
}

func (v *Validator) content(role string, in Input) Outcome {
	if in.Asset == nil {
		out := valid()
		if in.DecodeErr == nil && in.File.Size > v.limits.MaxFileSize {
			// oversized files are not decoded; FileTooLarge already covers it
			return out
		}
		out.add(DecodeError(role, in.DecodeErr))
		return out
	}
	out := v.ValidateContent(in.Asset)
	for _, err := range out.Errors() {
		err.Msg = role + " " + err.Msg
	}
	return out
}

// DecodeError maps a failure of asset.Decode to a validation error.
func DecodeError(role string, err error) *Error {
	if errors.Is(err, asset.ErrUnknownFormat) {
		return newError(UnsupportedFormat, role+" image is neither PNG nor JPEG")
	}
	if err == nil {
		err = errors.New("no image data")
	}
	return newError(CorruptImage, fmt.Sprintf("%s image could not be decoded: %v", role, err))
}

func displayName(name string) string {
	return lo.Ternary(name == "", "file", name)
}

func checkMode(a *asset.Asset) *Error {
	switch a.Mode() {
	case asset.ModeUnknown:
		return newError(UnsupportedColorMode, fmt.Sprintf("colour model %T cannot be converted to RGB", a.Image()))
	case asset.ModePaletted:
		p, ok := a.Image().(*image.Paletted)
		if !ok {
			return nil
		}
		if _, found := lo.Find(p.Palette, func(c color.Color) bool {
			_, _, _, alpha := c.RGBA()
			return alpha != 0xffff
		}); found {
			return newError(UnsupportedColorMode, "palette has translucent entries with no opaque RGB equivalent")
		}
	}
	return nil
}

// checkBuffer verifies that the pixel buffer is large enough for the
// declared bounds and stride.
func checkBuffer(img image.Image) *Error {
	b := img.Bounds()
	if b.Empty() {
		return newError(CorruptImage, "image has no pixels")
	}
	check := func(pix, stride, bpp int) *Error {
		need := (b.Dy()-1)*stride + b.Dx()*bpp
		if stride < b.Dx()*bpp || pix < need {
			return newError(CorruptImage, fmt.Sprintf("pixel buffer holds %d bytes, %s needs %d", pix, b.Size(), need))
		}
		return nil
	}
	switch m := img.(type) {
	case *image.RGBA:
		return check(len(m.Pix), m.Stride, 4)
	case *image.NRGBA:
		return check(len(m.Pix), m.Stride, 4)
	case *image.RGBA64:
		return check(len(m.Pix), m.Stride, 8)
	case *image.NRGBA64:
		return check(len(m.Pix), m.Stride, 8)
	case *image.Gray:
		return check(len(m.Pix), m.Stride, 1)
	case *image.Gray16:
		return check(len(m.Pix), m.Stride, 2)
	case *image.CMYK:
		return check(len(m.Pix), m.Stride, 4)
	case *image.Paletted:
		return check(len(m.Pix), m.Stride, 1)
	case *image.YCbCr:
		if err := check(len(m.Y), m.YStride, 1); err != nil {
			return err
		}
		return checkChroma(m)
	case *image.NYCbCrA:
		if err := check(len(m.Y), m.YStride, 1); err != nil {
			return err
		}
		if err := checkChroma(&m.YCbCr); err != nil {
			return err
		}
		return check(len(m.A), m.AStride, 1)
	}
	return nil
}

// checkChroma verifies that both chroma planes cover the bounds at the
// image's subsample ratio.
func checkChroma(m *image.YCbCr) *Error {
	b := m.Rect
	row := m.COffset(b.Max.X-1, b.Min.Y) - m.COffset(b.Min.X, b.Min.Y) + 1
	if m.CStride < row {
		return newError(CorruptImage, fmt.Sprintf("chroma stride %d is shorter than a %s chroma row of %d", m.CStride, m.SubsampleRatio, row))
	}
	need := m.COffset(b.Max.X-1, b.Max.Y-1) + 1
	if len(m.Cb) < need || len(m.Cr) < need {
		return newError(CorruptImage, fmt.Sprintf("chroma planes hold %d and %d bytes, %s %s needs %d", len(m.Cb), len(m.Cr), b.Size(), m.SubsampleRatio, need))
	}
	return nil
}
