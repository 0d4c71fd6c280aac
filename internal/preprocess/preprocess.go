// Package preprocess holds the deterministic image transforms applied before
// and after a transfer. Every function returns a new Asset, or its input
// unchanged when there is nothing to do.
package preprocess

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/validate"
	"github.com/samber/lo"
)

const (
	DefaultResolution = 1024
	DefaultMaxAspect  = 2.0
)

// Resize scales a down so that it fits within maxW x maxH, keeping its aspect
// ratio. Images already within bounds are returned as-is, which makes Resize
// idempotent. A non-positive bound leaves that axis unconstrained.
func Resize(a *asset.Asset, maxW, maxH int) *asset.Asset {
	w, h := a.Width(), a.Height()
	maxW = lo.Ternary(maxW > 0, maxW, w)
	maxH = lo.Ternary(maxH > 0, maxH, h)
	if w <= maxW && h <= maxH {
		return a
	}

	var nw, nh int
	if w*maxH >= h*maxW {
		nw, nh = maxW, h*maxW/w
	} else {
		nw, nh = w*maxH/h, maxH
	}
	nw, nh = max(nw, 1), max(nh, 1)
	return asset.New(imaging.Resize(a.Image(), nw, nh, imaging.Lanczos))
}

// NormalizeMode converts a to opaque three channel RGB backed by an
// *image.NRGBA. Alpha is dropped, not composited.
func NormalizeMode(a *asset.Asset) (*asset.Asset, error) {
	switch a.Mode() {
	case asset.ModeUnknown:
		return nil, &validate.Error{Kind: validate.UnsupportedColorMode, Msg: fmt.Sprintf("cannot convert %T to RGB", a.Image())}
	case asset.ModeRGB:
		if _, ok := a.Image().(*image.NRGBA); ok {
			return a, nil
		}
	case asset.ModePaletted:
		if p, ok := a.Image().(*image.Paletted); ok {
			for _, c := range p.Palette {
				if _, _, _, alpha := c.RGBA(); alpha != 0xffff {
					return nil, &validate.Error{Kind: validate.UnsupportedColorMode, Msg: "palette has translucent entries"}
				}
			}
		}
	}

	dst := imaging.Clone(a.Image())
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return asset.New(dst), nil
}

// CropCenter cuts a w x h rectangle out of the middle of a. Sizes larger
// than the image are clamped to it.
func CropCenter(a *asset.Asset, w, h int) *asset.Asset {
	w, h = min(max(w, 1), a.Width()), min(max(h, 1), a.Height())
	if w == a.Width() && h == a.Height() {
		return a
	}
	return asset.New(imaging.CropCenter(a.Image(), w, h))
}

// FitAspect crops the long side of a so that long/short does not exceed
// maxRatio.
func FitAspect(a *asset.Asset, maxRatio float64) *asset.Asset {
	if maxRatio < 1 {
		return a
	}
	w, h := a.Width(), a.Height()
	switch {
	case float64(w) > float64(h)*maxRatio:
		return CropCenter(a, int(float64(h)*maxRatio), h)
	case float64(h) > float64(w)*maxRatio:
		return CropCenter(a, w, int(float64(w)*maxRatio))
	default:
		return a
	}
}

func aspect(a *asset.Asset) float64 {
	w, h := float64(a.Width()), float64(a.Height())
	return max(w, h) / max(min(w, h), 1)
}

type Options struct {
	Resolution int
	MaxAspect  float64
}

func DefaultOptions() Options {
	return Options{Resolution: DefaultResolution, MaxAspect: DefaultMaxAspect}
}

type Step struct {
	Name   string
	Detail string
}

func (s Step) String() string { return s.Name + ": " + s.Detail }

// Prepare brings a model input into shape: aspect fit, resize to the working
// resolution, then colour normalization. It reports what each step did.
func Prepare(a *asset.Asset, opts Options) (*asset.Asset, []Step, error) {
	steps := make([]Step, 0, 3)

	fitted := FitAspect(a, opts.MaxAspect)
	if fitted != a {
		steps = append(steps, Step{"crop", fmt.Sprintf("%s -> %s (aspect %.2f > %.2f)", a.Dimensions(), fitted.Dimensions(), aspect(a), opts.MaxAspect)})
	} else {
		steps = append(steps, Step{"crop", fmt.Sprintf("aspect %.2f kept", aspect(a))})
	}

	resized := Resize(fitted, opts.Resolution, opts.Resolution)
	if resized != fitted {
		steps = append(steps, Step{"resize", fmt.Sprintf("%s -> %s", fitted.Dimensions(), resized.Dimensions())})
	} else {
		steps = append(steps, Step{"resize", fmt.Sprintf("%s within %dx%d", fitted.Dimensions(), opts.Resolution, opts.Resolution)})
	}

	normalized, err := NormalizeMode(resized)
	if err != nil {
		return nil, steps, err
	}
	steps = append(steps, Step{"normalize", fmt.Sprintf("%s -> %s", resized.Mode(), normalized.Mode())})
	return normalized, steps, nil
}

func clamp(v float64) uint8 {
	return uint8(min(max(v+0.5, 0), 255))
}

func luma(c color.NRGBA) float64 {
	return (299*float64(c.R) + 587*float64(c.G) + 114*float64(c.B)) / 1000
}
