package preprocess

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/dmorgan81/hairswap/internal/asset"
)

// Factors scale each adjustment. 1.0 leaves the image unchanged, 0 gives the
// degenerate image (black, flat grey, blurred, greyscale respectively).
type Factors struct {
	Brightness float64 `yaml:"brightness"`
	Contrast   float64 `yaml:"contrast"`
	Sharpness  float64 `yaml:"sharpness"`
	Saturation float64 `yaml:"saturation"`
}

func DefaultFactors() Factors {
	return Factors{Brightness: 1.05, Contrast: 1.05, Sharpness: 1.1, Saturation: 1.0}
}

func (f Factors) IsIdentity() bool {
	return f.Brightness == 1 && f.Contrast == 1 && f.Sharpness == 1 && f.Saturation == 1
}

// Enhance applies brightness, contrast, sharpness and saturation in that
// order. Each step blends the image with a degenerate version of itself:
// out = degenerate + factor*(in - degenerate).
func Enhance(a *asset.Asset, f Factors) *asset.Asset {
	if f.IsIdentity() {
		return a
	}
	img := imaging.Clone(a.Image())
	if f.Brightness != 1 {
		img = imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{
				R: clamp(float64(c.R) * f.Brightness),
				G: clamp(float64(c.G) * f.Brightness),
				B: clamp(float64(c.B) * f.Brightness),
				A: c.A,
			}
		})
	}
	if f.Contrast != 1 {
		mean := meanLuma(img)
		img = imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{
				R: clamp(mean + f.Contrast*(float64(c.R)-mean)),
				G: clamp(mean + f.Contrast*(float64(c.G)-mean)),
				B: clamp(mean + f.Contrast*(float64(c.B)-mean)),
				A: c.A,
			}
		})
	}
	if f.Sharpness != 1 {
		smooth := imaging.Convolve3x3(img, [9]float64{
			1, 1, 1,
			1, 5, 1,
			1, 1, 1,
		}, &imaging.ConvolveOptions{Normalize: true})
		img = blend(smooth, img, f.Sharpness)
	}
	if f.Saturation != 1 {
		img = blend(imaging.Grayscale(img), img, f.Saturation)
	}
	return asset.New(img)
}

func blend(degenerate, img *image.NRGBA, factor float64) *image.NRGBA {
	dst := image.NewNRGBA(img.Rect)
	for i := 0; i < len(img.Pix); i += 4 {
		for c := range 3 {
			d := float64(degenerate.Pix[i+c])
			dst.Pix[i+c] = clamp(d + factor*(float64(img.Pix[i+c])-d))
		}
		dst.Pix[i+3] = img.Pix[i+3]
	}
	return dst
}

func meanLuma(img *image.NRGBA) float64 {
	var sum float64
	n := 0
	for i := 0; i < len(img.Pix); i += 4 {
		sum += luma(color.NRGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2]})
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(int(sum/float64(n) + 0.5))
}
