package image

import (
	"errors"
	"fmt"
	goimage "image"
	"image/color"
	"math"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrImageLoad means no session can start: there is nothing to lay a grid on.
var ErrImageLoad = errors.New("loading table image")

// MaxRotation bounds the preview rotation in radians either way.
const MaxRotation = math.Pi / 16

var rotationFill = color.NRGBA{R: 255, A: 0}

type ImageProcessor struct{}

func NewImageProcessor() *ImageProcessor {
	return &ImageProcessor{}
}

// Load decodes path into a tightly packed RGBA buffer with its origin at (0,0).
func (ip *ImageProcessor) Load(path string) (*goimage.NRGBA, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrImageLoad, path, err)
	}
	return imaging.Clone(img), nil
}

// Rotate turns base clockwise about its centre by theta radians, keeping the
// original size. Corners that fall outside the source are transparent red.
func (ip *ImageProcessor) Rotate(base *goimage.NRGBA, theta float64) *goimage.NRGBA {
	theta = ClampRotation(theta)
	if theta == 0 {
		return imaging.Clone(base)
	}
	b := base.Bounds()
	rotated := imaging.Rotate(base, -theta*180/math.Pi, rotationFill)
	return imaging.CropCenter(rotated, b.Dx(), b.Dy())
}

func ClampRotation(theta float64) float64 {
	if math.IsNaN(theta) {
		return 0
	}
	return math.Max(-MaxRotation, math.Min(MaxRotation, theta))
}

// EnhanceQuality prepares a crop for recognition: grayscale, a contrast bump
// and a light sharpen. Small crops are upscaled first.
func (ip *ImageProcessor) EnhanceQuality(img *goimage.NRGBA) *goimage.NRGBA {
	bounds := img.Bounds()
	if bounds.Empty() {
		return img
	}
	var src goimage.Image = img
	if bounds.Dx() < 300 || bounds.Dy() < 300 {
		src = imaging.Resize(img, bounds.Dx()*2, bounds.Dy()*2, imaging.Lanczos)
	}

	gray := imaging.Grayscale(src)
	contrast := imaging.AdjustContrast(gray, 10)
	return imaging.Sharpen(contrast, 1.1)
}

// SaveCrop writes the crop as PNG. A zero-area crop is still a valid cell, so
// it is written as a single transparent pixel rather than failing.
func (ip *ImageProcessor) SaveCrop(crop Crop, path string, enhance bool) error {
	img := crop.Image()
	if img.Bounds().Empty() {
		img = imaging.New(1, 1, color.NRGBA{})
	} else if enhance {
		img = ip.EnhanceQuality(img)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("saving crop %s: %w", path, err)
	}
	return nil
}

// Cleanup removes filePath. A file that is already gone is not an error.
func (ip *ImageProcessor) Cleanup(filePath string) error {
	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
