package image

import (
	goimage "image"
	"math"
)

// Crop is a row-major R,G,B,A buffer cut from a source image.
// Size is [width, height] in pixels.
type Crop struct {
	Pix  []byte
	Size [2]int
}

func (c Crop) Empty() bool {
	return c.Size[0] == 0 || c.Size[1] == 0
}

func (c Crop) Image() *goimage.NRGBA {
	return &goimage.NRGBA{
		Pix:    c.Pix,
		Stride: 4 * c.Size[0],
		Rect:   goimage.Rect(0, 0, c.Size[0], c.Size[1]),
	}
}

// PixelRect maps a rectangle in normalized space (origin bottom-left, y up)
// to pixel space (origin top-left, rows down) for a width x height buffer.
// Endpoints may come in either order; every coordinate is clamped to [0,1]
// first, so the result always lies inside the buffer.
func PixelRect(width, height int, x1, x2, y1, y2 float64) goimage.Rectangle {
	x1, x2, y1, y2 = clip(x1), clip(x2), clip(y1), clip(y2)
	w, h := float64(width), float64(height)

	i0 := int(math.Floor(math.Min(x1, x2) * w))
	i1 := int(math.Floor(math.Max(x1, x2) * w))
	j0 := int(math.Floor((1 - math.Max(y1, y2)) * h))
	j1 := int(math.Floor((1 - math.Min(y1, y2)) * h))

	return goimage.Rect(i0, j0, i1, j1)
}

// CropRegion copies the pixels of the normalized rectangle out of src.
// A degenerate rectangle yields an empty crop, not an error.
func CropRegion(src *goimage.NRGBA, x1, x2, y1, y2 float64) Crop {
	b := src.Bounds()
	r := PixelRect(b.Dx(), b.Dy(), x1, x2, y1, y2)
	w, h := r.Dx(), r.Dy()

	out := make([]byte, 0, 4*w*h)
	for j := r.Min.Y; j < r.Max.Y; j++ {
		off := src.PixOffset(b.Min.X+r.Min.X, b.Min.Y+j)
		out = append(out, src.Pix[off:off+4*w]...)
	}
	return Crop{Pix: out, Size: [2]int{w, h}}
}

// clip clamps to [0,1]; NaN maps to 0.
func clip(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
