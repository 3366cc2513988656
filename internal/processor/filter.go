package processor

import (
	"image"
	"math"

	"github.com/aliskhannn/pixelkit/internal/model"
)

// FilterKind is the closed set of pixel filters.
type FilterKind int

const (
	FilterUnknown FilterKind = iota // no-op
	FilterGrayscale
	FilterSepia
)

// ParseFilter maps a filter name to its kind. Unrecognized names map to
// FilterUnknown, which leaves pixels untouched.
func ParseFilter(name string) FilterKind {
	switch name {
	case "grayscale":
		return FilterGrayscale
	case "sepia":
		return FilterSepia
	default:
		return FilterUnknown
	}
}

func (k FilterKind) String() string {
	switch k {
	case FilterGrayscale:
		return "grayscale"
	case FilterSepia:
		return "sepia"
	default:
		return "unknown"
	}
}

// Apply runs the filter over img's pixels in place. Alpha is preserved.
func (k FilterKind) Apply(img *image.NRGBA) {
	var fn func(r, g, b float64) (float64, float64, float64)

	switch k {
	case FilterGrayscale:
		fn = grayscale
	case FilterSepia:
		fn = sepia
	default:
		return
	}

	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			r, g, b := fn(float64(row[i]), float64(row[i+1]), float64(row[i+2]))
			row[i] = toByte(r)
			row[i+1] = toByte(g)
			row[i+2] = toByte(b)
		}
	}
}

// ApplyFilters applies filters to img in the given order.
func ApplyFilters(img *image.NRGBA, filters []model.Filter) {
	for _, f := range filters {
		ParseFilter(f.Type).Apply(img)
	}
}

func grayscale(r, g, b float64) (float64, float64, float64) {
	v := 0.299*r + 0.587*g + 0.114*b
	return v, v, v
}

func sepia(r, g, b float64) (float64, float64, float64) {
	return math.Min(255, 0.393*r+0.769*g+0.189*b),
		math.Min(255, 0.349*r+0.686*g+0.168*b),
		math.Min(255, 0.272*r+0.534*g+0.131*b)
}

// toByte rounds v to the nearest integer and clamps it to [0, 255].
func toByte(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
