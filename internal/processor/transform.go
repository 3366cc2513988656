package processor

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/aliskhannn/pixelkit/internal/config"
	"github.com/aliskhannn/pixelkit/internal/imgerr"
	"github.com/aliskhannn/pixelkit/internal/model"
)

// Dimensions are the resolved output size together with the source size.
type Dimensions struct {
	Width          int `json:"width"`
	Height         int `json:"height"`
	OriginalWidth  int `json:"originalWidth"`
	OriginalHeight int `json:"originalHeight"`
}

// ResolveDimensions computes the output size for a srcW x srcH raster.
//
// An axis that is not requested keeps the source value, unless aspect lock
// is on and exactly one axis is requested, in which case the other axis is
// derived from the source ratio. Explicitly requested axes beyond the policy
// maximum fail with DimensionsTooLarge; derived axes are clamped into
// [1, MaxDimension]. The result must satisfy the policy aspect range.
func ResolveDimensions(srcW, srcH int, opts model.Options, policy config.Policy) (Dimensions, error) {
	if srcW <= 0 || srcH <= 0 {
		return Dimensions{}, fmt.Errorf("source is %dx%d: %w", srcW, srcH, imgerr.ErrInvalidDimensions)
	}
	if opts.Width < 0 || opts.Height < 0 {
		return Dimensions{}, fmt.Errorf("requested %dx%d: %w", opts.Width, opts.Height, imgerr.ErrInvalidDimensions)
	}
	if opts.Width > policy.MaxDimension || opts.Height > policy.MaxDimension {
		return Dimensions{}, fmt.Errorf("requested %dx%d, limit %d: %w",
			opts.Width, opts.Height, policy.MaxDimension, imgerr.ErrDimensionsTooLarge)
	}

	width, height := srcW, srcH
	if opts.Width > 0 {
		width = opts.Width
	}
	if opts.Height > 0 {
		height = opts.Height
	}

	switch {
	case opts.MaintainAspectRatio && opts.Width > 0 && opts.Height == 0:
		height = int(math.Round(float64(srcH) / float64(srcW) * float64(width)))
	case opts.MaintainAspectRatio && opts.Height > 0 && opts.Width == 0:
		width = int(math.Round(float64(srcW) / float64(srcH) * float64(height)))
	}

	width = clamp(width, 1, policy.MaxDimension)
	height = clamp(height, 1, policy.MaxDimension)

	ratio := float64(width) / float64(height)
	if ratio < policy.MinAspectRatio || ratio > policy.MaxAspectRatio {
		return Dimensions{}, fmt.Errorf("output %dx%d: %w", width, height, imgerr.ErrInvalidAspectRatio)
	}

	return Dimensions{
		Width:          width,
		Height:         height,
		OriginalWidth:  srcW,
		OriginalHeight: srcH,
	}, nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// drawScaled scales src to fill dst exactly. dst is expected to be cleared.
func drawScaled(dst *image.NRGBA, src image.Image, smooth bool) {
	var scaler draw.Scaler = draw.ApproxBiLinear
	if smooth {
		scaler = draw.CatmullRom
	}
	scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
}
