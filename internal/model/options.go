package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aliskhannn/pixelkit/internal/imgerr"
)

// Options configures a single conversion.
type Options struct {
	Width               int      `json:"width,omitempty"`  // 0 keeps the source axis
	Height              int      `json:"height,omitempty"` // 0 keeps the source axis
	MaintainAspectRatio bool     `json:"maintainAspectRatio,omitempty"`
	Format              string   `json:"format,omitempty"`  // output MIME type; empty keeps the source type
	Quality             *float64 `json:"quality,omitempty"` // nil selects the default quality
	Filters             []Filter `json:"filters,omitempty"`
	HighQuality         *bool    `json:"highQuality,omitempty"` // nil means enabled
	Watermark           string   `json:"watermark,omitempty"`
}

// Smoothing reports whether high-quality resampling is requested.
func (o Options) Smoothing() bool {
	return o.HighQuality == nil || *o.HighQuality
}

// WithQuality returns a copy of o with the given quality.
func (o Options) WithQuality(q float64) Options {
	o.Quality = &q
	return o
}

// ParseOptions builds Options from string parameters such as CLI flags or
// form fields. Recognized keys: width, height, maintain_aspect_ratio, format,
// quality, filters (comma separated), high_quality, watermark. Unknown keys
// are ignored.
//
// A quality that is not a number is reported as imgerr.ErrInvalidQuality.
func ParseOptions(params map[string]string) (Options, error) {
	var opts Options

	if v := strings.TrimSpace(params["width"]); v != "" {
		width, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, fmt.Errorf("invalid width %q: %w", v, imgerr.ErrInvalidDimensions)
		}
		opts.Width = width
	}

	if v := strings.TrimSpace(params["height"]); v != "" {
		height, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, fmt.Errorf("invalid height %q: %w", v, imgerr.ErrInvalidDimensions)
		}
		opts.Height = height
	}

	if v := strings.TrimSpace(params["maintain_aspect_ratio"]); v != "" {
		keep, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("invalid maintain_aspect_ratio %q: %w", v, err)
		}
		opts.MaintainAspectRatio = keep
	}

	opts.Format = strings.ToLower(strings.TrimSpace(params["format"]))

	if v, ok := params["quality"]; ok {
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(q) || math.IsInf(q, 0) {
			return Options{}, fmt.Errorf("invalid quality %q: %w", v, imgerr.ErrInvalidQuality)
		}
		opts.Quality = &q
	}

	if v := params["filters"]; v != "" {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			opts.Filters = append(opts.Filters, Filter{Type: name})
		}
	}

	if v := strings.TrimSpace(params["high_quality"]); v != "" {
		hq, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("invalid high_quality %q: %w", v, err)
		}
		opts.HighQuality = &hq
	}

	opts.Watermark = params["watermark"]

	return opts, nil
}
