package processor

import (
	"image"
	"io"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
)

// portableCodecs returns webp and avif encoders that run on an embedded
// WebAssembly runtime and need no system libraries. Platform codecs, when
// built in, take precedence.
func portableCodecs() map[string]Codec {
	return map[string]Codec{
		"image/webp": func(w io.Writer, img image.Image, quality float64) error {
			return webp.Encode(w, img, webp.Options{Quality: percent(quality)})
		},
		"image/avif": func(w io.Writer, img image.Image, quality float64) error {
			q := percent(quality)
			return avif.Encode(w, img, avif.Options{
				Quality:      q,
				QualityAlpha: q,
				Speed:        avif.DefaultSpeed,
			})
		},
	}
}
