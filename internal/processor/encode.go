package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/aliskhannn/pixelkit/internal/config"
	"github.com/aliskhannn/pixelkit/internal/imgerr"
	"github.com/aliskhannn/pixelkit/internal/model"
)

// FormatSpec describes an output format.
type FormatSpec struct {
	MIME    string
	Ext     string // file extension without the dot
	Quality bool   // whether the codec honours a quality setting
	Alpha   bool
}

// formats is the fixed output format table.
var formats = map[string]FormatSpec{
	"image/jpeg": {MIME: "image/jpeg", Ext: "jpeg", Quality: true, Alpha: false},
	"image/png":  {MIME: "image/png", Ext: "png", Quality: false, Alpha: true},
	"image/webp": {MIME: "image/webp", Ext: "webp", Quality: true, Alpha: true},
	"image/avif": {MIME: "image/avif", Ext: "avif", Quality: true, Alpha: true},
	"image/gif":  {MIME: "image/gif", Ext: "gif", Quality: false, Alpha: true},
	"image/bmp":  {MIME: "image/bmp", Ext: "bmp", Quality: false, Alpha: false},
}

// aliases maps non-canonical MIME types to table entries.
var aliases = map[string]string{
	"image/jpg": "image/jpeg",
}

// LookupFormat returns the table entry for a MIME type.
func LookupFormat(mimeType string) (FormatSpec, bool) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if canonical, ok := aliases[mimeType]; ok {
		mimeType = canonical
	}
	spec, ok := formats[mimeType]
	return spec, ok
}

// ResolveQuality returns the quality to hand to a codec: the policy default
// when q is nil, otherwise q clamped into the policy range. NaN and infinite
// values are rejected with ErrInvalidQuality.
func ResolveQuality(q *float64, policy config.Policy) (float64, error) {
	if q == nil {
		return policy.DefaultQuality, nil
	}
	if math.IsNaN(*q) || math.IsInf(*q, 0) {
		return 0, fmt.Errorf("quality %v: %w", *q, imgerr.ErrInvalidQuality)
	}
	return math.Max(policy.QualityMin, math.Min(*q, policy.QualityMax)), nil
}

// Codec writes img in one format. quality is in [0, 1] and is ignored by
// formats without a quality setting.
type Codec func(w io.Writer, img image.Image, quality float64) error

// percent maps a quality in [0, 1] onto the 0-100 scale codecs expect.
func percent(quality float64) int {
	return int(math.Round(quality * 100))
}

func imagingCodec(format imaging.Format) Codec {
	return func(w io.Writer, img image.Image, quality float64) error {
		if format == imaging.JPEG {
			return imaging.Encode(w, img, format, imaging.JPEGQuality(percent(quality)))
		}
		return imaging.Encode(w, img, format)
	}
}

func defaultCodecs() map[string]Codec {
	codecs := map[string]Codec{
		"image/jpeg": imagingCodec(imaging.JPEG),
		"image/png":  imagingCodec(imaging.PNG),
		"image/gif":  imagingCodec(imaging.GIF),
		"image/bmp":  imagingCodec(imaging.BMP),
	}
	for mimeType, c := range portableCodecs() {
		codecs[mimeType] = c
	}
	for mimeType, c := range platformCodecs() {
		codecs[mimeType] = c
	}
	return codecs
}

// Encoder serializes rasters according to the format table.
type Encoder struct {
	policy config.Policy
	codecs map[string]Codec
}

// NewEncoder creates an Encoder with the built-in codecs. extra overrides or
// adds codecs by MIME type; it may not add formats missing from the table.
func NewEncoder(policy config.Policy, extra map[string]Codec) *Encoder {
	codecs := defaultCodecs()
	for mimeType, c := range extra {
		codecs[mimeType] = c
	}
	return &Encoder{policy: policy, codecs: codecs}
}

// Supported reports whether a codec is available for mimeType.
func (e *Encoder) Supported(mimeType string) bool {
	spec, ok := LookupFormat(mimeType)
	if !ok {
		return false
	}
	_, ok = e.codecs[spec.MIME]
	return ok
}

// Encode writes img as format. Quality is resolved only for formats that use
// it; for the others it is dropped without validation.
func (e *Encoder) Encode(ctx context.Context, img image.Image, format string, quality *float64) (model.Blob, error) {
	spec, ok := LookupFormat(format)
	if !ok {
		return model.Blob{}, fmt.Errorf("encode %q: %w", format, imgerr.ErrUnsupportedFormat)
	}

	var q float64
	if spec.Quality {
		var err error
		if q, err = ResolveQuality(quality, e.policy); err != nil {
			return model.Blob{}, fmt.Errorf("encode %s: %w", spec.MIME, err)
		}
	}

	codec, ok := e.codecs[spec.MIME]
	if !ok {
		return model.Blob{}, fmt.Errorf("encode %s: no codec available: %w", spec.MIME, imgerr.ErrBlobConversionFailed)
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		err := codec(&buf, img, q)
		done <- result{data: buf.Bytes(), err: err}
	}()

	select {
	case <-ctx.Done():
		return model.Blob{}, fmt.Errorf("encode %s: %w: %w", spec.MIME, imgerr.ErrBlobConversionFailed, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return model.Blob{}, fmt.Errorf("encode %s: %w: %w", spec.MIME, imgerr.ErrBlobConversionFailed, r.err)
		}
		if len(r.data) == 0 {
			return model.Blob{}, fmt.Errorf("encode %s: empty output: %w", spec.MIME, imgerr.ErrBlobConversionFailed)
		}

		b := img.Bounds()
		return model.Blob{
			Data:   r.data,
			Format: spec.MIME,
			Width:  b.Dx(),
			Height: b.Dy(),
		}, nil
	}
}
