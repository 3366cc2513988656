package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support

	"github.com/aliskhannn/pixelkit/internal/imgerr"
)

// Decoder turns raw file bytes into a raster.
// Implementations must return once ctx is done, even if the underlying
// decode keeps running in the background.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (image.Image, error)
}

// ImagingDecoder decodes with disintegration/imaging, applying EXIF orientation.
type ImagingDecoder struct{}

// Decode implements Decoder.
func (ImagingDecoder) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode: empty input: %w", imgerr.ErrFileReadError)
	}

	type result struct {
		img image.Image
		err error
	}
	done := make(chan result, 1)

	go func() {
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		done <- result{img: img, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("decode: %w: %w", imgerr.ErrImageLoadTimeout, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("decode: %w: %w", imgerr.ErrImageLoadFailed, r.err)
		}
		return r.img, nil
	}
}
