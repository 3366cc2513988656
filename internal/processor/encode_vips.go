//go:build vips

package processor

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
)

var vipsOnce sync.Once

// startVips initialises libvips once per process with conservative memory
// settings. It is never shut down; vips cannot be restarted after Shutdown.
func startVips() {
	vipsOnce.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelError)
		vips.Startup(&vips.Config{
			ConcurrencyLevel: 1,
			MaxCacheMem:      50 * 1024 * 1024,
			MaxCacheSize:     100,
		})
	})
}

// platformCodecs returns the libvips-backed webp and avif encoders.
func platformCodecs() map[string]Codec {
	return map[string]Codec{
		"image/webp": vipsCodec(func(ref *vips.ImageRef, q int) ([]byte, error) {
			params := vips.NewWebpExportParams()
			params.Quality = q
			buf, _, err := ref.ExportWebp(params)
			return buf, err
		}),
		"image/avif": vipsCodec(func(ref *vips.ImageRef, q int) ([]byte, error) {
			params := vips.NewAvifExportParams()
			params.Quality = q
			buf, _, err := ref.ExportAvif(params)
			return buf, err
		}),
	}
}

// vipsCodec hands the raster to libvips as lossless PNG and lets export
// produce the target format.
func vipsCodec(export func(ref *vips.ImageRef, quality int) ([]byte, error)) Codec {
	return func(w io.Writer, img image.Image, quality float64) error {
		startVips()

		var src bytes.Buffer
		if err := imaging.Encode(&src, img, imaging.PNG); err != nil {
			return fmt.Errorf("vips: stage raster: %w", err)
		}

		ref, err := vips.NewImageFromBuffer(src.Bytes())
		if err != nil {
			return fmt.Errorf("vips: load raster: %w", err)
		}
		defer ref.Close()

		out, err := export(ref, percent(quality))
		if err != nil {
			return fmt.Errorf("vips: export: %w", err)
		}

		_, err = w.Write(out)
		return err
	}
}
