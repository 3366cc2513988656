//go:build !vips

package processor

// platformCodecs returns no extra codecs; webp and avif use the portable
// encoders.
func platformCodecs() map[string]Codec {
	return nil
}
