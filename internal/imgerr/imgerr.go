// Package imgerr defines the failure kinds reported by the conversion pipeline.
//
// Every stage fails with one of the sentinel errors below, usually wrapped
// with fmt.Errorf to add context. KindOf recovers the kind from any error in
// the chain so callers can report it verbatim.
package imgerr

import "errors"

// Kind identifies a class of pipeline failure.
type Kind string

// Validation kinds.
const (
	KindInvalidFormat       Kind = "InvalidFormat"
	KindFileTooLarge        Kind = "FileTooLarge"
	KindInvalidFileName     Kind = "InvalidFileName"
	KindImageTooLarge       Kind = "ImageTooLarge"
	KindInvalidAspectRatio  Kind = "InvalidAspectRatio"
	KindInvalidImageContent Kind = "InvalidImageContent"
)

// Decode kinds.
const (
	KindFileReadError    Kind = "FileReadError"
	KindImageLoadFailed  Kind = "ImageLoadFailed"
	KindImageLoadTimeout Kind = "ImageLoadTimeout"
)

// Transform kinds.
const (
	KindInvalidDimensions  Kind = "InvalidDimensions"
	KindDimensionsTooLarge Kind = "DimensionsTooLarge"
	KindSurfaceEvicted     Kind = "SurfaceEvicted"
)

// Encode kinds.
const (
	KindUnsupportedFormat    Kind = "UnsupportedFormat"
	KindInvalidQuality       Kind = "InvalidQuality"
	KindBlobConversionFailed Kind = "BlobConversionFailed"
)

// Orchestration and batch kinds.
const (
	KindProcessTimeout    Kind = "ProcessTimeout"
	KindRateLimitExceeded Kind = "RateLimitExceeded"
	KindTooManyFiles      Kind = "TooManyFiles"
	KindBatchInProgress   Kind = "BatchInProgress"
	KindInvalidMode       Kind = "InvalidMode"
	KindNoFiles           Kind = "NoFiles"
	KindInternal          Kind = "Internal"
)

var (
	ErrInvalidFormat       = errors.New("file format is not supported")
	ErrFileTooLarge        = errors.New("file is too large")
	ErrInvalidFileName     = errors.New("file name is not allowed")
	ErrImageTooLarge       = errors.New("image dimensions are too large")
	ErrInvalidAspectRatio  = errors.New("image aspect ratio is out of range")
	ErrInvalidImageContent = errors.New("file content is not a valid image")

	ErrFileReadError    = errors.New("file could not be read")
	ErrImageLoadFailed  = errors.New("image could not be decoded")
	ErrImageLoadTimeout = errors.New("image decoding timed out")

	ErrInvalidDimensions  = errors.New("target dimensions are invalid")
	ErrDimensionsTooLarge = errors.New("target dimensions are too large")
	ErrSurfaceEvicted     = errors.New("drawing surface was reclaimed by the pool")

	ErrUnsupportedFormat    = errors.New("output format is not supported")
	ErrInvalidQuality       = errors.New("quality value is not a number")
	ErrBlobConversionFailed = errors.New("image could not be encoded")

	ErrProcessTimeout    = errors.New("processing timed out")
	ErrRateLimitExceeded = errors.New("too many processing requests")
	ErrTooManyFiles      = errors.New("too many files in batch")
	ErrBatchInProgress   = errors.New("another batch is already running")
	ErrInvalidMode       = errors.New("unknown batch mode")
	ErrNoFiles           = errors.New("no files to process")
	ErrInternal          = errors.New("internal processing error")
)

var sentinels = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidFormat, KindInvalidFormat},
	{ErrFileTooLarge, KindFileTooLarge},
	{ErrInvalidFileName, KindInvalidFileName},
	{ErrImageTooLarge, KindImageTooLarge},
	{ErrInvalidAspectRatio, KindInvalidAspectRatio},
	{ErrInvalidImageContent, KindInvalidImageContent},
	{ErrFileReadError, KindFileReadError},
	{ErrImageLoadFailed, KindImageLoadFailed},
	{ErrImageLoadTimeout, KindImageLoadTimeout},
	{ErrInvalidDimensions, KindInvalidDimensions},
	{ErrDimensionsTooLarge, KindDimensionsTooLarge},
	{ErrSurfaceEvicted, KindSurfaceEvicted},
	{ErrUnsupportedFormat, KindUnsupportedFormat},
	{ErrInvalidQuality, KindInvalidQuality},
	{ErrBlobConversionFailed, KindBlobConversionFailed},
	{ErrProcessTimeout, KindProcessTimeout},
	{ErrRateLimitExceeded, KindRateLimitExceeded},
	{ErrTooManyFiles, KindTooManyFiles},
	{ErrBatchInProgress, KindBatchInProgress},
	{ErrInvalidMode, KindInvalidMode},
	{ErrNoFiles, KindNoFiles},
	{ErrInternal, KindInternal},
}

// KindOf returns the kind of the first sentinel found in err's chain.
// Errors that carry no sentinel are reported as KindInternal; nil yields "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}

	return KindInternal
}

// Message returns the user-facing message for err's kind.
func Message(err error) string {
	if err == nil {
		return ""
	}

	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.err.Error()
		}
	}

	return ErrInternal.Error()
}
