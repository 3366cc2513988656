package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/pflag"

	"github.com/aliskhannn/pixelkit/internal/model"
	"github.com/aliskhannn/pixelkit/internal/processor"
)

// readSource loads a file from disk. The declared type is sniffed from the
// content unless override is set.
func readSource(path, override string) (model.SourceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.SourceFile{}, fmt.Errorf("read %s: %w", path, err)
	}

	mimeType := override
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}

	return model.NewSourceFile(filepath.Base(path), mimeType, data), nil
}

// optionParams collects the conversion flags the user actually set, keyed
// the way model.ParseOptions expects.
func optionParams(fs *pflag.FlagSet) map[string]string {
	params := make(map[string]string)

	set := func(flag, key string) {
		if f := fs.Lookup(flag); f != nil && f.Changed {
			params[key] = f.Value.String()
		}
	}

	set("width", "width")
	set("height", "height")
	set("keep-aspect", "maintain_aspect_ratio")
	set("format", "format")
	set("quality", "quality")
	set("watermark", "watermark")

	if filters, err := fs.GetStringSlice("filter"); err == nil && len(filters) > 0 {
		params["filters"] = strings.Join(filters, ",")
	}

	if noSmoothing, err := fs.GetBool("no-smoothing"); err == nil && noSmoothing {
		params["high_quality"] = strconv.FormatBool(false)
	}

	return params
}

// singleOutputName names the result of a single conversion: <base>.<ext>.
func singleOutputName(file model.SourceFile, format string) string {
	ext := strings.TrimPrefix(format, "image/")
	if spec, ok := processor.LookupFormat(format); ok {
		ext = spec.Ext
	}
	return file.BaseName() + "." + ext
}
