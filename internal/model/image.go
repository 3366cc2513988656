package model

import (
	"path/filepath"
	"strings"
)

// SourceFile is a user-supplied image borrowed by the pipeline for one operation.
type SourceFile struct {
	Name string `json:"name"` // display name, including extension
	Type string `json:"type"` // declared MIME type
	Size int64  `json:"size"` // byte length as declared by the caller
	Data []byte `json:"-"`
}

// NewSourceFile builds a SourceFile whose size is the length of data.
func NewSourceFile(name, mimeType string, data []byte) SourceFile {
	return SourceFile{
		Name: name,
		Type: mimeType,
		Size: int64(len(data)),
		Data: data,
	}
}

// BaseName returns the file name without its last extension.
func (f SourceFile) BaseName() string {
	return strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
}

// Filter names one pixel filter to apply after drawing.
type Filter struct {
	Type string `json:"type"` // "grayscale", "sepia"; anything else is ignored
}

// Blob is an encoded output image.
type Blob struct {
	Data   []byte `json:"-"`
	Format string `json:"format"` // MIME type of Data
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Size returns the encoded length in bytes.
func (b Blob) Size() int {
	return len(b.Data)
}

// Mode selects how a batch derives per-file options.
type Mode string

const (
	ModeCompress Mode = "compress" // jpeg at the shared quality
	ModeConvert  Mode = "convert"  // shared target format at default quality
)

// FileFailure records why one file of a batch was not processed.
type FileFailure struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
