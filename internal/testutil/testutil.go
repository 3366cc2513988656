// Package testutil builds in-memory image fixtures for tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/aliskhannn/pixelkit/internal/audit"
	"github.com/aliskhannn/pixelkit/internal/model"
)

// Gradient returns a w x h image whose red channel grows left to right and
// whose green channel grows top to bottom.
func Gradient(w, h int) *image.NRGBA {
	img := imaging.New(w, h, color.NRGBA{A: 255})
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// Encode encodes img in the given imaging format and fails the test on error.
func Encode(t testing.TB, img image.Image, format imaging.Format) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

// PNG returns a w x h gradient encoded as PNG.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()
	return Encode(t, Gradient(w, h), imaging.PNG)
}

// JPEG returns a w x h gradient encoded as JPEG.
func JPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	return Encode(t, Gradient(w, h), imaging.JPEG)
}

// PNGFile returns a SourceFile holding a w x h PNG.
func PNGFile(t testing.TB, name string, w, h int) model.SourceFile {
	t.Helper()
	return model.NewSourceFile(name, "image/png", PNG(t, w, h))
}

// JPEGFile returns a SourceFile holding a w x h JPEG.
func JPEGFile(t testing.TB, name string, w, h int) model.SourceFile {
	t.Helper()
	return model.NewSourceFile(name, "image/jpeg", JPEG(t, w, h))
}

// Recorder is an audit emitter that keeps every event for inspection.
type Recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

// Emit implements audit.Emitter.
func (r *Recorder) Emit(eventType string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, audit.Event{Type: eventType, Data: data})
}

// Events returns the recorded events of the given type, or all events when
// eventType is empty.
func (r *Recorder) Events(eventType string) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []audit.Event
	for _, ev := range r.events {
		if eventType == "" || ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
