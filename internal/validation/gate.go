// Package validation checks candidate files against the processing policy
// before any full decode is attempted.
package validation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"unicode"
	"unicode/utf8"

	// Decoders needed to read true dimensions from file headers.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/aliskhannn/pixelkit/internal/audit"
	"github.com/aliskhannn/pixelkit/internal/config"
	"github.com/aliskhannn/pixelkit/internal/imgerr"
	"github.com/aliskhannn/pixelkit/internal/model"
)

// illegalNameChars may not appear anywhere in a file name.
const illegalNameChars = `<>:"|?*`

// Gate validates files against a fixed policy.
type Gate struct {
	policy  config.Policy
	emitter audit.Emitter
}

// NewGate creates a Gate. A nil emitter discards events.
func NewGate(policy config.Policy, emitter audit.Emitter) *Gate {
	if emitter == nil {
		emitter = audit.Discard{}
	}
	return &Gate{policy: policy, emitter: emitter}
}

// Validate runs every check in order and stops at the first failure:
// declared type, byte size, file name, then the true pixel dimensions read
// from the content. Both outcomes are reported as audit events.
func (g *Gate) Validate(ctx context.Context, file model.SourceFile) error {
	err := g.validate(ctx, file)
	if err != nil {
		g.emitter.Emit(audit.FileValidationFailed, map[string]any{
			"fileName": audit.HashName(file.Name),
			"kind":     string(imgerr.KindOf(err)),
			"error":    err.Error(),
		})
		return err
	}

	g.emitter.Emit(audit.FileValidationSuccess, map[string]any{
		"fileName": audit.HashName(file.Name),
		"fileSize": file.Size,
		"fileType": file.Type,
	})
	return nil
}

func (g *Gate) validate(ctx context.Context, file model.SourceFile) error {
	if !g.allowedType(file.Type) {
		return fmt.Errorf("validate type %q: %w", file.Type, imgerr.ErrInvalidFormat)
	}

	if file.Size > g.policy.MaxFileSize {
		return fmt.Errorf("validate size %d > %d: %w", file.Size, g.policy.MaxFileSize, imgerr.ErrFileTooLarge)
	}

	if reason := g.unsafeName(file.Name); reason != "" {
		return fmt.Errorf("validate name: %s: %w", reason, imgerr.ErrInvalidFileName)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("validate content: %w: %w", imgerr.ErrImageLoadTimeout, err)
	}

	return g.checkContent(file.Data)
}

func (g *Gate) allowedType(mimeType string) bool {
	for _, t := range g.policy.AllowedTypes {
		if mimeType == t {
			return true
		}
	}
	return false
}

// unsafeName returns a reason the name is rejected, or "" if it is acceptable.
func (g *Gate) unsafeName(name string) string {
	switch {
	case name == "":
		return "empty name"
	case strings.Contains(name, "../"):
		return "path traversal"
	case strings.Contains(name, "//"):
		return "double slash"
	case strings.Contains(name, `\`):
		return "backslash"
	case strings.ContainsAny(name, illegalNameChars):
		return "illegal character"
	}

	first, _ := utf8.DecodeRuneInString(name)
	last, _ := utf8.DecodeLastRuneInString(name)
	if unicode.IsSpace(first) || unicode.IsSpace(last) {
		return "leading or trailing whitespace"
	}

	if utf8.RuneCountInString(name) > g.policy.MaxFileNameLength {
		return "name too long"
	}

	lower := strings.ToLower(name)
	for _, suffix := range g.policy.DangerousSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return "executable suffix " + suffix
		}
	}

	for _, ext := range g.policy.AllowedExtensions {
		if strings.HasSuffix(lower, ext) {
			return ""
		}
	}
	return "extension not allowed"
}

// checkContent reads the image header and re-checks the true dimensions.
func (g *Gate) checkContent(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("validate content: %w: %w", imgerr.ErrInvalidImageContent, err)
	}

	return CheckDimensions(cfg.Width, cfg.Height, g.policy)
}

// CheckDimensions verifies decoded pixel dimensions against the policy.
func CheckDimensions(width, height int, policy config.Policy) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image is %dx%d: %w", width, height, imgerr.ErrInvalidImageContent)
	}

	if width > policy.MaxDimension || height > policy.MaxDimension {
		return fmt.Errorf("image is %dx%d, limit %d: %w", width, height, policy.MaxDimension, imgerr.ErrImageTooLarge)
	}

	ratio := float64(width) / float64(height)
	if ratio < policy.MinAspectRatio || ratio > policy.MaxAspectRatio {
		return fmt.Errorf("image aspect ratio %.4f: %w", ratio, imgerr.ErrInvalidAspectRatio)
	}

	return nil
}
