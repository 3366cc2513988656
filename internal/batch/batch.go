// Package batch runs many files through the single-image pipeline one at a
// time and collects the successful outputs into one archive.
//
// A failing file never stops the batch: its kind is recorded and the loop
// moves on. The archive is finalized even when nothing succeeded.
package batch

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/aliskhannn/pixelkit/internal/archive"
	"github.com/aliskhannn/pixelkit/internal/audit"
	"github.com/aliskhannn/pixelkit/internal/config"
	"github.com/aliskhannn/pixelkit/internal/imgerr"
	"github.com/aliskhannn/pixelkit/internal/metrics"
	"github.com/aliskhannn/pixelkit/internal/model"
	"github.com/aliskhannn/pixelkit/internal/processor"
)

// imageProcessor converts one file.
type imageProcessor interface {
	Process(ctx context.Context, file model.SourceFile, opts model.Options) (model.Blob, error)
	Supports(mimeType string) bool
}

// Shared holds the settings applied to every file of a batch.
type Shared struct {
	Quality float64 `json:"quality"` // compress mode only
	Format  string  `json:"format"`  // convert mode only
}

// Result summarizes a finished batch.
type Result struct {
	ArchiveName  string              `json:"archiveName"`
	Archive      []byte              `json:"-"`
	Entries      []string            `json:"entries"`
	SuccessCount int                 `json:"successCount"`
	FailureCount int                 `json:"failureCount"`
	Failures     []model.FileFailure `json:"failures,omitempty"`
	Truncated    int                 `json:"truncated,omitempty"` // files dropped over the batch limit
}

// Processor runs batches. Only one batch runs at a time per Processor.
type Processor struct {
	images     imageProcessor
	policy     config.Policy
	newArchive func(modified time.Time) archive.Writer
	running    *semaphore.Weighted

	emitter audit.Emitter
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithArchive replaces the archive factory.
func WithArchive(fn func(modified time.Time) archive.Writer) Option {
	return func(p *Processor) {
		p.newArchive = fn
	}
}

// WithEmitter sends audit events to e.
func WithEmitter(e audit.Emitter) Option {
	return func(p *Processor) {
		if e != nil {
			p.emitter = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithMetrics records batch counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithClock overrides the time source used for archive naming.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// New creates a batch Processor on top of images.
func New(images imageProcessor, policy config.Policy, opts ...Option) *Processor {
	p := &Processor{
		images: images,
		policy: policy,
		newArchive: func(modified time.Time) archive.Writer {
			return archive.NewZip(modified)
		},
		running: semaphore.NewWeighted(1),
		emitter: audit.Discard{},
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process converts files in input order using the settings of mode and
// returns the archive of successful outputs.
//
// Files beyond the policy limit are dropped with a TooManyFiles warning.
// Per-file failures are reported in the Result, not as an error; the error
// is reserved for batches that cannot run at all.
func (p *Processor) Process(ctx context.Context, files []model.SourceFile, mode model.Mode, shared Shared) (Result, error) {
	if mode != model.ModeCompress && mode != model.ModeConvert {
		return Result{}, fmt.Errorf("batch mode %q: %w", mode, imgerr.ErrInvalidMode)
	}
	if len(files) == 0 {
		return Result{}, fmt.Errorf("batch: %w", imgerr.ErrNoFiles)
	}
	if mode == model.ModeConvert {
		if !p.images.Supports(shared.Format) {
			return Result{}, fmt.Errorf("batch target %q: %w", shared.Format, imgerr.ErrUnsupportedFormat)
		}
	}

	if !p.running.TryAcquire(1) {
		return Result{}, fmt.Errorf("batch: %w", imgerr.ErrBatchInProgress)
	}
	defer p.running.Release(1)

	var res Result

	if limit := p.policy.MaxFiles; len(files) > limit {
		res.Truncated = len(files) - limit
		files = files[:limit]

		p.emitter.Emit(audit.BatchTooManyFiles, map[string]any{
			"limit":   limit,
			"dropped": res.Truncated,
		})
		p.logger.Warn().
			Err(imgerr.ErrTooManyFiles).
			Int("limit", limit).
			Int("dropped", res.Truncated).
			Msg("batch truncated")
	}

	started := p.now()
	arc := p.newArchive(started)
	opts := options(mode, shared)
	used := make(map[string]struct{}, len(files))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("batch: %w", err)
		}

		blob, err := p.images.Process(ctx, file, opts)
		if err == nil {
			name := uniqueName(used, outputName(mode, file, blob.Format))
			if err = arc.Add(name, blob.Data); err == nil {
				used[name] = struct{}{}
				res.Entries = append(res.Entries, name)
				res.SuccessCount++
				p.metrics.BatchFile(string(mode), metrics.OutcomeSuccess)
				continue
			}
			err = fmt.Errorf("%w: %w", imgerr.ErrInternal, err)
		}

		p.fail(&res, mode, file, err)
	}

	data, err := arc.Close()
	if err != nil {
		return Result{}, fmt.Errorf("batch: %w: %w", imgerr.ErrInternal, err)
	}

	res.Archive = data
	res.ArchiveName = fmt.Sprintf("pixelkit-batch-%s-%d.zip", mode, started.UnixMilli())

	p.metrics.BatchCompleted(string(mode))
	p.emitter.Emit(audit.BatchCompleted, map[string]any{
		"mode":         string(mode),
		"successCount": res.SuccessCount,
		"failureCount": res.FailureCount,
		"truncated":    res.Truncated,
	})
	p.logger.Info().
		Str("mode", string(mode)).
		Int("succeeded", res.SuccessCount).
		Int("failed", res.FailureCount).
		Msg("batch completed")

	return res, nil
}

func (p *Processor) fail(res *Result, mode model.Mode, file model.SourceFile, err error) {
	kind := imgerr.KindOf(err)

	res.FailureCount++
	res.Failures = append(res.Failures, model.FileFailure{
		Name:    file.Name,
		Kind:    string(kind),
		Message: imgerr.Message(err),
	})

	p.metrics.BatchFile(string(mode), metrics.OutcomeFailure)
	p.emitter.Emit(audit.BatchFileFailed, map[string]any{
		"fileName": audit.HashName(file.Name),
		"kind":     string(kind),
	})
	p.logger.Warn().Err(err).Str("kind", string(kind)).Msg("batch file failed")
}

// options derives the per-file options for mode.
func options(mode model.Mode, shared Shared) model.Options {
	if mode == model.ModeCompress {
		return model.Options{Format: "image/jpeg"}.WithQuality(shared.Quality)
	}
	return model.Options{Format: shared.Format}
}

// outputName returns the archive entry name for a converted file:
// compressed-<base>.jpg in compress mode, <base>.<subtype> in convert mode.
func outputName(mode model.Mode, file model.SourceFile, format string) string {
	base := path.Base(strings.ReplaceAll(file.BaseName(), `\`, "/"))
	if mode == model.ModeCompress {
		return "compressed-" + base + ".jpg"
	}

	ext := strings.TrimPrefix(format, "image/")
	if spec, ok := processor.LookupFormat(format); ok {
		ext = spec.Ext
	}
	return base + "." + ext
}

// uniqueName appends -1, -2, ... before the extension until name is unused.
func uniqueName(used map[string]struct{}, name string) string {
	if _, ok := used[name]; !ok {
		return name
	}

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, ok := used[candidate]; !ok {
			return candidate
		}
	}
}
