package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aliskhannn/pixelkit/internal/audit"
	"github.com/aliskhannn/pixelkit/internal/config"
	"github.com/aliskhannn/pixelkit/internal/imgerr"
	"github.com/aliskhannn/pixelkit/internal/metrics"
	"github.com/aliskhannn/pixelkit/internal/model"
	"github.com/aliskhannn/pixelkit/internal/surface"
	"github.com/aliskhannn/pixelkit/internal/validation"
)

// State is the lifecycle state of one invocation.
type State string

const (
	StateIdle         State = "idle"
	StateValidating   State = "validating"
	StateDecoding     State = "decoding"
	StateTransforming State = "transforming"
	StateEncoding     State = "encoding"
	StateDone         State = "done"
	StateFailed       State = "failed"
	StateTimedOut     State = "timed_out"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateTimedOut
}

// Processor runs single-image conversions: validate, decode, transform and
// encode on a pooled surface under a per-operation deadline.
// It is safe for concurrent use.
type Processor struct {
	policy   config.Policy
	gate     *validation.Gate
	pool     *surface.Pool
	registry *Registry
	limiter  *rateLimiter
	decoder  Decoder
	encoder  *Encoder

	emitter audit.Emitter
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	onState func(id string, s State)

	poolCapacity int
	codecs       map[string]Codec
}

// Option configures a Processor.
type Option func(*Processor)

// WithDecoder replaces the decode stage.
func WithDecoder(d Decoder) Option {
	return func(p *Processor) {
		p.decoder = d
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

// WithMetrics records operations into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithClock overrides the time source used for the registry, the rate
// limiter, the surface pool and elapsed-time reporting.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// WithPoolCapacity sets the number of pooled surfaces.
func WithPoolCapacity(n int) Option {
	return func(p *Processor) {
		p.poolCapacity = n
	}
}

// WithCodec installs or replaces the encoder for one output MIME type.
func WithCodec(mimeType string, c Codec) Option {
	return func(p *Processor) {
		if p.codecs == nil {
			p.codecs = make(map[string]Codec)
		}
		p.codecs[mimeType] = c
	}
}

// WithStateHook calls fn on every state transition of every invocation.
// fn may be called from several goroutines at once.
func WithStateHook(fn func(id string, s State)) Option {
	return func(p *Processor) {
		p.onState = fn
	}
}

// New creates a Processor enforcing policy.
func New(policy config.Policy, opts ...Option) *Processor {
	p := &Processor{
		policy:       policy,
		registry:     NewRegistry(),
		decoder:      ImagingDecoder{},
		emitter:      audit.Discard{},
		logger:       zerolog.Nop(),
		now:          time.Now,
		poolCapacity: surface.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.gate = validation.NewGate(policy, p.emitter)
	p.encoder = NewEncoder(policy, p.codecs)
	p.limiter = newRateLimiter(policy.RateLimit.Requests, policy.RateLimit.Window, p.now)
	p.pool = surface.New(p.poolCapacity,
		surface.WithClock(p.now),
		surface.WithEvictHook(p.surfaceEvicted),
	)

	return p
}

// Process converts file according to opts and returns the encoded result.
//
// The returned error always carries an imgerr kind. The surface lease and the
// registry entry are released on every path, including timeouts; a stage that
// outlives its deadline finishes in the background and its result is dropped.
func (p *Processor) Process(ctx context.Context, file model.SourceFile, opts model.Options) (model.Blob, error) {
	fileHash := audit.HashName(file.Name)
	id := uuid.NewString()
	start := p.now()

	p.registry.Add(Entry{
		ID:        id,
		StartTime: start,
		FileHash:  fileHash,
		Options:   opts,
	})
	defer p.registry.Remove(id)

	p.metrics.OperationStarted()

	tr := &tracker{id: id, hook: p.onState}
	tr.set(StateIdle)

	blob, err := p.run(ctx, tr, file, opts)
	elapsed := p.now().Sub(start)

	switch {
	case err == nil:
		tr.set(StateDone)
		p.metrics.OperationFinished(metrics.OutcomeSuccess, "", elapsed, blob.Size())
		p.emitter.Emit(audit.ProcessingSuccess, map[string]any{
			"processId":      id,
			"fileName":       fileHash,
			"processingTime": elapsed.Milliseconds(),
			"outputSize":     blob.Size(),
			"outputFormat":   blob.Format,
			"width":          blob.Width,
			"height":         blob.Height,
		})
		p.logger.Debug().
			Str("process_id", id).
			Str("format", blob.Format).
			Int("bytes", blob.Size()).
			Dur("elapsed", elapsed).
			Msg("image processed")

	case errors.Is(err, imgerr.ErrProcessTimeout):
		tr.set(StateTimedOut)
		p.metrics.OperationFinished(metrics.OutcomeTimeout, string(imgerr.KindProcessTimeout), elapsed, 0)
		p.emitter.Emit(audit.ProcessTimeout, map[string]any{
			"processId": id,
			"fileName":  fileHash,
			"timeout":   p.policy.Timeout.Milliseconds(),
		})
		p.logger.Warn().Str("process_id", id).Dur("timeout", p.policy.Timeout).Msg("image processing timed out")

	default:
		kind := imgerr.KindOf(err)
		tr.set(StateFailed)
		p.metrics.OperationFinished(metrics.OutcomeFailure, string(kind), elapsed, 0)
		p.emitter.Emit(audit.ProcessingFailed, map[string]any{
			"processId":      id,
			"fileName":       fileHash,
			"kind":           string(kind),
			"error":          err.Error(),
			"processingTime": elapsed.Milliseconds(),
		})
		p.logger.Warn().Err(err).Str("process_id", id).Str("kind", string(kind)).Msg("image processing failed")
	}

	return blob, err
}

type stageResult struct {
	blob model.Blob
	err  error
}

// run bounds the whole invocation, validation included, by the policy
// timeout. Only files that pass validation count against the rate limit.
func (p *Processor) run(ctx context.Context, tr *tracker, file model.SourceFile, opts model.Options) (model.Blob, error) {
	ctx, cancel := context.WithTimeout(ctx, p.policy.Timeout)
	defer cancel()

	tr.set(StateValidating)
	if err := p.gate.Validate(ctx, file); err != nil {
		if ctx.Err() != nil {
			return model.Blob{}, timeoutError(ctx, tr.id)
		}
		return model.Blob{}, err
	}

	if !p.limiter.allow() {
		p.emitter.Emit(audit.RateLimitExceeded, map[string]any{
			"processId": tr.id,
			"fileName":  audit.HashName(file.Name),
			"limit":     p.policy.RateLimit.Requests,
			"window":    p.policy.RateLimit.Window.String(),
		})
		return model.Blob{}, fmt.Errorf("process %s: %w", tr.id, imgerr.ErrRateLimitExceeded)
	}

	format := opts.Format
	if format == "" {
		format = file.Type
	}

	lease := p.pool.Acquire()
	defer lease.Release()

	done := make(chan stageResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageResult{err: fmt.Errorf("process %s: panic: %v: %w", tr.id, r, imgerr.ErrInternal)}
			}
		}()

		blob, err := p.stages(ctx, tr, lease, file.Data, format, opts)
		done <- stageResult{blob: blob, err: err}
	}()

	select {
	case <-ctx.Done():
		return model.Blob{}, timeoutError(ctx, tr.id)
	case r := <-done:
		// A stage that gave up because the deadline passed counts as a timeout.
		if r.err != nil && ctx.Err() != nil {
			return model.Blob{}, timeoutError(ctx, tr.id)
		}
		return r.blob, r.err
	}
}

// stages runs decode, transform and encode on the leased surface.
func (p *Processor) stages(ctx context.Context, tr *tracker, lease *surface.Lease, data []byte, format string, opts model.Options) (model.Blob, error) {
	tr.set(StateDecoding)
	src, err := p.decoder.Decode(ctx, data)
	if err != nil {
		return model.Blob{}, err
	}

	b := src.Bounds()
	if err := validation.CheckDimensions(b.Dx(), b.Dy(), p.policy); err != nil {
		return model.Blob{}, fmt.Errorf("decoded raster: %w", err)
	}

	tr.set(StateTransforming)
	canvas, err := p.transform(lease, src, opts)
	if err != nil {
		return model.Blob{}, err
	}

	tr.set(StateEncoding)
	return p.encoder.Encode(ctx, canvas, format, opts.Quality)
}

func (p *Processor) transform(lease *surface.Lease, src image.Image, opts model.Options) (*image.NRGBA, error) {
	b := src.Bounds()
	dims, err := ResolveDimensions(b.Dx(), b.Dy(), opts, p.policy)
	if err != nil {
		return nil, err
	}

	canvas, err := lease.Resize(dims.Width, dims.Height)
	if err != nil {
		return nil, err
	}

	drawScaled(canvas, src, opts.Smoothing())
	ApplyFilters(canvas, opts.Filters)
	if opts.Watermark != "" {
		drawWatermark(canvas, opts.Watermark)
	}

	return canvas, nil
}

func timeoutError(ctx context.Context, id string) error {
	return fmt.Errorf("process %s: %w: %w", id, imgerr.ErrProcessTimeout, context.Cause(ctx))
}

func (p *Processor) surfaceEvicted(info surface.Info) {
	p.metrics.SurfaceEvicted()
	p.emitter.Emit(audit.SurfaceEvicted, map[string]any{
		"surfaceId": info.ID,
		"width":     info.Width,
		"height":    info.Height,
		"lastUsed":  info.LastUsed,
	})
	p.logger.Warn().Int("surface_id", info.ID).Msg("busy surface evicted")
}

// Status is a snapshot of a Processor's activity.
type Status struct {
	Active []Entry       `json:"active"`
	Pool   surface.Stats `json:"pool"`
}

// Status returns the in-flight invocations and pool usage.
func (p *Processor) Status() Status {
	return Status{
		Active: p.registry.List(),
		Pool:   p.pool.Stats(),
	}
}

// AbortAll forgets every in-flight invocation and returns how many there
// were. Running stages are not interrupted; they finish or time out on their
// own and their leases are released as usual.
func (p *Processor) AbortAll() int {
	n := p.registry.Clear()

	p.emitter.Emit(audit.AllProcessesAborted, map[string]any{"count": n})
	p.logger.Info().Int("count", n).Msg("all processes aborted")

	return n
}

// Close aborts all invocations and resets every pooled surface.
func (p *Processor) Close() {
	p.AbortAll()
	p.pool.Close()
}

// Pool returns the surface pool.
func (p *Processor) Pool() *surface.Pool {
	return p.pool
}

// Registry returns the in-flight registry.
func (p *Processor) Registry() *Registry {
	return p.registry
}

// Supports reports whether the processor can encode mimeType.
func (p *Processor) Supports(mimeType string) bool {
	return p.encoder.Supported(mimeType)
}

// tracker reports state transitions of one invocation and drops any that
// follow a terminal state.
type tracker struct {
	id    string
	hook  func(id string, s State)
	mu    sync.Mutex
	state State
}

func (t *tracker) set(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return
	}
	t.state = s
	if t.hook != nil {
		t.hook(t.id, s)
	}
}
