package processor

import (
	"bytes"
	"context"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/pixelkit/internal/audit"
	"github.com/aliskhannn/pixelkit/internal/config"
	"github.com/aliskhannn/pixelkit/internal/imgerr"
	"github.com/aliskhannn/pixelkit/internal/metrics"
	"github.com/aliskhannn/pixelkit/internal/model"
	"github.com/aliskhannn/pixelkit/internal/testutil"
)

// gatedDecoder signals when a decode starts and then waits for release
// before decoding normally. It ignores ctx to mimic a runaway stage.
type gatedDecoder struct {
	started chan struct{}
	release chan struct{}
}

func newGatedDecoder() *gatedDecoder {
	return &gatedDecoder{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (d *gatedDecoder) Decode(_ context.Context, data []byte) (image.Image, error) {
	d.started <- struct{}{}
	<-d.release
	return ImagingDecoder{}.Decode(context.Background(), data)
}

type panicDecoder struct{}

func (panicDecoder) Decode(context.Context, []byte) (image.Image, error) {
	panic("decoder exploded")
}

func decodeBlob(t *testing.T, blob model.Blob) image.Image {
	t.Helper()

	img, err := imaging.Decode(bytes.NewReader(blob.Data))
	require.NoError(t, err)
	return img
}

func TestProcessJPEGRoundTrip(t *testing.T) {
	rec := &testutil.Recorder{}
	p := New(config.DefaultPolicy(), WithEmitter(rec))

	blob, err := p.Process(context.Background(), testutil.JPEGFile(t, "photo.jpg", 100, 100), model.Options{})
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", blob.Format)
	assert.Equal(t, 100, blob.Width)
	assert.Equal(t, 100, blob.Height)

	img := decodeBlob(t, blob)
	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())

	assert.Len(t, rec.Events(audit.FileValidationSuccess), 1)
	require.Len(t, rec.Events(audit.ProcessingSuccess), 1)
	assert.Equal(t, audit.HashName("photo.jpg"), rec.Events(audit.ProcessingSuccess)[0].Data["fileName"])

	assert.Zero(t, p.Registry().Len())
	assert.Zero(t, p.Pool().Stats().InUse)
}

func TestProcessResizeWithAspectLock(t *testing.T) {
	p := New(config.DefaultPolicy())

	blob, err := p.Process(context.Background(), testutil.PNGFile(t, "wide.png", 200, 100), model.Options{
		Width:               50,
		MaintainAspectRatio: true,
		Format:              "image/png",
	})
	require.NoError(t, err)

	assert.Equal(t, 50, blob.Width)
	assert.Equal(t, 25, blob.Height)
	assert.Equal(t, image.Rect(0, 0, 50, 25), decodeBlob(t, blob).Bounds())
}

func TestProcessRejectsOversizedRequest(t *testing.T) {
	rec := &testutil.Recorder{}
	p := New(config.DefaultPolicy(), WithEmitter(rec))

	_, err := p.Process(context.Background(), testutil.PNGFile(t, "a.png", 100, 100), model.Options{Width: 50000})
	assert.Equal(t, imgerr.KindDimensionsTooLarge, imgerr.KindOf(err))

	failed := rec.Events(audit.ProcessingFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, string(imgerr.KindDimensionsTooLarge), failed[0].Data["kind"])
	assert.Zero(t, p.Pool().Stats().InUse)
}

func TestProcessConvertsFormatAndIgnoresQualityForPNG(t *testing.T) {
	p := New(config.DefaultPolicy())

	opts := model.Options{Format: "image/png"}.WithQuality(math.NaN())
	blob, err := p.Process(context.Background(), testutil.JPEGFile(t, "photo.jpeg", 40, 30), opts)
	require.NoError(t, err)

	assert.Equal(t, "image/png", blob.Format)
	_, format, err := image.DecodeConfig(bytes.NewReader(blob.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestProcessClampsQuality(t *testing.T) {
	rec := &qualityRecorder{}
	p := New(config.DefaultPolicy(), WithCodec("image/jpeg", rec.codec))
	file := testutil.JPEGFile(t, "photo.jpg", 20, 20)

	_, err := p.Process(context.Background(), file, model.Options{}.WithQuality(1.5))
	require.NoError(t, err)
	_, err = p.Process(context.Background(), file, model.Options{}.WithQuality(-1))
	require.NoError(t, err)

	assert.Equal(t, []float64{1.0, 0.1}, rec.seen)
}

func TestProcessTIFFNeedsExplicitFormat(t *testing.T) {
	p := New(config.DefaultPolicy())
	data := testutil.Encode(t, testutil.Gradient(16, 16), imaging.TIFF)
	file := model.NewSourceFile("scan.tiff", "image/tiff", data)

	_, err := p.Process(context.Background(), file, model.Options{})
	assert.Equal(t, imgerr.KindUnsupportedFormat, imgerr.KindOf(err))

	blob, err := p.Process(context.Background(), file, model.Options{Format: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", blob.Format)
}

func TestProcessValidationFailure(t *testing.T) {
	rec := &testutil.Recorder{}
	p := New(config.DefaultPolicy(), WithEmitter(rec))

	file := model.NewSourceFile("../etc/passwd.png", "image/png", testutil.PNG(t, 4, 4))
	_, err := p.Process(context.Background(), file, model.Options{})
	assert.Equal(t, imgerr.KindInvalidFileName, imgerr.KindOf(err))

	assert.Len(t, rec.Events(audit.FileValidationFailed), 1)
	assert.Len(t, rec.Events(audit.ProcessingFailed), 1)
	assert.Zero(t, p.Registry().Len())
	assert.Equal(t, 0, p.Pool().Stats().InUse)
}

func TestProcessAppliesFiltersAndWatermark(t *testing.T) {
	p := New(config.DefaultPolicy())
	file := testutil.PNGFile(t, "a.png", 120, 80)

	plain, err := p.Process(context.Background(), file, model.Options{Format: "image/png"})
	require.NoError(t, err)

	gray, err := p.Process(context.Background(), file, model.Options{
		Format:  "image/png",
		Filters: []model.Filter{{Type: "grayscale"}},
	})
	require.NoError(t, err)

	img := imaging.Clone(decodeBlob(t, gray))
	for i := 0; i < len(img.Pix); i += 4 {
		assert.Equal(t, img.Pix[i], img.Pix[i+1])
		assert.Equal(t, img.Pix[i], img.Pix[i+2])
	}

	marked, err := p.Process(context.Background(), file, model.Options{Format: "image/png", Watermark: "pixelkit"})
	require.NoError(t, err)
	assert.NotEqual(t, imaging.Clone(decodeBlob(t, plain)).Pix, imaging.Clone(decodeBlob(t, marked)).Pix)
}

func TestProcessTimeout(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.Timeout = 50 * time.Millisecond

	rec := &testutil.Recorder{}
	dec := newGatedDecoder()
	defer close(dec.release)

	p := New(policy, WithEmitter(rec), WithDecoder(dec))

	start := time.Now()
	_, err := p.Process(context.Background(), testutil.PNGFile(t, "slow.png", 10, 10), model.Options{})
	require.Error(t, err)

	assert.Equal(t, imgerr.KindProcessTimeout, imgerr.KindOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, rec.Events(audit.ProcessTimeout), 1)

	assert.Zero(t, p.Registry().Len())
	assert.Zero(t, p.Pool().Stats().InUse)
}

func TestProcessRecoversStagePanic(t *testing.T) {
	p := New(config.DefaultPolicy(), WithDecoder(panicDecoder{}))

	_, err := p.Process(context.Background(), testutil.PNGFile(t, "a.png", 4, 4), model.Options{})
	assert.Equal(t, imgerr.KindInternal, imgerr.KindOf(err))
	assert.Zero(t, p.Pool().Stats().InUse)
	assert.Zero(t, p.Registry().Len())
}

func TestProcessRateLimit(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.RateLimit = config.RateLimit{Requests: 2, Window: time.Minute}

	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	rec := &testutil.Recorder{}
	p := New(policy, WithEmitter(rec), WithClock(clock))
	file := testutil.PNGFile(t, "a.png", 4, 4)

	for range 2 {
		_, err := p.Process(context.Background(), file, model.Options{})
		require.NoError(t, err)
	}

	_, err := p.Process(context.Background(), file, model.Options{})
	assert.Equal(t, imgerr.KindRateLimitExceeded, imgerr.KindOf(err))
	assert.Len(t, rec.Events(audit.RateLimitExceeded), 1)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	_, err = p.Process(context.Background(), file, model.Options{})
	assert.NoError(t, err)
}

func TestProcessRateLimitCountsOnlyValidFiles(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.RateLimit = config.RateLimit{Requests: 1, Window: time.Minute}

	var mu sync.Mutex
	var states []State

	rec := &testutil.Recorder{}
	p := New(policy, WithEmitter(rec), WithStateHook(func(_ string, s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	}))

	bad := model.NewSourceFile("a.png", "image/png", []byte("nope"))
	for range 3 {
		_, err := p.Process(context.Background(), bad, model.Options{})
		assert.Equal(t, imgerr.KindInvalidImageContent, imgerr.KindOf(err))
	}
	assert.Empty(t, rec.Events(audit.RateLimitExceeded))

	good := testutil.PNGFile(t, "a.png", 4, 4)
	_, err := p.Process(context.Background(), good, model.Options{})
	require.NoError(t, err)

	mu.Lock()
	states = nil
	mu.Unlock()

	_, err = p.Process(context.Background(), good, model.Options{})
	assert.Equal(t, imgerr.KindRateLimitExceeded, imgerr.KindOf(err))
	assert.Len(t, rec.Events(audit.RateLimitExceeded), 1)
	assert.Len(t, rec.Events(audit.ProcessingFailed), 4)
	assert.Zero(t, p.Registry().Len())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateIdle, StateValidating, StateFailed}, states)
}

func TestProcessDeadlineCoversValidation(t *testing.T) {
	var mu sync.Mutex
	var states []State

	rec := &testutil.Recorder{}
	p := New(config.DefaultPolicy(), WithEmitter(rec), WithStateHook(func(_ string, s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, testutil.PNGFile(t, "a.png", 4, 4), model.Options{})
	assert.Equal(t, imgerr.KindProcessTimeout, imgerr.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Len(t, rec.Events(audit.FileValidationFailed), 1)
	assert.Len(t, rec.Events(audit.ProcessTimeout), 1)
	assert.Zero(t, p.Pool().Stats().InUse)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateIdle, StateValidating, StateTimedOut}, states)
}

func TestProcessStateTransitions(t *testing.T) {
	var mu sync.Mutex
	var states []State

	p := New(config.DefaultPolicy(), WithStateHook(func(_ string, s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	}))

	_, err := p.Process(context.Background(), testutil.PNGFile(t, "a.png", 4, 4), model.Options{})
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateIdle, StateValidating, StateDecoding, StateTransforming, StateEncoding, StateDone,
	}, states)
}

func TestProcessEvictedLease(t *testing.T) {
	rec := &testutil.Recorder{}
	dec := newGatedDecoder()
	m := metrics.New(prometheus.NewRegistry())

	p := New(config.DefaultPolicy(),
		WithPoolCapacity(1),
		WithDecoder(dec),
		WithEmitter(rec),
		WithMetrics(m),
	)
	file := testutil.PNGFile(t, "a.png", 8, 8)

	type outcome struct {
		blob model.Blob
		err  error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	go func() {
		blob, err := p.Process(context.Background(), file, model.Options{})
		first <- outcome{blob, err}
	}()
	<-dec.started

	go func() {
		blob, err := p.Process(context.Background(), file, model.Options{})
		second <- outcome{blob, err}
	}()
	<-dec.started

	assert.Equal(t, 2, p.Registry().Len())
	require.Len(t, rec.Events(audit.SurfaceEvicted), 1)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.SurfaceEvictions))

	close(dec.release)

	r1 := <-first
	assert.Equal(t, imgerr.KindSurfaceEvicted, imgerr.KindOf(r1.err))

	r2 := <-second
	require.NoError(t, r2.err)
	assert.Equal(t, 8, r2.blob.Width)

	assert.Zero(t, p.Pool().Stats().InUse)
	assert.Zero(t, p.Registry().Len())
}

func TestAbortAllAndStatus(t *testing.T) {
	rec := &testutil.Recorder{}
	dec := newGatedDecoder()
	p := New(config.DefaultPolicy(), WithDecoder(dec), WithEmitter(rec))

	done := make(chan error, 1)
	go func() {
		_, err := p.Process(context.Background(), testutil.PNGFile(t, "a.png", 8, 8), model.Options{})
		done <- err
	}()
	<-dec.started

	status := p.Status()
	require.Len(t, status.Active, 1)
	assert.Equal(t, audit.HashName("a.png"), status.Active[0].FileHash)
	assert.Equal(t, 1, status.Pool.InUse)

	assert.Equal(t, 1, p.AbortAll())
	assert.Zero(t, p.Registry().Len())
	assert.Len(t, rec.Events(audit.AllProcessesAborted), 1)

	// aborting does not interrupt the running stage
	close(dec.release)
	assert.NoError(t, <-done)
	assert.Zero(t, p.Pool().Stats().InUse)

	p.Close()
	assert.Len(t, rec.Events(audit.AllProcessesAborted), 2)
}
