package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pixelkit/internal/archive"
	"github.com/aliskhannn/pixelkit/internal/audit"
	"github.com/aliskhannn/pixelkit/internal/batch"
	"github.com/aliskhannn/pixelkit/internal/config"
	"github.com/aliskhannn/pixelkit/internal/imgerr"
	"github.com/aliskhannn/pixelkit/internal/metrics"
	"github.com/aliskhannn/pixelkit/internal/model"
	"github.com/aliskhannn/pixelkit/internal/processor"
	"github.com/aliskhannn/pixelkit/internal/storage/file"
)

const usage = `Usage: pixelkit [flags] <command> <files...>

Commands:
  single    convert each file on its own
  compress  re-encode all files as JPEG into one archive
  convert   convert all files to --format into one archive

Flags:
`

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one CLI invocation with args and returns the process exit
// code. Errors are logged and returned as a non-zero code so deferred
// cleanup always runs.
func run(args []string) int {
	fs := pflag.NewFlagSet("pixelkit", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "path to config file")
	fs.String("out", "", "output directory (overrides storage.dir)")
	fs.String("format", "", "output MIME type, e.g. image/png")
	fs.String("quality", "", "encoder quality in [0.1, 1.0]")
	fs.Int("width", 0, "target width in pixels")
	fs.Int("height", 0, "target height in pixels")
	fs.Bool("keep-aspect", false, "derive the missing axis from the source aspect ratio")
	fs.StringSlice("filter", nil, "filter to apply (grayscale, sepia); repeatable")
	fs.String("watermark", "", "text drawn in the bottom-right corner")
	fs.Bool("no-smoothing", false, "use faster, lower quality resampling")
	fs.String("type", "", "declared input MIME type (default: sniffed from content)")
	showMetrics := fs.Bool("metrics", false, "print collected metrics on exit")

	_ = fs.Parse(args)

	args = fs.Args()
	if len(args) < 2 {
		fs.Usage()
		return 2
	}
	command, paths := args[0], args[1:]

	// Context & signals: cancel in-flight work on interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load configuration; --out overrides storage.dir.
	zlog.Init()

	v := viper.New()
	if err := v.BindPFlag("storage.dir", fs.Lookup("out")); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to bind flags")
		return 1
	}
	cfg := config.MustLoad(*configPath, v)

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Metrics, audit log and the single-image processor.
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	events := audit.NewLog(audit.WithLogger(zlog.Logger))

	proc := processor.New(cfg.Policy,
		processor.WithEmitter(events),
		processor.WithLogger(zlog.Logger),
		processor.WithMetrics(m),
		processor.WithPoolCapacity(cfg.Pool.Capacity),
	)
	defer proc.Close()

	// Retry strategy for uploads to remote storage.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	store, err := file.New(ctx, cfg.Storage, events.SessionID(), strategy)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to initialize storage")
		return 1
	}

	override, _ := fs.GetString("type")
	files := make([]model.SourceFile, 0, len(paths))
	for _, path := range paths {
		f, err := readSource(path, override)
		if err != nil {
			zlog.Logger.Error().Err(err).Str("path", path).Msg("failed to read input")
			return 1
		}
		files = append(files, f)
	}

	opts, err := model.ParseOptions(optionParams(fs))
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("invalid options")
		return 1
	}

	var failed bool
	switch command {
	case "single":
		failed = runSingle(ctx, proc, store, files, opts)
	case string(model.ModeCompress), string(model.ModeConvert):
		b := batch.New(proc, cfg.Policy,
			batch.WithEmitter(events),
			batch.WithLogger(zlog.Logger),
			batch.WithMetrics(m),
		)
		shared := batch.Shared{Quality: cfg.Policy.DefaultQuality, Format: opts.Format}
		if opts.Quality != nil {
			shared.Quality = *opts.Quality
		}
		failed = runBatch(ctx, b, store, files, model.Mode(command), shared)
	default:
		fs.Usage()
		return 2
	}

	if *showMetrics {
		dumpMetrics(reg)
	}

	if failed {
		return 1
	}
	return 0
}

// runSingle converts and stores each file independently. It reports whether
// any file failed.
func runSingle(ctx context.Context, proc *processor.Processor, store file.Storage, files []model.SourceFile, opts model.Options) bool {
	var failed bool

	for _, f := range files {
		blob, err := proc.Process(ctx, f, opts)
		if err != nil {
			failed = true
			fmt.Printf("%-30s FAILED  %s (%s)\n", f.Name, imgerr.Message(err), imgerr.KindOf(err))
			continue
		}

		dst, err := store.Save(ctx, singleOutputName(f, blob.Format), blob.Format, blob.Data)
		if err != nil {
			failed = true
			zlog.Logger.Error().Err(err).Str("file", f.Name).Msg("failed to store result")
			continue
		}

		fmt.Printf("%-30s %s -> %s (%dx%d) %s\n",
			f.Name, humanize.Bytes(uint64(f.Size)), humanize.Bytes(uint64(blob.Size())), blob.Width, blob.Height, dst)
	}

	return failed
}

// runBatch processes files as one batch and stores the archive. It reports
// whether the batch could not run or any file failed.
func runBatch(ctx context.Context, b *batch.Processor, store file.Storage, files []model.SourceFile, mode model.Mode, shared batch.Shared) bool {
	res, err := b.Process(ctx, files, mode, shared)
	if err != nil {
		fmt.Printf("batch failed: %s (%s)\n", imgerr.Message(err), imgerr.KindOf(err))
		return true
	}

	dst, err := store.Save(ctx, res.ArchiveName, archive.MIMEType, res.Archive)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to store archive")
		return true
	}

	for _, f := range res.Failures {
		fmt.Printf("%-30s FAILED  %s (%s)\n", f.Name, f.Message, f.Kind)
	}
	if res.Truncated > 0 {
		fmt.Printf("%d file(s) skipped: %s\n", res.Truncated, imgerr.ErrTooManyFiles)
	}
	fmt.Printf("%d succeeded, %d failed, archive %s (%s)\n",
		res.SuccessCount, res.FailureCount, dst, humanize.Bytes(uint64(len(res.Archive))))

	return res.FailureCount > 0
}

func dumpMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to gather metrics")
		return
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stderr, mf); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to write metrics")
			return
		}
	}
}
