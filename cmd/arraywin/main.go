// Command arraywin generates synthetic recordings and loads windows from
// them through the progressive window engine.
//
// Usage:
//
//	arraywin gen   [store flags] -object acquisition/lfp -rows 600000 -cols 64 -rate 30000
//	arraywin view  [store flags] -object acquisition/lfp -start 0 -end 0.5
//	arraywin units [store flags] -start 0 -end 10 -event-every 1
//
// Store flags select where datasets live: -store local|minio|s3 with -root
// for local directories or -bucket/-prefix/-endpoint for object stores.
// Every store flag falls back to an ARRAYWIN_* environment variable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/arraywin"
	"github.com/hupe1980/arraywin/blobstore"
	miniostore "github.com/hupe1980/arraywin/blobstore/minio"
	"github.com/hupe1980/arraywin/blobstore/s3"
	"github.com/hupe1980/arraywin/cache"
	"github.com/hupe1980/arraywin/dataset"
	"github.com/hupe1980/arraywin/resource"
	"github.com/hupe1980/arraywin/spikes"
	"github.com/hupe1980/arraywin/testutil"
	"github.com/hupe1980/arraywin/viewer"
)

type storeFlags struct {
	kind      string
	root      string
	bucket    string
	prefix    string
	endpoint  string
	region    string
	accessKey string
	secretKey string
	secure    bool
}

func (f *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.kind, "store", envOr("ARRAYWIN_STORE", "local"), "blob store: local, minio or s3")
	fs.StringVar(&f.root, "root", envOr("ARRAYWIN_ROOT", "arraywin_data"), "root directory of the local store")
	fs.StringVar(&f.bucket, "bucket", envOr("ARRAYWIN_BUCKET", ""), "bucket for minio and s3")
	fs.StringVar(&f.prefix, "prefix", envOr("ARRAYWIN_PREFIX", ""), "key prefix inside the bucket")
	fs.StringVar(&f.endpoint, "endpoint", envOr("ARRAYWIN_ENDPOINT", ""), "object store endpoint")
	fs.StringVar(&f.region, "region", envOr("ARRAYWIN_REGION", ""), "s3 region")
	fs.StringVar(&f.accessKey, "access-key", envOr("ARRAYWIN_ACCESS_KEY", ""), "minio access key")
	fs.StringVar(&f.secretKey, "secret-key", envOr("ARRAYWIN_SECRET_KEY", ""), "minio secret key")
	fs.BoolVar(&f.secure, "secure", envOr("ARRAYWIN_SECURE", "true") == "true", "use TLS for minio")
}

func (f *storeFlags) open(ctx context.Context) (blobstore.BlobStore, error) {
	switch f.kind {
	case "local":
		if err := os.MkdirAll(f.root, 0o755); err != nil {
			return nil, err
		}
		return blobstore.NewLocalStore(f.root), nil
	case "minio":
		if f.bucket == "" || f.endpoint == "" {
			return nil, errors.New("minio store needs -bucket and -endpoint")
		}
		client, err := minio.New(f.endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(f.accessKey, f.secretKey, ""),
			Secure: f.secure,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return miniostore.NewStore(client, f.bucket, f.prefix), nil
	case "s3":
		if f.bucket == "" {
			return nil, errors.New("s3 store needs -bucket")
		}
		opts := []s3.Option{s3.WithPrefix(f.prefix)}
		if f.region != "" {
			opts = append(opts, s3.WithRegion(f.region))
		}
		if f.endpoint != "" {
			opts = append(opts, s3.WithEndpoint(f.endpoint))
		}
		return s3.New(ctx, f.bucket, opts...)
	default:
		return nil, fmt.Errorf("unknown store %q", f.kind)
	}
}

func envOr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "gen":
		err = runGen(ctx, os.Args[2:])
	case "view":
		err = runView(ctx, os.Args[2:])
	case "units":
		err = runUnits(ctx, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: arraywin gen|view|units [flags]")
	os.Exit(2)
}

func runGen(ctx context.Context, args []string) error {
	var sf storeFlags
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	sf.register(fs)
	object := fs.String("object", "acquisition/ElectricalSeries", "object path of the series")
	rows := fs.Int("rows", 300000, "samples per channel")
	cols := fs.Int("cols", 32, "channels")
	rate := fs.Float64("rate", 30000, "sampling rate in Hz")
	dtype := fs.String("dtype", "<f4", "element type")
	units := fs.Int("units", 16, "units to write, 0 to skip")
	spikesPerUnit := fs.Int("spikes", 500, "spikes per unit")
	seed := fs.Int64("seed", 4711, "random seed")
	_ = fs.Parse(args)

	store, err := sf.open(ctx)
	if err != nil {
		return err
	}
	dt, err := dataset.ParseDtype(*dtype)
	if err != nil {
		return err
	}

	rng := testutil.NewRNG(*seed)
	start := time.Now()
	if err := dataset.Write(ctx, store, dataset.Descriptor{
		Path:  path.Join(*object, arraywin.DataPath),
		Shape: []int{*rows, *cols},
		Dtype: dt,
		Attrs: map[string]any{"unit": "volts"},
	}, rng.Signal(*rows, *cols, *rate)); err != nil {
		return err
	}
	if err := dataset.Write(ctx, store, dataset.Descriptor{
		Path:  path.Join(*object, arraywin.StartingTimePath),
		Shape: []int{1},
		Dtype: dataset.Float64,
		Attrs: map[string]any{arraywin.RateAttr: *rate, "unit": "seconds"},
	}, []float64{0}); err != nil {
		return err
	}
	log.Printf("wrote %s: %d x %d %s at %g Hz in %s", *object, *rows, *cols, dt, *rate, time.Since(start))

	if *units <= 0 {
		return nil
	}
	duration := float64(*rows) / *rate
	ids := make([]int64, *units)
	trains := make([][]float64, *units)
	for i := range ids {
		ids[i] = int64(i)
		trains[i] = rng.SpikeTimes(*spikesPerUnit, duration)
	}
	if err := spikes.WriteUnits(ctx, store, spikes.DefaultPrefix, ids, trains); err != nil {
		return err
	}
	log.Printf("wrote %d units with %d spikes each", *units, *spikesPerUnit)
	return nil
}

func runView(ctx context.Context, args []string) error {
	var sf storeFlags
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	sf.register(fs)
	object := fs.String("object", "acquisition/ElectricalSeries", "object path of the series")
	startSec := fs.Float64("start", math.NaN(), "window start in seconds (default: initial range)")
	endSec := fs.Float64("end", math.NaN(), "window end in seconds (default: initial range)")
	budget := fs.Duration("budget", 0, "assembly budget (default 2s)")
	maxColumns := fs.Int("max-columns", 0, "channels per window (default 5)")
	cacheBytes := fs.Int64("cache-bytes", 0, "memory cache capacity, 0 for unbounded")
	diskDir := fs.String("disk-cache", "", "directory for the disk cache tier")
	diskBytes := fs.Int64("disk-bytes", 1<<30, "disk cache capacity")
	compression := fs.String("compression", "lz4", "disk cache compression: none, lz4 or zstd")
	ioLimit := fs.Int64("io-limit", 0, "range read throughput cap in bytes/s")
	logLevel := fs.String("log-level", "info", "log level")
	_ = fs.Parse(args)

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return err
	}
	comp, err := cache.ParseCompression(*compression)
	if err != nil {
		return err
	}

	store, err := sf.open(ctx)
	if err != nil {
		return err
	}

	metrics := &arraywin.BasicMetricsCollector{}
	opts := []arraywin.Option{
		arraywin.WithLogLevel(level),
		arraywin.WithMetricsCollector(metrics),
		arraywin.WithBudget(*budget),
		arraywin.WithMaxColumns(*maxColumns),
		arraywin.WithCacheCapacity(*cacheBytes),
		arraywin.WithResourceController(resource.NewController(resource.Config{
			MemoryLimitBytes:   *cacheBytes,
			IOLimitBytesPerSec: *ioLimit,
		})),
	}
	if *diskDir != "" {
		opts = append(opts, arraywin.WithDiskCache(*diskDir, *diskBytes, comp))
	}

	series, err := arraywin.Open(ctx, store, *object, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = series.Close() }()

	plan := series.Plan()
	t1, t2 := plan.InitialRange()
	if !math.IsNaN(*startSec) {
		t1 = *startSec
	}
	if !math.IsNaN(*endSec) {
		t2 = *endSec
	}
	fmt.Printf("%s: %d samples x %d channels at %g Hz (%.3fs), chunk %d rows\n",
		*object, plan.Rows, plan.Columns, plan.Rate, plan.Duration(), plan.ChunkSize)

	session := series.NewSession(viewer.SinkFuncs{
		Frame: func(_ context.Context, f viewer.Frame) {
			vr := viewer.LineRange(f.Lines())
			fmt.Printf("frame chunks=%d fetched=%d samples=%d completed=%v range=[%g, %g]\n",
				f.Chunks, f.Fetched, f.Width(), f.Completed, vr.Min, vr.Max)
		},
		ZoomInRequired: func(_ context.Context, w viewer.Window) {
			fmt.Printf("zoom in: %.3fs wider than %.3fs\n", w.EndSec-w.StartSec, plan.MaxVisibleDuration)
		},
		Error: func(_ context.Context, err error) {
			fmt.Printf("error: %v\n", err)
		},
	})
	if err := session.RequestWindow(ctx, t1, t2); err != nil && !arraywin.IsCancelled(err) {
		return err
	}

	stats := metrics.GetStats()
	fmt.Printf("fetches=%d bytes=%d hits=%d partial=%d avg_fetch=%s\n",
		stats.FetchCount, stats.FetchBytes, stats.CacheHits, stats.AssemblyPartial,
		time.Duration(stats.FetchAvgNanos))
	return nil
}

func runUnits(ctx context.Context, args []string) error {
	var sf storeFlags
	fs := flag.NewFlagSet("units", flag.ExitOnError)
	sf.register(fs)
	unitsPrefix := fs.String("units", spikes.DefaultPrefix, "units table path")
	t1 := fs.Float64("start", 0, "range start in seconds")
	t2 := fs.Float64("end", 10, "range end in seconds")
	eventEvery := fs.Float64("event-every", 0, "align a PSTH to events every n seconds, 0 to skip")
	_ = fs.Parse(args)

	store, err := sf.open(ctx)
	if err != nil {
		return err
	}

	client, err := arraywin.OpenUnits(ctx, store, *unitsPrefix, arraywin.WithLogLevel(slog.LevelInfo))
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	first, last, err := client.TimeRange()
	if err != nil {
		return err
	}
	fmt.Printf("spikes span [%.3f, %.3f]s\n", first, last)

	trains, err := client.Data(ctx, *t1, *t2)
	if err != nil {
		return err
	}
	for _, tr := range trains {
		fmt.Printf("unit %d: %d spikes\n", tr.UnitID, len(tr.SpikeTimes))
	}

	if *eventEvery <= 0 || len(trains) == 0 {
		return nil
	}
	var events []float64
	var groups []string
	for ev := *t1 + *eventEvery; ev < *t2; ev += *eventEvery {
		events = append(events, ev)
		groups = append(groups, "all")
	}
	trials := spikes.Align(trains[0].SpikeTimes, events, groups, -*eventEvery/2, *eventEvery/2)
	h := spikes.PSTH(trials, []string{"all"}, -*eventEvery/2, *eventEvery/2, spikes.DefaultBins)
	fmt.Printf("psth unit %d: %d trials, max rate %.2f Hz\n", trains[0].UnitID, len(trials), h.MaxRate())
	return nil
}
