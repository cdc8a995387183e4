// Package arraywin serves time windows of large out-of-core array datasets
// with bounded latency.
//
// A dataset is split into fixed-size row chunks. Chunks are fetched with
// range reads from a blob store, cached for the lifetime of the handle and
// concatenated into rectangular windows. Every assembly call runs under a
// wall-clock budget and returns a usable prefix when the budget runs out,
// so a consumer gets a fast preview that sharpens over follow-up calls.
//
// # Quick Start
//
//	ctx := context.Background()
//	store := blobstore.NewLocalStore("./data")
//	series, _ := arraywin.Open(ctx, store, "acquisition/ElectricalSeries")
//	defer series.Close()
//
//	session := series.NewSession(viewer.SinkFuncs{
//	    Frame: func(ctx context.Context, f viewer.Frame) { draw(f.Lines()) },
//	})
//	start, end := series.Plan().InitialRange()
//	_ = session.RequestWindow(ctx, start, end)
//
// Cloud mode:
//
//	s3Store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("recordings/"))
//	series, _ := arraywin.Open(ctx, s3Store, "acquisition/lfp",
//	    arraywin.WithCacheCapacity(256<<20),
//	    arraywin.WithDiskCache("/fast/nvme", 4<<30, cache.CompressionLZ4))
//
// # Layout
//
// A time series lives under an object path as two datasets: "data" holds
// the samples (rows are time, columns are channels) and "starting_time"
// carries the sampling rate in its "rate" attribute. Each dataset is a
// JSON descriptor plus a packed row-major blob (see package dataset).
//
// # Cancellation
//
// Every assembly attempt owns a cancel.Token. Firing it aborts the
// pending range read; nothing partial is cached. viewer.Session does
// this for you when the requested window changes.
//
// # Observability
//
//	metrics := &arraywin.BasicMetricsCollector{}
//	series, _ := arraywin.Open(ctx, store, path,
//	    arraywin.WithMetricsCollector(metrics),
//	    arraywin.WithLogger(arraywin.NewJSONLogger(slog.LevelDebug)))
//	stats := metrics.GetStats()
package arraywin
