package window

import "time"

// MetricsObserver receives loader and assembler events.
type MetricsObserver interface {
	// OnChunkLoad is called after every chunk lookup. cached reports a
	// cache hit; bytes is the size of the range read (0 on a hit).
	OnChunkLoad(index int, cached bool, bytes int64, duration time.Duration, err error)

	// OnAssembly is called after every GetConcatenatedChunk call.
	OnAssembly(chunks, fetched int, completed bool, duration time.Duration, err error)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnChunkLoad(int, bool, int64, time.Duration, error) {}
func (NoopMetricsObserver) OnAssembly(int, int, bool, time.Duration, error)    {}
