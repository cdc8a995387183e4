// Package testutil provides testing utilities for arraywin.
//
// This package is intended for use in tests and tools only.
//
// # Synthetic Signals
//
//	rng := testutil.NewRNG(seed)
//	values := rng.Signal(rows, channels, rate) // row-major, sines plus noise
//
// # In-Memory Datasets
//
//	h := testutil.NewMatrixHandle(rows, cols, func(r, c int) float64 { return float64(r) })
//	h.OnRead = func(ctx context.Context, rows dataset.Range) error { ... }
//
// # Deterministic Time
//
//	clock := testutil.NewFakeClock(time.Unix(0, 0))
//	clock.Advance(3 * time.Second)
package testutil
