// Package viewer drives progressive window loads for a consumer.
//
// A Plan turns seconds into chunk windows for one dataset. A Session owns at
// most one in-flight load: RequestWindow cancels the previous attempt and
// polls the assembler until the window completes, handing every partial
// and final Frame to a Sink. Frames convert to per-channel line series or
// to a spatial (x, y) series for plotting layers.
package viewer
