// Package cancel provides the per-request cancellation token used by window loads.
//
// A Token is an ordered registry of cleanup callbacks. Loaders subscribe a
// callback that aborts their in-flight range read; the owner of the request
// calls Cancel when the requested window changes. A token is fired at most
// once and is never reused for another request.
//
//	tok := cancel.New()
//	go func() {
//	    res, err := asm.GetConcatenatedChunk(ctx, start, end, tok)
//	    ...
//	}()
//	tok.Cancel() // window moved on
//
// Unlike context.Context, a token identifies one specific in-flight request
// rather than a process-wide stop signal. Context bridges the two when a
// blocking call needs a context.
package cancel
