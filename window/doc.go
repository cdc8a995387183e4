// Package window assembles contiguous chunk windows of a dataset under a
// wall-clock budget.
//
// A Loader resolves one chunk index to data, from the cache or with a
// range read on the dataset handle. An Assembler drives the Loader over a
// half-open index range in increasing order and concatenates the result
// into a rectangular [channel][sample] matrix padded with NaN. When the
// budget runs out the Assembler returns the prefix it has, marked
// incomplete; calling again with the same range and a fresh token resumes
// from the cache.
//
//	tok := cancel.New()
//	for {
//		res, err := a.GetConcatenatedChunk(ctx, start, end, tok)
//		if err != nil {
//			return err
//		}
//		render(res.Matrix)
//		if res.Completed {
//			break
//		}
//		tok = cancel.New()
//	}
package window
