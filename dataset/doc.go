// Package dataset describes remote numeric arrays and reads rectangular
// regions of them.
//
// A dataset lives under a path in a blobstore.BlobStore as two blobs:
//
//	<path>/.array   JSON Descriptor (shape, dtype, attrs)
//	<path>/data     packed row-major elements
//
// The first dimension is time (rows); the optional second dimension is
// channels (columns). BlobHandle serves any rows × columns region with a
// single ranged read of whole rows.
package dataset
