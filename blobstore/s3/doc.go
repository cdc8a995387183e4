// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("recordings/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	h, err := arraywin.Open(ctx, store, "acquisition/ElectricalSeries/data")
//
// # Features
//
//   - Ranged GetObject per chunk read
//   - Multipart uploads via the transfer manager for large arrays
//   - Automatic pagination for listing
//   - Configurable prefix and custom endpoints
package s3
