// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and any S3-compatible storage (Ceph, Garage, SeaweedFS)
// and is the usual backend for serving recordings from an on-prem object store.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "recordings", "session-01/")
//	h, err := arraywin.Open(ctx, store, "acquisition/ElectricalSeries/data")
//
// Each window chunk becomes one ranged GetObject; cancelling the request
// context aborts the HTTP request.
package minio
