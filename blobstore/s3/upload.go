package s3

import (
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
)

// UploadConfig tunes how Put writes dataset blobs. Sample arrays of a
// long recording run to gigabytes, so they are sent as multipart uploads.
type UploadConfig struct {
	// PartSize is the multipart part size. Blobs below it go up in one
	// request. Zero keeps the manager default.
	PartSize int64
	// Concurrency is the number of parts in flight per blob.
	Concurrency int
	// EnableChecksum has S3 verify a CRC32C of every upload.
	EnableChecksum bool
}

// DefaultUploadConfig uses 16 MiB parts, four in flight, with checksums.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:       16 << 20,
		Concurrency:    4,
		EnableChecksum: true,
	}
}

func newUploader(client Client, cfg UploadConfig) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSize >= manager.MinUploadPartSize {
			u.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	})
}
