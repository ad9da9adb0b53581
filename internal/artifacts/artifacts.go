// Package artifacts offloads oversized job payloads and success values to
// blob storage so the durable store's rows stay small. It mirrors the
// upload/download split the teacher uses for worker output
// (internal/worker/image_handler.go's s3Uploader/localUploader), generalized
// from images to opaque proof blobs.
package artifacts

import "context"

// Store persists and retrieves byte blobs by an opaque reference string.
// PostgresStore calls Put when a payload or value exceeds its configured
// inline threshold, and Get to rehydrate one on read.
type Store interface {
	Put(ctx context.Context, key string, body []byte) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
}
