// Package object provides the object storage capability consumed by the
// deletion engine: single and batched blob removal.
package object

import "context"

// Storage is the object storage interface. Deleting a missing blob is not an
// error, so retried cascades stay idempotent.
type Storage interface {
	UploadBase64File(ctx context.Context, filePathName string, base64Content string, fileMimeType string) error
	DeleteFile(ctx context.Context, filePathName string) error
	// DeleteFiles removes a batch of blobs in a single storage round trip
	// and returns the number of blobs confirmed deleted.
	DeleteFiles(ctx context.Context, filePathNames []string) (int64, error)
}
