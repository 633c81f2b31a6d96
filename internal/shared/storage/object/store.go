package object

import (
	"context"
	"io"
)

// ObjectStore saves and retrieves uploaded documents. Storage keys are opaque
// to callers and are what analysis records keep as their input reference.
type ObjectStore interface {
	Save(ctx context.Context, ownerKey string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}
