// Package storage persists receipt artifacts either on local disk or in an
// S3-compatible bucket.
package storage

import (
	"context"
	"fmt"

	"automatpos/backend/internal/config"
)

type Disk interface {
	// Put writes content under key and returns the path recorded on the session.
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
	// URL maps a stored path to the address handed to clients.
	URL(path string) string
}

func New(ctx context.Context, settings config.ReceiptStorageSettings) (Disk, error) {
	switch settings.Driver {
	case "", "local":
		return NewLocal(settings.LocalDir, settings.BaseURL)
	case "s3":
		return NewS3(ctx, settings.S3)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", settings.Driver)
	}
}
