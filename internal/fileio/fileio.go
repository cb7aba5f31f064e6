// Package fileio is where export bundles are written to and imported from:
// a local directory or an S3 bucket.
package fileio

import (
	"context"
	"fmt"
	"time"
)

// FileIO stores named files.
type FileIO interface {
	// Write stores data under name and returns where it landed.
	Write(ctx context.Context, name string, data []byte) (string, error)
	// Read returns the contents of name; a missing file wraps core.ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)
	// List returns the stored names, sorted.
	List(ctx context.Context) ([]string, error)
}

// BundleName is the export file name for day t.
func BundleName(t time.Time) string {
	return fmt.Sprintf("orders-backup-%s.json", t.Format("2006-01-02"))
}
