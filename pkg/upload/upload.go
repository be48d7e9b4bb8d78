package upload

import "context"

// Uploader publishes a scanned result folder and its rendered reports to
// remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Publish uploads every report page below root, keyed by its path
	// relative to root. It returns the number of files uploaded.
	Publish(ctx context.Context, root string) (int, error)

	// PutReport stores a rendered report next to the published folder and
	// returns its key.
	PutReport(ctx context.Context, root, name string, data []byte, contentType string) (string, error)
}
