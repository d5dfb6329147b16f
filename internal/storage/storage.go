// Package storage provides object storage for user-uploaded files.
package storage

import "context"

// ObjectStore persists uploaded files and serves them by public URL.
type ObjectStore interface {
	// Upload stores the file at localPath under the given folder and
	// returns the public URL and the storage key of the new object.
	Upload(ctx context.Context, localPath, folder, contentType string) (url, key string, err error)
	// Delete removes the object with the given key. Deleting a missing
	// object is not an error.
	Delete(ctx context.Context, key string) error
}
