// Package storage holds the persistence port shared by the vault and the
// chain, plus its file, SQLite and DynamoDB backends.
//
// Every backend stores one opaque blob per store and overwrites it whole on
// Save. Nothing in this package interprets the bytes.
package storage

import (
	"context"
	"errors"
)

//go:generate mockgen -source=storage.go -destination=../mock/blobstore_mock.go -package=mock

var (
	// ErrNotFound means nothing has been saved to the store yet.
	ErrNotFound = errors.New("blob not found")
	// ErrVersionConflict means another writer saved since this store last loaded.
	ErrVersionConflict = errors.New("version conflict: remote blob has been updated")
)

// BlobStore loads and saves a single opaque blob.
type BlobStore interface {
	// Load returns the stored blob, or ErrNotFound when nothing is stored.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the stored blob with data.
	Save(ctx context.Context, data []byte) error
}

// Backend names accepted in configuration.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Blob keys used by backends that hold several blobs in one place.
const (
	KeyVault = "vault"
	KeyChain = "chain"
)
