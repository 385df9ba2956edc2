package storage

import "errors"

// Error taxonomy additional to internal/storage/pager's: the catalog-level
// conditions a StorageEngine caller needs to distinguish.
var (
	ErrDatabaseAlreadyExists = errors.New("storage: database already exists")
	ErrTableAlreadyExists    = errors.New("storage: table already exists")
	ErrDatabaseNotFound      = errors.New("storage: database not found")
	ErrTableNotFound         = errors.New("storage: table not found")
)
