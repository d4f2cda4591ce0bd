package diskstore

import "errors"

// Typed failure classes surfaced by the disk tier. Callers match with
// errors.Is; every return site wraps the sentinel together with the path or
// key and the underlying cause.
var (
	// ErrCannotCreateDirectory is fatal to construction.
	ErrCannotCreateDirectory = errors.New("diskstore: cannot create cache directory")

	// ErrDirectoryInUse means another live storage (this process or another)
	// holds the same directory. Two storages sharing a directory would
	// silently corrupt each other's files, so construction fails fast.
	ErrDirectoryInUse = errors.New("diskstore: cache directory already in use")

	// ErrCannotEnumerateFiles covers directory-walk failures.
	ErrCannotEnumerateFiles = errors.New("diskstore: cannot enumerate cache files")

	// ErrInvalidFileMeta covers unreadable or unwritable file timestamps.
	ErrInvalidFileMeta = errors.New("diskstore: invalid cache file metadata")

	// ErrCannotLoadData covers read failures for a file that exists.
	ErrCannotLoadData = errors.New("diskstore: cannot load data from disk")

	// ErrCannotStoreData covers write failures.
	ErrCannotStoreData = errors.New("diskstore: cannot store data to disk")
)
