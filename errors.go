package tiercache

import (
	"errors"

	"github.com/dkrylov/go-tier-cache/internal/diskstore"
)

var (
	// ErrItemNotExisting is returned by OnlyFromCache retrievals that miss
	// both tiers. A plain miss outside that mode is not an error.
	ErrItemNotExisting = errors.New("tiercache: item not existing in cache")

	// ErrCannotSerializeItem means the serializer failed to render an item
	// for the disk tier; the memory store still succeeded.
	ErrCannotSerializeItem = errors.New("tiercache: cannot serialize item")

	// ErrCannotDeserializeItem means bytes loaded from disk could not be
	// rebuilt into an item.
	ErrCannotDeserializeItem = errors.New("tiercache: cannot deserialize item")

	// ErrProcessingFailed means a processor rejected its input.
	ErrProcessingFailed = errors.New("tiercache: processing failed")

	// ErrInvalidHTTPStatusCode covers non-2xx download responses.
	ErrInvalidHTTPStatusCode = errors.New("tiercache: invalid HTTP status code")

	// ErrMissingData covers successful responses with an empty body.
	ErrMissingData = errors.New("tiercache: no data in response")

	// ErrEmptySource means the retrieval was handed a Source the manager
	// cannot fetch from.
	ErrEmptySource = errors.New("tiercache: empty or unsupported source")

	// ErrInvalidProcessor means the default processor handed to New does
	// not carry the empty identifier.
	ErrInvalidProcessor = errors.New("tiercache: default processor must have empty identifier")
)

// Disk tier failure classes, re-exported for errors.Is matching.
var (
	ErrCannotCreateDirectory = diskstore.ErrCannotCreateDirectory
	ErrDirectoryInUse        = diskstore.ErrDirectoryInUse
	ErrCannotEnumerateFiles  = diskstore.ErrCannotEnumerateFiles
	ErrInvalidFileMeta       = diskstore.ErrInvalidFileMeta
	ErrCannotLoadFromDisk    = diskstore.ErrCannotLoadData
	ErrCannotStoreToDisk     = diskstore.ErrCannotStoreData
)
