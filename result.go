package tiercache

// CacheType tags where a retrieval found its item. When both tiers hold it,
// memory wins; it is checked first.
type CacheType int8

const (
	CacheTypeNone CacheType = iota
	CacheTypeMemory
	CacheTypeDisk
)

// Cached reports whether the item came from a cache tier.
func (t CacheType) Cached() bool { return t != CacheTypeNone }

func (t CacheType) String() string {
	switch t {
	case CacheTypeMemory:
		return "memory"
	case CacheTypeDisk:
		return "disk"
	default:
		return "none"
	}
}

// RetrievalResult is the outcome of Manager.Retrieve.
type RetrievalResult[T any] struct {
	Value     T
	CacheType CacheType
	Source    Source
}

// LoadingResult is the outcome of the fetch path, before caching.
type LoadingResult[T any] struct {
	Value T
	// URL is the origin of a network fetch; empty for provider sources.
	URL string
	// Original is the raw payload the value was processed from.
	Original []byte
}

// OperationResults is the composite outcome of a dual-tier store. Memory is
// always nil (the memory tier cannot fail) and exists so callers see both
// halves of the composite explicitly; Disk carries the serialization or
// I/O error, if any.
type OperationResults struct {
	Memory error
	Disk   error
}
