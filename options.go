package tiercache

import "github.com/dkrylov/go-tier-cache/expiry"

// Options tune a single retrieval or store. The zero value means: use the
// cache normally, default processor, default expirations.
type Options[T any] struct {
	// ForceRefresh skips every cache lookup and goes straight to the fetch.
	ForceRefresh bool

	// OnlyFromCache turns a full cache miss into ErrItemNotExisting
	// instead of fetching.
	OnlyFromCache bool

	// FromMemoryCacheOrRefresh restricts the lookup to the memory tier; a
	// memory miss refetches without consulting disk.
	FromMemoryCacheOrRefresh bool

	// MemoryCacheOnly keeps the result out of the disk tier on store.
	MemoryCacheOnly bool

	// CacheOriginalItem additionally stores the unprocessed payload on
	// disk under the bare key when a non-default processor is used, so a
	// later retrieval with a different processor reprocesses locally
	// instead of re-downloading.
	CacheOriginalItem bool

	// WaitForCache makes Retrieve wait for the disk write to finish and
	// surface its error. Off by default: the disk write completes in the
	// background and failures are logged and counted.
	WaitForCache bool

	// Processor produces the typed item from raw bytes. Nil means the
	// manager's default processor.
	Processor Processor[T]

	// MemoryExpiration and DiskExpiration override the configured default
	// policies for this call. Zero values mean "use the default".
	MemoryExpiration expiry.Expiration
	DiskExpiration   expiry.Expiration

	// Extra is a string-keyed side channel for forward-compatible flags;
	// it is handed verbatim to processors and serializers. Recognized keys
	// are documented by the components that read them.
	Extra map[string]string
}

func (o Options[T]) processorID() string {
	if o.Processor == nil {
		return ""
	}
	return o.Processor.Identifier()
}

// ComputedKey composes the storage address for a cache key and a processor
// identifier: "<key>@<id>", or the bare key for the default (empty)
// identifier. Distinct (key, identifier) pairs never collide except by a
// key that itself embeds the "@" convention on purpose.
func ComputedKey(key, processorID string) string {
	if processorID == "" {
		return key
	}
	return key + "@" + processorID
}
