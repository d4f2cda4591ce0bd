package tiercache

import "context"

// Processor turns raw fetched bytes into a typed item. Its identifier is
// part of the cache address: processed variants of one resource coexist
// under "<key>@<identifier>". Two processors with the same identifier must
// behave identically, and two differently behaving processors must never
// share one, or variants poison each other's cache slots.
//
// The processor passed to New as the default must have the empty
// identifier; it represents "decode, no transformation" and owns the bare
// key space.
type Processor[T any] interface {
	Identifier() string
	Process(data []byte, extra map[string]string) (T, error)
}

// Serializer is the disk boundary: Data renders an item to bytes for the
// file tier, Value rebuilds it. original, when non-nil, is the raw fetched
// payload the item was built from; serializers may use it to preserve the
// source format instead of re-encoding.
type Serializer[T any] interface {
	Data(item T, original []byte) ([]byte, error)
	Value(data []byte, extra map[string]string) (T, error)
}

// Source is anything retrievable: a URL or a DataProvider.
type Source interface {
	// CacheKey identifies the logical resource independent of processing.
	CacheKey() string
}

// URLSource fetches over HTTP. Key, when set, overrides the cache key
// (useful when the URL carries volatile query parameters).
type URLSource struct {
	URL string
	Key string
}

func (s URLSource) CacheKey() string {
	if s.Key != "" {
		return s.Key
	}
	return s.URL
}

// DataProvider is a one-shot bytes supplier for non-network sources (local
// files, generated payloads). It is a Source.
type DataProvider interface {
	CacheKey() string
	Data(ctx context.Context) ([]byte, error)
}

// CostFunc reports the resident memory cost of an item, in the unit of the
// configured total cost limit (typically bytes).
type CostFunc[T any] func(item T) int64

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc[T any] struct {
	ID string
	Fn func(data []byte, extra map[string]string) (T, error)
}

func (p ProcessorFunc[T]) Identifier() string { return p.ID }

func (p ProcessorFunc[T]) Process(data []byte, extra map[string]string) (T, error) {
	return p.Fn(data, extra)
}

// RawProcessor is the default processor for []byte items: identity decode,
// empty identifier.
func RawProcessor() Processor[[]byte] {
	return ProcessorFunc[[]byte]{Fn: func(data []byte, _ map[string]string) ([]byte, error) {
		return data, nil
	}}
}

type rawSerializer struct{}

func (rawSerializer) Data(item []byte, original []byte) ([]byte, error) {
	if original != nil {
		return original, nil
	}
	return item, nil
}

func (rawSerializer) Value(data []byte, _ map[string]string) ([]byte, error) {
	return data, nil
}

// RawSerializer passes []byte items through unchanged, preferring the
// original payload when one is available.
func RawSerializer() Serializer[[]byte] { return rawSerializer{} }

// BytesCost is the natural cost function for []byte items.
func BytesCost(item []byte) int64 { return int64(len(item)) }
