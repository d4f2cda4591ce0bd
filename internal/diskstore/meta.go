package diskstore

import (
	"io/fs"
	"time"
)

// fileMeta is the entire persisted state of one cache entry. There is no
// index file: two standard file timestamps are repurposed, the access time
// holds the last cache access and the modification time holds the estimated
// expiration instant. Store writes them, Value pushes them forward, the
// sweeps read them back.
type fileMeta struct {
	path       string
	lastAccess time.Time // access-time attribute, repurposed
	estimated  time.Time // modification-time attribute, repurposed
	size       int64
}

func metaFromInfo(path string, info fs.FileInfo) fileMeta {
	return fileMeta{
		path:       path,
		lastAccess: accessTime(info),
		estimated:  info.ModTime(),
		size:       info.Size(),
	}
}

func (m fileMeta) expired(ref time.Time) bool {
	return !m.estimated.After(ref)
}

// window is the entry's original lifetime, recovered from the two
// timestamps. The async touch-up re-applies it from "now" instead of
// resetting to a fixed point, mirroring the memory tier's sliding window.
func (m fileMeta) window() time.Duration {
	return m.estimated.Sub(m.lastAccess)
}
