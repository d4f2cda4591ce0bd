//go:build !linux && !darwin

package diskstore

import (
	"io/fs"
	"time"
)

// Platforms without a portable access-time field fall back to the
// modification time. The recovered lifetime window is then zero, so reads
// do not slide the expiration (queueTouch skips non-positive windows) and
// size eviction degrades to closest-to-expiry order instead of
// least-recently-accessed.
func accessTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}
