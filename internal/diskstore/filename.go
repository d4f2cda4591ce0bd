package diskstore

import (
	"fmt"
	"path/filepath"

	"github.com/zeebo/xxh3"
)

// fileName derives the on-disk name for a cache key. By default the key is
// hashed so filesystem-illegal characters and very long keys cannot leak
// into paths; hashing is irreversible, which is fine because lookups always
// start from the key.
func (s *Storage) fileName(key string) string {
	name := key
	if !s.cfg.UsesPlainName {
		name = hashedName(key)
	}
	if ext := s.cfg.PathExtension; ext != "" {
		name += "." + ext
	}
	return name
}

func hashedName(key string) string {
	u := xxh3.HashString128(key)
	return fmt.Sprintf("%016x%016x", u.Hi, u.Lo)
}

func (s *Storage) pathFor(key string) string {
	name := s.fileName(key)
	if s.cfg.PathFunc != nil {
		return s.cfg.PathFunc(s.dir, name)
	}
	return filepath.Join(s.dir, name)
}
