package diskstore

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// janitor is the scheduled housekeeping loop: sweep expired entries first,
// then trim size overflow, then report what was removed.
func (s *Storage) janitor(ctx context.Context) {
	ticker := s.clk.Ticker(s.cfg.CleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Storage) sweepOnce(ctx context.Context) {
	removed, err := s.RemoveExpiredValues(s.clk.Now())
	if err != nil {
		log.Error().Err(err).Str("dir", s.dir).Msg("[janitor] expired sweep failed")
	}

	exceeded, err := s.RemoveSizeExceededValues()
	if err != nil {
		log.Error().Err(err).Str("dir", s.dir).Msg("[janitor] size sweep failed")
	}
	removed = append(removed, exceeded...)

	if len(removed) == 0 {
		return
	}
	log.Info().Str("dir", s.dir).Int("removed", len(removed)).Msg("[janitor] swept cache files")

	if s.cfg.OnCleanup != nil {
		names := make([]string, len(removed))
		for i, p := range removed {
			names[i] = filepath.Base(p)
		}
		select {
		case <-ctx.Done():
		default:
			s.cfg.OnCleanup(names)
		}
	}
}
