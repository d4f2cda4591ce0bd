package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAfterExpiresAtBoundary(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	e := After(500 * time.Millisecond)

	require.False(t, e.IsExpired(now, now))
	require.False(t, e.IsExpired(now, now.Add(499*time.Millisecond)))
	// boundary is inclusive: at exactly now+d the value is expired
	require.True(t, e.IsExpired(now, now.Add(500*time.Millisecond)))
	require.True(t, e.IsExpired(now, now.Add(time.Second)))
}

func TestDays(t *testing.T) {
	now := time.Now()
	require.Equal(t, now.Add(7*24*time.Hour), Days(7).EstimatedAt(now))
}

func TestNeverIsAlwaysCached(t *testing.T) {
	now := time.Now()
	e := Never()
	require.False(t, e.IsExpired(now, now.Add(100*365*24*time.Hour)))
	require.True(t, e.IsNever())
	require.Equal(t, distantFuture, e.EstimatedAt(now))
}

func TestExpiredIsNeverCached(t *testing.T) {
	now := time.Now()
	e := Expired()
	require.True(t, e.IsExpired(now, now))
	require.True(t, e.EstimatedAt(now).Before(now))
}

func TestAtUsesAbsoluteInstant(t *testing.T) {
	now := time.Now()
	deadline := now.Add(time.Hour)
	e := At(deadline)

	require.Equal(t, deadline, e.EstimatedAt(now))
	require.False(t, e.IsExpired(now, now))
	require.True(t, e.IsExpired(now, deadline))
	// the sliding window of a dated policy shrinks as now approaches it
	require.Equal(t, time.Hour, e.TimeToLiveFrom(now))
	require.Equal(t, 30*time.Minute, e.TimeToLiveFrom(now.Add(30*time.Minute)))
}

func TestOrSubstitutesDefaultForUnsetOnly(t *testing.T) {
	def := After(time.Minute)

	var unset Expiration
	require.True(t, unset.IsZero())
	require.Equal(t, def, unset.Or(def))

	require.Equal(t, Never(), Never().Or(def))
	require.Equal(t, Expired(), Expired().Or(def))
}
