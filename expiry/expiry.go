// Package expiry models when a stored value stops being valid. A policy is a
// small immutable value produced by one of the constructors; both storage
// tiers resolve it against a reference clock so tests can freeze time.
package expiry

import "time"

type kind int8

const (
	kindUnset kind = iota // zero value: stores substitute their configured default
	kindNever
	kindInterval
	kindDate
	kindExpired
)

const day = 24 * time.Hour

// distantFuture is the sentinel instant used by Never. Far enough that no
// wall-clock comparison ever reaches it, near enough to survive time.Time
// formatting and file-timestamp round trips.
var distantFuture = time.Date(9999, time.January, 1, 0, 0, 0, 0, time.UTC)

// Expiration describes the lifetime of a cached value.
// The zero value means "unset": stores replace it with their configured
// default via Or. An unset policy that reaches the resolution methods
// behaves like Never.
type Expiration struct {
	kind kind
	dur  time.Duration
	date time.Time
}

// Never keeps a value valid until it is evicted for another reason.
func Never() Expiration { return Expiration{kind: kindNever} }

// After invalidates a value once d has elapsed since it was stored
// (or since the last qualifying access, the stores slide the window).
func After(d time.Duration) Expiration { return Expiration{kind: kindInterval, dur: d} }

// Days is shorthand for After(n days).
func Days(n int) Expiration { return Expiration{kind: kindInterval, dur: time.Duration(n) * day} }

// At invalidates a value at the absolute instant t.
func At(t time.Time) Expiration { return Expiration{kind: kindDate, date: t} }

// Expired is a policy that is already invalid at store time. Stores treat it
// as "do not persist".
func Expired() Expiration { return Expiration{kind: kindExpired} }

// EstimatedAt resolves the policy into an absolute expiration instant
// relative to now.
func (e Expiration) EstimatedAt(now time.Time) time.Time {
	switch e.kind {
	case kindInterval:
		return now.Add(e.dur)
	case kindDate:
		return e.date
	case kindExpired:
		// one nanosecond into the past keeps "expired at store time" true
		// for any reference clock at or after now
		return now.Add(-time.Nanosecond)
	default:
		return distantFuture
	}
}

// TimeToLiveFrom reports the window length the sliding extension keeps
// pushing forward. For absolute dates the window is whatever remains from
// now, so a touched entry never outlives its date.
func (e Expiration) TimeToLiveFrom(now time.Time) time.Duration {
	switch e.kind {
	case kindInterval:
		return e.dur
	case kindDate:
		return e.date.Sub(now)
	case kindExpired:
		return 0
	default:
		return time.Duration(1<<63 - 1)
	}
}

// IsExpired reports whether the policy is already invalid at ref when
// applied at now.
func (e Expiration) IsExpired(now, ref time.Time) bool {
	if e.kind == kindNever {
		return false
	}
	return !e.EstimatedAt(now).After(ref)
}

// IsNever reports whether the policy never expires.
func (e Expiration) IsNever() bool { return e.kind == kindNever }

// IsZero reports whether e is the zero policy, used by configs to detect
// "no override given".
func (e Expiration) IsZero() bool { return e == Expiration{} }

// Or returns e unless it is the zero policy, in which case fallback is used.
func (e Expiration) Or(fallback Expiration) Expiration {
	if e.IsZero() {
		return fallback
	}
	return e
}
