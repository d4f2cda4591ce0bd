package telemetry

import "sync/atomic"

// Counters are cumulative and monotonic; the telemetry loop logs deltas
// between snapshots.
type Counters struct {
	memHits    atomic.Int64
	memMisses  atomic.Int64
	diskHits   atomic.Int64
	diskMisses atomic.Int64
	downloads  atomic.Int64
	coalesced  atomic.Int64
	storeFails atomic.Int64
}

func NewCounters() *Counters { return &Counters{} }

func (c *Counters) MemHit()       { c.memHits.Add(1) }
func (c *Counters) MemMiss()      { c.memMisses.Add(1) }
func (c *Counters) DiskHit()      { c.diskHits.Add(1) }
func (c *Counters) DiskMiss()     { c.diskMisses.Add(1) }
func (c *Counters) Download()     { c.downloads.Add(1) }
func (c *Counters) Coalesced()    { c.coalesced.Add(1) }
func (c *Counters) StoreFailure() { c.storeFails.Add(1) }

// snapshot holds cumulative counter values.
type snapshot struct {
	memHits    int64
	memMisses  int64
	diskHits   int64
	diskMisses int64
	downloads  int64
	coalesced  int64
	storeFails int64
}

func (c *Counters) snapshot() snapshot {
	return snapshot{
		memHits:    c.memHits.Load(),
		memMisses:  c.memMisses.Load(),
		diskHits:   c.diskHits.Load(),
		diskMisses: c.diskMisses.Load(),
		downloads:  c.downloads.Load(),
		coalesced:  c.coalesced.Load(),
		storeFails: c.storeFails.Load(),
	}
}

func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		memHits:    cur.memHits - prev.memHits,
		memMisses:  cur.memMisses - prev.memMisses,
		diskHits:   cur.diskHits - prev.diskHits,
		diskMisses: cur.diskMisses - prev.diskMisses,
		downloads:  cur.downloads - prev.downloads,
		coalesced:  cur.coalesced - prev.coalesced,
		storeFails: cur.storeFails - prev.storeFails,
	}
}
