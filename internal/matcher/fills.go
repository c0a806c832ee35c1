package matcher

import (
	"time"

	"github.com/arvo-net/arvo/types"
)

// computeFills sizes a cycle's trade volumes. The first intent's give is
// maximized within every participant's capacity; each downstream intent
// receives exactly the minimum its signed terms allow for what it gives. An
// intent's WantMin floors its received amount in absolute terms, so a
// counterparty unable to deliver the full minimum yields no viable volume.
//
// Returns nil when no positive volume satisfies every term and capacity.
func computeFills(cycle []*edge) *types.MatchSet {
	k := len(cycle)
	if k < 2 {
		return nil
	}

	// gives(g0) propagates the anchor volume around the cycle: intent j+1
	// must give at least what intent j's minimum fill demands.
	gives := func(g0 uint64) ([]uint64, bool) {
		gs := make([]uint64, k)
		gs[0] = g0
		for j := 0; j < k-1; j++ {
			in := cycle[j].wi.Intent()
			next := in.MinFillFor(gs[j])
			if next == 0 || next > cycle[j+1].capacity {
				return nil, false
			}
			gs[j+1] = next
		}
		// The last intent receives the anchor's give; its minimum must hold.
		last := cycle[k-1].wi.Intent()
		if g0 < last.MinFillFor(gs[k-1]) {
			return nil, false
		}
		return gs, true
	}

	// MinFillFor is monotone, so the capacity constraints admit a binary
	// search for a large viable anchor. The closing rate constraint is
	// re-checked at every candidate.
	var (
		best []uint64
		lo   = uint64(1)
		hi   = cycle[0].capacity
	)
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if gs, ok := gives(mid); ok {
			best = gs
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best == nil {
		return nil
	}

	ms := &types.MatchSet{Fills: make([]types.Fill, k)}
	for j := 0; j < k; j++ {
		receive := best[0]
		if j < k-1 {
			receive = best[j+1]
		}
		ms.Fills[j] = types.Fill{
			Intent:  cycle[j].wi.Intent(),
			Give:    best[j],
			Receive: receive,
		}
	}
	return ms
}

// earliest returns the earliest submission time among the cycle's intents,
// used to break volume ties in favor of older intents.
func earliest(cycle []*edge) time.Time {
	t := cycle[0].wi.Priority()
	for _, e := range cycle[1:] {
		if e.wi.Priority().Before(t) {
			t = e.wi.Priority()
		}
	}
	return t
}
