package matcher

import (
	"sort"

	"github.com/arvo-net/arvo/internal/intentpool"
	"github.com/arvo-net/arvo/types"
)

// edge is one live intent viewed as a directed edge in the asset graph: the
// intent gives its offer asset and wants its want asset.
type edge struct {
	wi *intentpool.WrappedIntent

	// capacity is how much of the offer asset the intent can still give,
	// bounded by both its unconsumed amount and the owner's balance.
	capacity uint64
}

// assetGraph is a directed multigraph with one node per asset and one edge
// per live intent.
type assetGraph struct {
	// out maps an asset to the edges giving it away.
	out map[types.Asset][]*edge
}

func buildGraph(intents []*intentpool.WrappedIntent, capacity func(*intentpool.WrappedIntent) uint64) *assetGraph {
	g := &assetGraph{out: make(map[types.Asset][]*edge)}

	for _, wi := range intents {
		c := capacity(wi)
		if c == 0 {
			continue
		}
		in := wi.Intent()
		g.out[in.OfferAsset] = append(g.out[in.OfferAsset], &edge{wi: wi, capacity: c})
	}

	// Deterministic edge order: earliest submission first.
	for _, edges := range g.out {
		sort.Slice(edges, func(i, j int) bool {
			ti, tj := edges[i].wi.Priority(), edges[j].wi.Priority()
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			idi, idj := edges[i].wi.ID(), edges[j].wi.ID()
			return string(idi.Bytes()) < string(idj.Bytes())
		})
	}

	return g
}

// cycles enumerates simple trade cycles of length 2..maxLen, visiting at most
// limit cycles. A cycle is a sequence of edges where each intent wants
// exactly the asset the next one gives, closing back on the first. Every
// cycle is reported exactly once by anchoring it at its smallest asset.
func (g *assetGraph) cycles(maxLen, limit int) [][]*edge {
	if maxLen < 2 {
		return nil
	}

	assets := make([]types.Asset, 0, len(g.out))
	for asset := range g.out {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })

	var (
		found [][]*edge
		path  []*edge
		used  = make(map[types.IntentID]bool)
	)

	var dfs func(start, current types.Asset)
	dfs = func(start, current types.Asset) {
		if len(found) >= limit {
			return
		}

		for _, e := range g.out[current] {
			if len(found) >= limit {
				return
			}

			in := e.wi.Intent()
			if used[e.wi.ID()] {
				continue
			}

			if in.WantAsset == start && len(path) >= 1 {
				cycle := make([]*edge, len(path)+1)
				copy(cycle, path)
				cycle[len(path)] = e
				found = append(found, cycle)
				continue
			}

			if len(path)+1 >= maxLen {
				continue
			}
			// Anchoring at the smallest asset: never descend below start.
			if in.WantAsset <= start {
				continue
			}
			if onPath(path, in.WantAsset) {
				continue
			}

			used[e.wi.ID()] = true
			path = append(path, e)
			dfs(start, in.WantAsset)
			path = path[:len(path)-1]
			used[e.wi.ID()] = false
		}
	}

	for _, start := range assets {
		path = path[:0]
		dfs(start, start)
	}

	return found
}

func onPath(path []*edge, asset types.Asset) bool {
	for _, e := range path {
		if e.wi.Intent().OfferAsset == asset {
			return true
		}
	}
	return false
}
