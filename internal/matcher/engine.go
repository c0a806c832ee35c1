// Package matcher implements the matching engine: it scans the intent pool
// for cycles of compatible trade intents, sizes non-overlapping match sets,
// and submits them for settlement through the front-running guard.
package matcher

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arvo-net/arvo/config"
	"github.com/arvo-net/arvo/crypto"
	"github.com/arvo-net/arvo/internal/intentpool"
	"github.com/arvo-net/arvo/internal/state"
	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/libs/service"
	"github.com/arvo-net/arvo/types"
)

// maxCyclesPerScan bounds the DFS so a dense book cannot stall the scan
// loop; unexplored cycles are picked up by later scans.
const maxCyclesPerScan = 256

// MatchSubmitter wraps a sized settlement in the commit-then-reveal flow.
type MatchSubmitter interface {
	CommitMatchSet(ctx context.Context, tx *types.Transaction) error
}

// Engine scans the pool on a timer and on pool-change kicks, submitting
// settlements for the cycles it finds.
type Engine struct {
	service.BaseService
	logger log.Logger

	cfg       *config.MatcherConfig
	pool      *intentpool.IntentPool
	store     *state.Store
	submitter MatchSubmitter
	self      crypto.Address
	metrics   *Metrics

	// wake coalesces pool-change notifications between scans.
	wake chan struct{}

	mtx sync.Mutex
	// inflight holds intents referenced by a settlement whose verdict is
	// still pending. They are invisible to scans until released.
	inflight map[types.IntentID]struct{}
}

// NewEngine returns a matching engine scanning pool against committed state.
// self is the node's settlement account, recorded as transaction submitter.
func NewEngine(
	logger log.Logger,
	cfg *config.MatcherConfig,
	pool *intentpool.IntentPool,
	store *state.Store,
	submitter MatchSubmitter,
	self crypto.Address,
	metrics *Metrics,
) *Engine {
	e := &Engine{
		logger:    logger,
		cfg:       cfg,
		pool:      pool,
		store:     store,
		submitter: submitter,
		self:      self,
		metrics:   metrics,
		wake:      make(chan struct{}, 1),
		inflight:  make(map[types.IntentID]struct{}),
	}
	if e.metrics == nil {
		e.metrics = NopMetrics()
	}
	e.BaseService = *service.NewBaseService(logger, "Matcher", e)
	return e
}

func (e *Engine) OnStart(ctx context.Context) error {
	go e.scanLoop(ctx)
	return nil
}

func (e *Engine) OnStop() {}

// ReleaseIntents makes the given intents visible to scans again, once their
// settlement reached a verdict.
func (e *Engine) ReleaseIntents(ids ...types.IntentID) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	for _, id := range ids {
		delete(e.inflight, id)
	}
}

// Kick schedules a scan ahead of the next tick. Kicks arriving while one is
// already pending coalesce.
func (e *Engine) Kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.wake:
		}

		if err := e.scan(ctx); err != nil {
			e.logger.Error("scan failed", "err", err)
		}
	}
}

// scan runs one matching round: snapshot the pool, enumerate cycles, size
// them, pick a non-overlapping set greedily by volume, and submit each
// winner through the guard.
func (e *Engine) scan(ctx context.Context) error {
	defer func(start time.Time) {
		e.metrics.ScanSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())

	snapshot := e.eligibleIntents()
	if len(snapshot) < 2 {
		return nil
	}

	graph := buildGraph(snapshot, e.capacity)
	cycles := graph.cycles(e.cfg.MaxCycleLength, maxCyclesPerScan)
	if len(cycles) == 0 {
		return nil
	}
	e.metrics.CyclesFound.Add(float64(len(cycles)))

	type candidate struct {
		cycle []*edge
		ms    *types.MatchSet
	}
	candidates := make([]candidate, 0, len(cycles))
	for _, cycle := range cycles {
		if ms := computeFills(cycle); ms != nil {
			candidates = append(candidates, candidate{cycle: cycle, ms: ms})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		vi, vj := candidates[i].ms.Volume(), candidates[j].ms.Volume()
		if vi != vj {
			return vi > vj
		}
		return earliest(candidates[i].cycle).Before(earliest(candidates[j].cycle))
	})

	taken := make(map[types.IntentID]struct{})
	for _, cand := range candidates {
		if overlaps(cand.cycle, taken) {
			continue
		}

		tx, err := e.buildSettlement(cand.ms)
		if err != nil {
			e.logger.Debug("skipping unsettleable match", "err", err)
			continue
		}

		ids := make([]types.IntentID, len(cand.cycle))
		for i, edge := range cand.cycle {
			ids[i] = edge.wi.ID()
			taken[edge.wi.ID()] = struct{}{}
		}

		e.mtx.Lock()
		for _, id := range ids {
			e.inflight[id] = struct{}{}
		}
		e.mtx.Unlock()

		if err := e.submitter.CommitMatchSet(ctx, tx); err != nil {
			e.ReleaseIntents(ids...)
			return err
		}

		e.metrics.MatchSetsSubmitted.Add(1)
		e.logger.Info("submitted match set",
			"fills", len(cand.ms.Fills),
			"volume", cand.ms.Volume(),
		)
	}

	return nil
}

func (e *Engine) eligibleIntents() []*intentpool.WrappedIntent {
	snapshot := e.pool.Snapshot()

	e.mtx.Lock()
	defer e.mtx.Unlock()

	eligible := snapshot[:0]
	for _, wi := range snapshot {
		if _, busy := e.inflight[wi.ID()]; !busy {
			eligible = append(eligible, wi)
		}
	}
	return eligible
}

// capacity bounds an intent's fillable volume by its unconsumed amount and
// by the owner's committed balance in the offered asset.
func (e *Engine) capacity(wi *intentpool.WrappedIntent) uint64 {
	in := wi.Intent()

	bz, ok, err := e.store.Read(types.BalanceKey(in.Owner(), in.OfferAsset))
	if err != nil || !ok {
		return 0
	}
	balance, err := types.DecodeBalance(bz)
	if err != nil {
		return 0
	}

	if balance < wi.Remaining() {
		return balance
	}
	return wi.Remaining()
}

// buildSettlement assembles the settlement transaction for a sized match
// set: net balance movements for every participant plus a consumption record
// per intent, each write carrying the committed pre-value it was computed
// from.
func (e *Engine) buildSettlement(ms *types.MatchSet) (*types.Transaction, error) {
	deltas := make(map[string]int64)
	keyOrder := make([]string, 0, 2*len(ms.Fills))

	addDelta := func(key []byte, d int64) {
		k := string(key)
		if _, ok := deltas[k]; !ok {
			keyOrder = append(keyOrder, k)
		}
		deltas[k] += d
	}

	for _, fill := range ms.Fills {
		owner := fill.Intent.Owner()
		addDelta(types.BalanceKey(owner, fill.Intent.OfferAsset), -int64(fill.Give))
		addDelta(types.BalanceKey(owner, fill.Intent.WantAsset), int64(fill.Receive))
	}

	var diff types.Diff
	for _, k := range keyOrder {
		key := []byte(k)
		old, ok, err := e.store.Read(key)
		if err != nil {
			return nil, err
		}

		var balance uint64
		if ok {
			if balance, err = types.DecodeBalance(old); err != nil {
				return nil, err
			}
		} else {
			old = nil
		}

		d := deltas[k]
		if d < 0 && balance < uint64(-d) {
			return nil, types.ErrStaleMatch{}
		}
		updated := balance + uint64(d)
		if d < 0 {
			updated = balance - uint64(-d)
		}

		diff = append(diff, types.Write{Key: key, Old: old, New: types.EncodeBalance(updated)})
	}

	refs := make([]types.IntentRef, len(ms.Fills))
	for i, fill := range ms.Fills {
		id := fill.Intent.ID()
		key := types.IntentStateKey(id)

		old, ok, err := e.store.Read(key)
		if err != nil {
			return nil, err
		}

		var prior uint64
		if ok {
			rec, err := types.DecodeIntentConsumption(old)
			if err != nil {
				return nil, err
			}
			prior = rec.Consumed
		} else {
			old = nil
		}

		if prior+fill.Give > fill.Intent.OfferAmount {
			return nil, types.ErrStaleMatch{IntentID: id}
		}

		diff = append(diff, types.Write{
			Key: key,
			Old: old,
			New: types.EncodeIntentConsumption(types.IntentConsumption{
				Consumed: prior + fill.Give,
				Total:    fill.Intent.OfferAmount,
			}),
		})
		refs[i] = types.IntentRef{ID: id, Give: fill.Give}
	}

	return &types.Transaction{
		Submitter:  e.self,
		Code:       ms.Bytes(),
		Diff:       diff,
		IntentRefs: refs,
	}, nil
}

func overlaps(cycle []*edge, taken map[types.IntentID]struct{}) bool {
	for _, e := range cycle {
		if _, ok := taken[e.wi.ID()]; ok {
			return true
		}
	}
	return false
}
