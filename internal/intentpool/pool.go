// Package intentpool holds the node's working set of live trade intents: the
// orderbook the matching engine scans and the gossip layer propagates.
// Intents are validated on entry, deduplicated against a seen-cache, indexed
// for gossip and expiry, and drained as settlements consume them.
package intentpool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arvo-net/arvo/config"
	"github.com/arvo-net/arvo/crypto"
	"github.com/arvo-net/arvo/internal/libs/clist"
	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/types"
)

// IntentPoolOption sets an optional parameter on the IntentPool.
type IntentPoolOption func(*IntentPool)

// StateObserver is notified of every intent state transition the pool
// performs. Notifications are synchronous; observers must not call back into
// the pool.
type StateObserver func(types.IntentStatus)

// IntentPool keeps the live orderbook. It maintains a thread-safe store of
// valid intents plus a thread-safe linked-list that is used to gossip intents
// to peers in a FIFO manner, and a time-sorted index used to purge expired
// intents.
type IntentPool struct {
	logger  log.Logger
	metrics *Metrics
	config  *config.PoolConfig

	// sizeBytes defines the total encoded size of live intents.
	sizeBytes int64

	// cache defines a fixed-size cache of already seen intent IDs. A hit is
	// a duplicate: dropped silently and never re-propagated.
	cache IntentCache

	// store defines the main storage of live intents. Indexes are built on
	// top of this store.
	store *intentStore

	// gossipIndex defines the gossiping index of live intents via a
	// thread-safe linked-list.
	gossipIndex *clist.CList

	// expiryIndex defines a sorted index of intents by expiry time, used to
	// purge expired intents cheaply.
	expiryIndex *WrappedIntentList

	mtx      sync.RWMutex
	observer StateObserver
}

// NewIntentPool returns a pool enforcing the given capacity limits.
func NewIntentPool(logger log.Logger, cfg *config.PoolConfig, opts ...IntentPoolOption) *IntentPool {
	pool := &IntentPool{
		logger:      logger,
		config:      cfg,
		metrics:     NopMetrics(),
		cache:       NopIntentCache{},
		store:       newIntentStore(),
		gossipIndex: clist.New(),
		expiryIndex: NewWrappedIntentList(func(wi1, wi2 *WrappedIntent) bool {
			return wi1.intent.Expiry.After(wi2.intent.Expiry) ||
				wi1.intent.Expiry.Equal(wi2.intent.Expiry)
		}),
	}

	if cfg.CacheSize > 0 {
		pool.cache = NewLRUIntentCache(cfg.CacheSize)
	}

	for _, opt := range opts {
		opt(pool)
	}

	return pool
}

// WithMetrics sets the pool's metric set.
func WithMetrics(m *Metrics) IntentPoolOption {
	return func(p *IntentPool) { p.metrics = m }
}

// WithStateObserver installs a callback for intent state transitions.
func WithStateObserver(obs StateObserver) IntentPoolOption {
	return func(p *IntentPool) { p.observer = obs }
}

// Size returns the number of live intents.
func (p *IntentPool) Size() int {
	return p.store.Size()
}

// SizeBytes returns the total encoded size of live intents.
func (p *IntentPool) SizeBytes() int64 {
	return atomic.LoadInt64(&p.sizeBytes)
}

// Insert validates an intent and adds it to the pool. Duplicates return
// ErrIntentInCache and are never re-propagated; invalid or expired intents
// are rejected with the reason; a full pool returns ErrPoolIsFull.
func (p *IntentPool) Insert(intent types.Intent, info IntentInfo) error {
	size := int64(len(intent.Bytes()))
	if p.config.MaxIntentBytes > 0 && size > int64(p.config.MaxIntentBytes) {
		return types.ErrIntentTooLarge{Max: p.config.MaxIntentBytes, Actual: int(size)}
	}

	if err := intent.ValidateBasic(); err != nil {
		return err
	}

	id := intent.ID()
	if intent.Expired(time.Now().UTC()) {
		return types.ErrExpired{Kind: "intent", ID: id.String()}
	}

	if !p.cache.Push(id) {
		// Record the additional sender so the gossip layer does not echo
		// the intent back.
		p.store.GetOrSetPeerByIntentID(id, info.SenderID)
		return types.ErrIntentInCache
	}

	if p.Size() >= p.config.Size ||
		(p.config.MaxIntentsBytes > 0 && p.SizeBytes()+size > p.config.MaxIntentsBytes) {
		// Drop from the cache too: a rejected-for-capacity intent may be
		// legitimately resubmitted later.
		p.cache.Remove(id)
		return types.ErrPoolIsFull{
			NumIntents: p.Size(),
			MaxIntents: p.config.Size,
			Bytes:      p.SizeBytes(),
			MaxBytes:   p.config.MaxIntentsBytes,
		}
	}

	wi := &WrappedIntent{
		intent:    intent,
		id:        id,
		size:      size,
		remaining: intent.OfferAmount,
		timestamp: time.Now().UTC(),
		peers:     map[uint16]struct{}{info.SenderID: {}},
	}

	p.mtx.Lock()
	if existing := p.store.GetIntent(id); existing != nil {
		p.mtx.Unlock()
		return types.ErrIntentInCache
	}
	p.store.SetIntent(wi)
	wi.gossipEl = p.gossipIndex.PushBack(wi)
	p.expiryIndex.Insert(wi)
	atomic.AddInt64(&p.sizeBytes, size)
	p.mtx.Unlock()

	p.metrics.Size.Set(float64(p.Size()))
	p.metrics.IntentSizeBytes.Observe(float64(size))
	p.logger.Debug("inserted intent",
		"id", id,
		"owner", intent.Owner(),
		"offer", fmt.Sprintf("%d %s", intent.OfferAmount, intent.OfferAsset),
		"want", fmt.Sprintf("%d %s", intent.WantMin, intent.WantAsset),
	)

	p.notify(types.IntentStatus{ID: id, State: types.IntentStatePending, Remaining: wi.remaining})
	return nil
}

// Get returns the live intent with the given identifier, or nil.
func (p *IntentPool) Get(id types.IntentID) *WrappedIntent {
	return p.store.GetIntent(id)
}

// Snapshot returns every live, unexpired intent. The returned wrappers are
// shared; callers must treat them as read-only.
func (p *IntentPool) Snapshot() []*WrappedIntent {
	now := time.Now().UTC()
	all := p.store.GetAllIntents()

	live := all[:0]
	for _, wi := range all {
		if !wi.intent.Expired(now) && !p.store.IsIntentRemoved(wi.id) {
			live = append(live, wi)
		}
	}
	return live
}

// ApplyFill records that a settlement consumed give units of the intent's
// offer. The intent leaves the pool when fully consumed.
func (p *IntentPool) ApplyFill(id types.IntentID, give uint64) error {
	p.mtx.Lock()

	wi := p.store.GetIntent(id)
	if wi == nil {
		p.mtx.Unlock()
		return types.ErrIntentNotFound
	}

	if give >= wi.remaining {
		p.removeIntent(wi, false)
		p.mtx.Unlock()

		p.metrics.Size.Set(float64(p.Size()))
		p.metrics.IntentsFilled.Add(1)
		p.notify(types.IntentStatus{ID: id, State: types.IntentStateFilled})
		return nil
	}

	wi.remaining -= give
	remaining := wi.remaining
	p.mtx.Unlock()

	p.metrics.IntentsPartiallyFilled.Add(1)
	p.notify(types.IntentStatus{
		ID:        id,
		State:     types.IntentStatePartiallyFilled,
		Remaining: remaining,
	})
	return nil
}

// Cancel removes an intent on its owner's request. The requester must be the
// intent's signing address.
func (p *IntentPool) Cancel(id types.IntentID, requester crypto.Address) error {
	p.mtx.Lock()

	wi := p.store.GetIntent(id)
	if wi == nil {
		p.mtx.Unlock()
		return types.ErrIntentNotFound
	}
	if wi.intent.Owner() != requester {
		p.mtx.Unlock()
		return fmt.Errorf("intent %v is not owned by %v", id, requester)
	}

	p.removeIntent(wi, false)
	p.mtx.Unlock()

	p.metrics.Size.Set(float64(p.Size()))
	p.notify(types.IntentStatus{ID: id, State: types.IntentStateCancelled})
	p.logger.Debug("cancelled intent", "id", id, "owner", requester)
	return nil
}

// RemoveIntentByID removes the given intent, optionally forgetting it from
// the seen-cache so it may be resubmitted.
func (p *IntentPool) RemoveIntentByID(id types.IntentID, removeFromCache bool) error {
	p.mtx.Lock()

	wi := p.store.GetIntent(id)
	if wi == nil {
		p.mtx.Unlock()
		return types.ErrIntentNotFound
	}

	p.removeIntent(wi, removeFromCache)
	p.mtx.Unlock()

	p.metrics.Size.Set(float64(p.Size()))
	return nil
}

// PurgeExpired removes every intent whose expiry is at or before now. The
// expiry index is sorted soonest first, so the sweep stops at the first
// still-live intent.
func (p *IntentPool) PurgeExpired(now time.Time) {
	var expired []*WrappedIntent

	p.mtx.Lock()
	for {
		wi := p.expiryIndex.Front()
		if wi == nil || !wi.intent.Expired(now) {
			break
		}
		expired = append(expired, wi)
		p.removeIntent(wi, false)
	}
	p.mtx.Unlock()

	if len(expired) == 0 {
		return
	}

	p.metrics.Size.Set(float64(p.Size()))
	p.metrics.IntentsExpired.Add(float64(len(expired)))
	for _, wi := range expired {
		p.notify(types.IntentStatus{ID: wi.id, State: types.IntentStateExpired})
	}
	p.logger.Debug("purged expired intents", "count", len(expired))
}

// GossipFront returns the first element of the gossip index, or nil.
func (p *IntentPool) GossipFront() *clist.CElement {
	return p.gossipIndex.Front()
}

// GossipWaitChan returns a channel that closes once the gossip index is
// non-empty.
func (p *IntentPool) GossipWaitChan() <-chan struct{} {
	return p.gossipIndex.WaitChan()
}

// HasPeer reports whether peerID is already recorded as a sender of id.
func (p *IntentPool) HasPeer(id types.IntentID, peerID uint16) bool {
	return p.store.IntentHasPeer(id, peerID)
}

// removeIntent drops the intent from every index. Callers hold p.mtx.
func (p *IntentPool) removeIntent(wi *WrappedIntent, removeFromCache bool) {
	if wi.removed {
		return
	}

	p.store.RemoveIntent(wi)
	p.expiryIndex.Remove(wi)
	if wi.gossipEl != nil {
		p.gossipIndex.Remove(wi.gossipEl)
		wi.gossipEl.DetachPrev()
	}
	atomic.AddInt64(&p.sizeBytes, -wi.size)

	if removeFromCache {
		p.cache.Remove(wi.id)
	}
}

func (p *IntentPool) notify(status types.IntentStatus) {
	if p.observer != nil {
		p.observer(status)
	}
}
