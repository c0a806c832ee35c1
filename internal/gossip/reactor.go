// Package gossip propagates trade intents across the network. Each node
// forwards newly admitted intents to a weighted sample of its peers; the
// pool's seen-cache stops duplicates from echoing, so an intent floods the
// network once and then goes quiet.
package gossip

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/mroth/weightedrand"

	"github.com/arvo-net/arvo/config"
	"github.com/arvo-net/arvo/internal/intentpool"
	"github.com/arvo-net/arvo/internal/libs/clist"
	"github.com/arvo-net/arvo/internal/p2p"
	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/libs/service"
	"github.com/arvo-net/arvo/types"
)

// GossipChannel is the p2p channel carrying intent traffic.
const GossipChannel = p2p.ChannelID(0x30)

type peerState struct {
	score  p2p.PeerScore
	cancel context.CancelFunc
}

// Reactor gossips intents between the pool and the node's peers.
type Reactor struct {
	service.BaseService
	logger log.Logger

	cfg  *config.GossipConfig
	pool *intentpool.IntentPool
	ids  *PeerIDs

	gossipCh    *p2p.Channel
	peerUpdates *p2p.PeerUpdates

	mtx   sync.Mutex
	peers map[types.NodeID]*peerState
	// targets memoizes, per intent, the fan-out subset chosen for it, so
	// every per-peer routine agrees on who receives the intent.
	targets    map[types.IntentID]map[types.NodeID]struct{}
	targetFIFO []types.IntentID

	peerWG sync.WaitGroup
}

// NewReactor returns a gossip reactor wired to the given pool and channel.
func NewReactor(
	logger log.Logger,
	cfg *config.GossipConfig,
	pool *intentpool.IntentPool,
	ids *PeerIDs,
	gossipCh *p2p.Channel,
	peerUpdates *p2p.PeerUpdates,
) *Reactor {
	r := &Reactor{
		logger:      logger,
		cfg:         cfg,
		pool:        pool,
		ids:         ids,
		gossipCh:    gossipCh,
		peerUpdates: peerUpdates,
		peers:       make(map[types.NodeID]*peerState),
		targets:     make(map[types.IntentID]map[types.NodeID]struct{}),
	}
	r.BaseService = *service.NewBaseService(logger, "Gossip", r)
	return r
}

func (r *Reactor) OnStart(ctx context.Context) error {
	go r.processGossipCh(ctx)
	go r.processPeerUpdates(ctx)
	return nil
}

func (r *Reactor) OnStop() {
	r.mtx.Lock()
	for _, ps := range r.peers {
		ps.cancel()
	}
	r.mtx.Unlock()

	r.peerWG.Wait()
	r.gossipCh.Close()
	r.peerUpdates.Close()
}

// processGossipCh handles inbound envelopes until the channel or context
// closes.
func (r *Reactor) processGossipCh(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case envelope, ok := <-r.gossipCh.In():
			if !ok {
				return
			}
			if err := r.handleMessage(envelope); err != nil {
				r.logger.Error("failed to process message",
					"peer", envelope.From,
					"err", err,
				)
				select {
				case r.gossipCh.Error() <- p2p.PeerError{NodeID: envelope.From, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (r *Reactor) handleMessage(envelope p2p.Envelope) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("panic in processing message: %v", e)
			r.logger.Error("recovering from processing message panic",
				"err", err,
				"stack", string(debug.Stack()),
			)
		}
	}()

	switch msg := envelope.Message.(type) {
	case *IntentMessage:
		return r.handleIntent(envelope.From, msg)

	case *IntentResponse:
		if err := msg.ValidateBasic(); err != nil {
			return err
		}
		if !msg.Accepted {
			r.logger.Debug("peer declined intent",
				"peer", envelope.From,
				"reason", msg.Reason,
			)
		}
		return nil

	default:
		return fmt.Errorf("received unknown message: %T", msg)
	}
}

func (r *Reactor) handleIntent(from types.NodeID, msg *IntentMessage) error {
	if err := msg.ValidateBasic(); err != nil {
		return err
	}

	intent, err := types.IntentFromBytes(msg.Intent)
	if err != nil {
		return err
	}
	id := intent.ID()

	err = r.pool.Insert(intent, intentpool.IntentInfo{
		SenderID:     r.ids.GetForPeer(from),
		SenderNodeID: from,
	})
	switch {
	case err == nil:

	case errors.Is(err, types.ErrIntentInCache):
		// Duplicate: acknowledged but never re-propagated.

	default:
		var sigErr types.ErrSignatureInvalid
		if errors.As(err, &sigErr) {
			// A forged or corrupted intent is a peer fault, not load.
			return err
		}
		r.logger.Debug("rejected gossiped intent", "id", id, "err", err)
		r.respond(from, &IntentResponse{ID: id.Bytes(), Accepted: false, Reason: err.Error()})
		return nil
	}

	r.respond(from, &IntentResponse{ID: id.Bytes(), Accepted: true})
	return nil
}

func (r *Reactor) respond(to types.NodeID, msg *IntentResponse) {
	select {
	case r.gossipCh.Out() <- p2p.Envelope{To: to, Message: msg}:
	case <-r.gossipCh.Done():
	}
}

// processPeerUpdates starts and stops per-peer broadcast routines as peers
// come and go.
func (r *Reactor) processPeerUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-r.peerUpdates.Updates():
			if !ok {
				return
			}
			r.processPeerUpdate(ctx, update)
		}
	}
}

func (r *Reactor) processPeerUpdate(ctx context.Context, update p2p.PeerUpdate) {
	r.logger.Debug("received peer update", "peer", update.NodeID, "status", update.Status)

	r.mtx.Lock()
	defer r.mtx.Unlock()

	switch update.Status {
	case p2p.PeerStatusUp:
		if _, ok := r.peers[update.NodeID]; ok {
			return
		}

		r.ids.ReserveForPeer(update.NodeID)

		peerCtx, cancel := context.WithCancel(ctx)
		score := update.Score
		if score == 0 {
			score = p2p.DefaultPeerScore
		}
		r.peers[update.NodeID] = &peerState{score: score, cancel: cancel}

		r.peerWG.Add(1)
		go r.broadcastIntentRoutine(peerCtx, update.NodeID)

	case p2p.PeerStatusDown:
		ps, ok := r.peers[update.NodeID]
		if !ok {
			return
		}
		ps.cancel()
		delete(r.peers, update.NodeID)
		r.ids.Reclaim(update.NodeID)
	}
}

// broadcastIntentRoutine walks the pool's gossip index in FIFO order and
// forwards each intent to the peer, provided the peer is in the intent's
// fan-out subset and did not send it to us.
func (r *Reactor) broadcastIntentRoutine(ctx context.Context, peerID types.NodeID) {
	defer r.peerWG.Done()

	peerPoolID := r.ids.GetForPeer(peerID)
	var next *clist.CElement

	for {
		if next == nil {
			select {
			case <-ctx.Done():
				return
			case <-r.pool.GossipWaitChan():
				if next = r.pool.GossipFront(); next == nil {
					continue
				}
			}
		}

		wi, ok := next.Value.(*intentpool.WrappedIntent)
		if !ok {
			next = nil
			continue
		}

		if r.shouldSend(wi.ID(), peerID) && !r.pool.HasPeer(wi.ID(), peerPoolID) {
			in := wi.Intent()
			select {
			case r.gossipCh.Out() <- p2p.Envelope{
				To:      peerID,
				Message: &IntentMessage{Intent: in.Bytes()},
			}:
			case <-r.gossipCh.Done():
				return
			case <-ctx.Done():
				return
			}
			r.logger.Debug("gossiped intent", "id", wi.ID(), "peer", peerID)
		}

		select {
		case <-next.NextWaitChan():
			next = next.Next()
		case <-ctx.Done():
			return
		}
	}
}

// shouldSend reports whether peerID is in the fan-out subset for the intent.
// The subset is sampled once per intent, weighted by peer score, and then
// memoized so every broadcast routine agrees.
func (r *Reactor) shouldSend(id types.IntentID, peerID types.NodeID) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if set, ok := r.targets[id]; ok {
		_, in := set[peerID]
		return in
	}

	set := r.sampleTargets()
	r.targets[id] = set
	r.targetFIFO = append(r.targetFIFO, id)
	if max := r.cfg.SentCacheSize; max > 0 && len(r.targetFIFO) > max {
		evict := r.targetFIFO[0]
		r.targetFIFO = r.targetFIFO[1:]
		delete(r.targets, evict)
	}

	_, in := set[peerID]
	return in
}

// sampleTargets picks up to FanOut distinct peers, weighted by score. The
// caller holds r.mtx.
func (r *Reactor) sampleTargets() map[types.NodeID]struct{} {
	set := make(map[types.NodeID]struct{}, r.cfg.FanOut)

	if len(r.peers) <= r.cfg.FanOut {
		for id := range r.peers {
			set[id] = struct{}{}
		}
		return set
	}

	remaining := make(map[types.NodeID]p2p.PeerScore, len(r.peers))
	for id, ps := range r.peers {
		remaining[id] = ps.score
	}

	for len(set) < r.cfg.FanOut && len(remaining) > 0 {
		choices := make([]weightedrand.Choice, 0, len(remaining))
		for id, score := range remaining {
			choices = append(choices, weightedrand.NewChoice(id, uint(score)))
		}
		chooser, err := weightedrand.NewChooser(choices...)
		if err != nil {
			// Zero total weight; fall back to taking whatever is left.
			for id := range remaining {
				if len(set) == r.cfg.FanOut {
					break
				}
				set[id] = struct{}{}
			}
			return set
		}

		picked := chooser.Pick().(types.NodeID)
		set[picked] = struct{}{}
		delete(remaining, picked)
	}
	return set
}
