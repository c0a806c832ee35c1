// Package node assembles and runs a full node: state store, sandbox,
// validator, intent pool, gossip, matching engine, front-running guard,
// local sequencer, and the RPC surface.
package node

import (
	"context"
	"fmt"
	"time"

	dbm "github.com/tendermint/tm-db"

	"github.com/arvo-net/arvo/config"
	"github.com/arvo-net/arvo/internal/execution"
	"github.com/arvo-net/arvo/internal/gossip"
	"github.com/arvo-net/arvo/internal/guard"
	"github.com/arvo-net/arvo/internal/intentpool"
	"github.com/arvo-net/arvo/internal/matcher"
	"github.com/arvo-net/arvo/internal/ordering"
	"github.com/arvo-net/arvo/internal/p2p"
	"github.com/arvo-net/arvo/internal/sandbox"
	"github.com/arvo-net/arvo/internal/state"
	"github.com/arvo-net/arvo/internal/status"
	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/libs/service"
	"github.com/arvo-net/arvo/rpc"
	"github.com/arvo-net/arvo/types"
)

// MetricsNamespace prefixes every metric the node exposes.
const MetricsNamespace = "arvo"

// Node ties the engine's services together over a shared transport.
type Node struct {
	service.BaseService
	logger log.Logger

	cfg     *config.Config
	nodeKey types.NodeKey

	stateDB dbm.DB
	store   *state.Store

	pool      *intentpool.IntentPool
	tracker   *status.Tracker
	guard     *guard.Guard
	validator *execution.Validator
	orderer   *ordering.Local
	engine    *matcher.Engine
	reactor   *gossip.Reactor
	rpcSrv    *rpc.Server

	transport *p2p.MemoryNode
}

// New assembles a node from its configuration. transport is the node's
// endpoint on the gossip network; pass nil to run without peers.
func New(cfg *config.Config, logger log.Logger, transport *p2p.MemoryNode) (*Node, error) {
	nodeKey, err := types.LoadOrGenNodeKey(cfg.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or generate node key: %w", err)
	}

	stateDB, err := dbm.NewDB("state", dbm.BackendType(cfg.State.Backend), cfg.State.DBDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	store, err := state.NewStore(logger.With("module", "state"), stateDB)
	if err != nil {
		return nil, err
	}

	tracker := status.NewTracker(logger.With("module", "status"))

	// The observer feeds the status tracker and wakes the matcher whenever a
	// fresh intent enters the pool. engine is assigned below, before any
	// service that inserts intents starts.
	var engine *matcher.Engine
	pool := intentpool.NewIntentPool(
		logger.With("module", "intentpool"),
		cfg.Pool,
		intentpool.WithMetrics(intentpool.PrometheusMetrics(MetricsNamespace)),
		intentpool.WithStateObserver(func(st types.IntentStatus) {
			tracker.Update(st)
			if engine != nil && st.State == types.IntentStatePending {
				engine.Kick()
			}
		}),
	)

	orderer := ordering.NewLocal(logger.With("module", "ordering"))

	guardDB := dbm.NewPrefixDB(stateDB, []byte("guard/"))
	grd := guard.New(
		logger.With("module", "guard"),
		guardDB,
		orderer,
		nodeKey.Address(),
		cfg.Matcher.CommitmentTTL,
	)

	runtime := sandbox.NewRegistry()
	executor := execution.NewExecutor(
		logger.With("module", "execution"),
		runtime,
		cfg.Sandbox.StepQuota,
	)
	validator := execution.NewValidator(
		logger.With("module", "execution"),
		store,
		executor,
		grd,
		execution.WithWorkers(cfg.Sandbox.Workers),
		execution.WithShortCircuit(cfg.Sandbox.ShortCircuit),
		execution.WithMetrics(execution.PrometheusMetrics(MetricsNamespace)),
	)

	engine = matcher.NewEngine(
		logger.With("module", "matcher"),
		cfg.Matcher,
		pool,
		store,
		grd,
		nodeKey.Address(),
		matcher.PrometheusMetrics(MetricsNamespace),
	)

	n := &Node{
		logger:    logger,
		cfg:       cfg,
		nodeKey:   nodeKey,
		stateDB:   stateDB,
		store:     store,
		pool:      pool,
		tracker:   tracker,
		guard:     grd,
		validator: validator,
		orderer:   orderer,
		engine:    engine,
		transport: transport,
	}

	if transport != nil {
		gossipCh, err := transport.OpenChannel(gossip.GossipChannel, cfg.Gossip.PeerQueueCapacity)
		if err != nil {
			return nil, err
		}
		n.reactor = gossip.NewReactor(
			logger.With("module", "gossip"),
			cfg.Gossip,
			pool,
			gossip.NewPeerIDs(),
			gossipCh,
			transport.PeerUpdates(),
		)
	}

	n.rpcSrv = rpc.NewServer(
		logger.With("module", "rpc"),
		cfg.RPC,
		pool,
		tracker,
		nodeKey.ID,
	)

	n.BaseService = *service.NewBaseService(logger, "Node", n)
	return n, nil
}

func (n *Node) OnStart(ctx context.Context) error {
	if err := n.orderer.Start(ctx); err != nil {
		return err
	}
	if err := n.engine.Start(ctx); err != nil {
		return err
	}
	if n.reactor != nil {
		if err := n.reactor.Start(ctx); err != nil {
			return err
		}
	}
	if err := n.rpcSrv.Start(ctx); err != nil {
		return err
	}

	go n.applyBlocks(ctx)
	go n.purgeLoop(ctx)

	n.logger.Info("node started", "node_id", n.nodeKey.ID, "moniker", n.cfg.Moniker)
	return nil
}

func (n *Node) OnStop() {
	n.rpcSrv.Stop()
	if n.reactor != nil {
		n.reactor.Stop()
	}
	n.engine.Stop()
	n.orderer.Stop()
	if n.transport != nil {
		n.transport.Close()
	}

	if err := n.store.Close(); err != nil {
		n.logger.Error("failed to close state store", "err", err)
	}
}

// Pool exposes the node's intent pool, mainly for local submission.
func (n *Node) Pool() *intentpool.IntentPool { return n.pool }

// Store exposes the node's state store.
func (n *Node) Store() *state.Store { return n.store }

// Tracker exposes the node's status tracker.
func (n *Node) Tracker() *status.Tracker { return n.tracker }

// NodeKey returns the node's identity key.
func (n *Node) NodeKey() types.NodeKey { return n.nodeKey }

// applyBlocks consumes the ordered stream and drives commitments and
// transactions through the guard and validator.
func (n *Node) applyBlocks(ctx context.Context) {
	for block := range n.orderer.Blocks() {
		for _, item := range block.Items {
			switch {
			case item.Commitment != nil:
				if err := n.guard.OnCommitmentOrdered(ctx, item.Commitment, block.Height); err != nil {
					n.logger.Error("failed to process ordered commitment",
						"height", block.Height,
						"err", err,
					)
				}

			case item.Tx != nil:
				n.applyTx(ctx, item.Tx, block.Height, block.Time)
			}
		}

		if err := n.guard.PurgeExpired(block.Height); err != nil {
			n.logger.Error("failed to purge expired commitments", "err", err)
		}
		n.pool.PurgeExpired(block.Time)
	}
}

func (n *Node) applyTx(ctx context.Context, tx *types.Transaction, height int64, blockTime time.Time) {
	result, err := n.validator.ValidateTx(ctx, tx, height, blockTime)
	if err != nil {
		n.logger.Error("store failure while validating transaction",
			"key", tx.Key(),
			"err", err,
		)
		return
	}

	if len(tx.IntentRefs) == 0 {
		return
	}

	// A settlement verdict frees its intents for rematching; an accepted one
	// also consumes pool quantity.
	ids := make([]types.IntentID, len(tx.IntentRefs))
	for i, ref := range tx.IntentRefs {
		ids[i] = ref.ID
	}
	defer n.engine.ReleaseIntents(ids...)

	if result.Status != types.TxStatusAccepted {
		return
	}
	for _, ref := range tx.IntentRefs {
		if err := n.pool.ApplyFill(ref.ID, ref.Give); err != nil && err != types.ErrIntentNotFound {
			n.logger.Error("failed to apply fill", "intent", ref.ID, "err", err)
		}
	}
}

// purgeLoop sweeps expired intents between blocks.
func (n *Node) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.Pool.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.pool.PurgeExpired(time.Now().UTC())
		}
	}
}
