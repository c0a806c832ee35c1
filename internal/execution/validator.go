package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/creachadair/taskgroup"

	"github.com/arvo-net/arvo/crypto"
	"github.com/arvo-net/arvo/internal/state"
	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/types"
)

// commitRetries bounds how often a commit is retried after losing a version
// race to a concurrent writer.
const commitRetries = 3

// RevealChecker is the validator's view of the front-running guard.
type RevealChecker interface {
	CheckReveal(tx *types.Transaction, height int64) error
	MarkRevealed(tx *types.Transaction) error
}

// TxResult is the validator's verdict on a single ordered transaction.
type TxResult struct {
	Status types.TxStatus
	// Err explains a rejection. Nil when Status is TxStatusAccepted.
	Err error
}

// Validator applies ordered transactions to the store. For every transaction
// it stages the diff, runs the validity predicate of every touched account
// against the staged view, and commits only when all of them accept.
// Rejection never dirties the store: the staged view is discarded whole.
type Validator struct {
	logger   log.Logger
	store    *state.Store
	executor *Executor
	guard    RevealChecker

	// workers bounds concurrent predicate evaluations; 0 means one per
	// touched account.
	workers int
	// shortCircuit stops sibling evaluations on the first failure. When
	// false the reported rejection is the failure of the lowest-ordered
	// account, so verdicts are reproducible across nodes.
	shortCircuit bool

	metrics *Metrics
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithWorkers bounds concurrent predicate evaluations per transaction.
func WithWorkers(n int) ValidatorOption {
	return func(v *Validator) { v.workers = n }
}

// WithShortCircuit cancels sibling predicate runs on the first failure.
func WithShortCircuit(on bool) ValidatorOption {
	return func(v *Validator) { v.shortCircuit = on }
}

// WithMetrics installs the validator's metric set.
func WithMetrics(m *Metrics) ValidatorOption {
	return func(v *Validator) { v.metrics = m }
}

// NewValidator returns a Validator applying transactions to store, running
// predicates through executor and consulting guard for reveal eligibility.
func NewValidator(
	logger log.Logger,
	store *state.Store,
	executor *Executor,
	guard RevealChecker,
	opts ...ValidatorOption,
) *Validator {
	v := &Validator{
		logger:       logger,
		store:        store,
		executor:     executor,
		guard:        guard,
		shortCircuit: true,
		metrics:      NopMetrics(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateTx decides a single ordered transaction at the given block height
// and time. The returned TxResult is terminal: accepted transactions are
// committed to the store before it returns, rejected ones leave no trace.
//
// An error return means the store itself failed; the verdict on tx is then
// unknown and the caller must stop applying blocks.
func (v *Validator) ValidateTx(
	ctx context.Context,
	tx *types.Transaction,
	height int64,
	blockTime time.Time,
) (TxResult, error) {
	defer func(start time.Time) {
		v.metrics.TxValidationSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())

	signers, err := tx.Signers()
	if err != nil {
		return v.reject(tx, fmt.Errorf("bad authorization: %w", err)), nil
	}

	settlement := len(tx.IntentRefs) > 0
	if settlement {
		if err := v.checkSettlement(tx, height, blockTime); err != nil {
			return v.reject(tx, err), nil
		}
	} else if len(tx.Code) != 0 {
		return v.reject(tx, errors.New("code payload on a non-settlement transaction")), nil
	}

	result, err := v.applyDiff(ctx, tx, signers, settlement)
	if err != nil {
		return TxResult{}, err
	}
	if result.Status != types.TxStatusAccepted {
		return result, nil
	}

	if settlement {
		if err := v.guard.MarkRevealed(tx); err != nil {
			return TxResult{}, err
		}
	}

	v.metrics.TxsAccepted.Add(1)
	v.logger.Debug("transaction accepted", "key", tx.Key(), "height", height)
	return result, nil
}

// applyDiff stages tx's diff, evaluates predicates, and commits. It retries
// the stage-evaluate-commit cycle when a concurrent writer advanced the
// store version underneath us; each retry re-verifies the diff's recorded
// pre-values against the new committed state.
func (v *Validator) applyDiff(
	ctx context.Context,
	tx *types.Transaction,
	signers []crypto.Address,
	settlement bool,
) (TxResult, error) {
	for attempt := 0; ; attempt++ {
		view, err := v.store.Stage(tx.Diff)
		if err != nil {
			if errors.Is(err, types.ErrStaleView) {
				if settlement {
					err = types.ErrStaleMatch{Cause: err}
				}
				return v.reject(tx, err), nil
			}
			return TxResult{}, err
		}

		if err := v.evaluatePredicates(ctx, view, tx, signers); err != nil {
			v.store.Discard(view)
			if isVerdict(err) {
				return v.reject(tx, err), nil
			}
			return TxResult{}, err
		}

		err = v.store.Commit(view)
		switch {
		case err == nil:
			return TxResult{Status: types.TxStatusAccepted}, nil

		case errors.Is(err, types.ErrStaleView) && attempt < commitRetries:
			v.metrics.CommitRetries.Add(1)
			v.logger.Debug("commit lost version race, retrying",
				"key", tx.Key(),
				"attempt", attempt+1,
			)
			continue

		case errors.Is(err, types.ErrStaleView):
			if settlement {
				err = types.ErrStaleMatch{Cause: err}
			}
			return v.reject(tx, err), nil

		default:
			return TxResult{}, err
		}
	}
}

// evaluatePredicates runs every touched account's predicate against the
// staged view. All predicates run to a verdict unless short-circuiting is
// enabled, in which case the first failure cancels the rest. With
// short-circuiting off the failure of the lowest-ordered account wins, so
// the reported reason does not depend on scheduling.
func (v *Validator) evaluatePredicates(
	ctx context.Context,
	view *state.StagedView,
	tx *types.Transaction,
	signers []crypto.Address,
) error {
	accounts := tx.TouchedAccounts()
	if len(accounts) == 0 {
		return types.ErrPredicateRejected{Reason: "transaction touches no accounts"}
	}

	evalCtx := ctx
	var cancel context.CancelFunc
	if v.shortCircuit {
		evalCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	var g *taskgroup.Group
	if v.shortCircuit {
		g = taskgroup.New(taskgroup.Trigger(cancel))
	} else {
		g = taskgroup.New(nil)
	}

	workers := v.workers
	if workers <= 0 || workers > len(accounts) {
		workers = len(accounts)
	}
	g, start := g.Limit(workers)

	results := make([]error, len(accounts))
	for i, account := range accounts {
		i, account := i, account
		start(func() error {
			err := v.executor.Evaluate(evalCtx, view, account, tx, signers)
			results[i] = err
			return err
		})
	}

	if err := g.Wait(); err != nil && v.shortCircuit {
		// Sibling runs cancelled by the winner may have recorded a context
		// error; the group's error is the verdict that triggered it.
		if isVerdict(err) {
			v.metrics.PredicateRejections.Add(1)
			return err
		}
		return err
	}

	// Deterministic verdict: accounts sorted by address, first failure wins.
	order := make([]int, len(accounts))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return accounts[order[a]].String() < accounts[order[b]].String()
	})
	for _, i := range order {
		if results[i] != nil {
			if isVerdict(results[i]) {
				v.metrics.PredicateRejections.Add(1)
			}
			return results[i]
		}
	}
	return nil
}

// checkSettlement verifies a reveal transaction's payload before any state
// is staged: the prior commitment, the match set itself, fill expiry against
// the ordering layer's clock, and agreement between the declared intent
// references and the revealed fills.
func (v *Validator) checkSettlement(tx *types.Transaction, height int64, blockTime time.Time) error {
	if err := v.guard.CheckReveal(tx, height); err != nil {
		return err
	}

	ms, err := types.MatchSetFromBytes(tx.Code)
	if err != nil {
		return fmt.Errorf("bad match set payload: %w", err)
	}
	if err := ms.Validate(); err != nil {
		return err
	}

	if len(tx.IntentRefs) != len(ms.Fills) {
		return fmt.Errorf("settlement declares %d intents but reveals %d fills",
			len(tx.IntentRefs), len(ms.Fills))
	}

	byID := make(map[types.IntentID]types.Fill, len(ms.Fills))
	for _, fill := range ms.Fills {
		id := fill.Intent.ID()
		if _, ok := byID[id]; ok {
			return fmt.Errorf("duplicate fill for intent %v", id)
		}
		if fill.Intent.Expired(blockTime) {
			return types.ErrExpired{Kind: "intent", ID: id.String()}
		}
		byID[id] = fill
	}

	for _, ref := range tx.IntentRefs {
		fill, ok := byID[ref.ID]
		if !ok {
			return fmt.Errorf("intent reference %v has no matching fill", ref.ID)
		}
		if fill.Give != ref.Give {
			return fmt.Errorf("intent %v: declared give %d disagrees with fill %d",
				ref.ID, ref.Give, fill.Give)
		}
		if err := v.checkConsumption(tx, ref, fill); err != nil {
			return err
		}
	}

	return nil
}

// checkConsumption verifies the settlement's bookkeeping write for one
// intent: the recorded pre-value must match committed state (a mismatch
// means a competing settlement already consumed the intent) and the new
// consumption must stay within the intent's offer.
func (v *Validator) checkConsumption(tx *types.Transaction, ref types.IntentRef, fill types.Fill) error {
	key := types.IntentStateKey(ref.ID)

	var write *types.Write
	for i := range tx.Diff {
		if string(tx.Diff[i].Key) == string(key) {
			write = &tx.Diff[i]
			break
		}
	}
	if write == nil {
		return fmt.Errorf("settlement has no consumption record for intent %v", ref.ID)
	}

	var prior uint64
	if write.Old != nil {
		rec, err := types.DecodeIntentConsumption(write.Old)
		if err != nil {
			return fmt.Errorf("intent %v: %w", ref.ID, err)
		}
		prior = rec.Consumed
	}

	committed, ok, err := v.store.Read(key)
	if err != nil {
		return err
	}
	if ok != (write.Old != nil) {
		return types.ErrStaleMatch{IntentID: ref.ID}
	}
	if ok {
		rec, err := types.DecodeIntentConsumption(committed)
		if err != nil {
			return fmt.Errorf("intent %v: %w", ref.ID, err)
		}
		if rec.Consumed != prior {
			return types.ErrStaleMatch{IntentID: ref.ID}
		}
	}

	if prior+ref.Give < prior || prior+ref.Give > fill.Intent.OfferAmount {
		return types.ErrStaleMatch{IntentID: ref.ID}
	}

	newRec, err := types.DecodeIntentConsumption(write.New)
	if err != nil {
		return fmt.Errorf("intent %v: %w", ref.ID, err)
	}
	if newRec.Consumed != prior+ref.Give || newRec.Total != fill.Intent.OfferAmount {
		return fmt.Errorf("intent %v: consumption record disagrees with fill", ref.ID)
	}

	return nil
}

func (v *Validator) reject(tx *types.Transaction, err error) TxResult {
	v.metrics.TxsRejected.Add(1)
	v.logger.Info("transaction rejected", "key", tx.Key(), "err", err)
	return TxResult{Status: types.TxStatusRejected, Err: err}
}

// isVerdict reports whether err is a judgement on the transaction rather
// than an infrastructure failure.
func isVerdict(err error) bool {
	var (
		rejected  types.ErrPredicateRejected
		fault     types.ErrSandboxFault
		stale     types.ErrStaleMatch
		mismatch  types.ErrCommitmentMismatch
		duplicate types.ErrDuplicateReveal
		expired   types.ErrExpired
	)
	return errors.As(err, &rejected) ||
		errors.As(err, &fault) ||
		errors.As(err, &stale) ||
		errors.As(err, &mismatch) ||
		errors.As(err, &duplicate) ||
		errors.As(err, &expired)
}
