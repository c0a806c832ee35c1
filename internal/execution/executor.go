package execution

import (
	"context"
	"errors"

	"github.com/arvo-net/arvo/crypto"
	"github.com/arvo-net/arvo/internal/sandbox"
	"github.com/arvo-net/arvo/internal/state"
	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/types"
)

// Executor evaluates one account's validity predicate against a staged diff.
//
// The predicate is always loaded from pre-diff state, so a transaction cannot
// use a predicate it is simultaneously installing to approve itself. An
// account with no stored predicate is governed by the default predicate,
// which accepts nothing but an owner-signed predicate installation.
type Executor struct {
	logger  log.Logger
	runtime sandbox.Runtime
	quota   uint64
}

// NewExecutor returns an Executor running predicates on runtime under the
// given step quota.
func NewExecutor(logger log.Logger, runtime sandbox.Runtime, quota uint64) *Executor {
	return &Executor{
		logger:  logger,
		runtime: runtime,
		quota:   quota,
	}
}

// Evaluate runs account's current validity predicate against the staged
// view's diff. It returns nil on acceptance, types.ErrPredicateRejected on
// rejection, and types.ErrSandboxFault when the sandbox reports a quota or
// trap violation (which the caller treats as a rejection for this account).
func (e *Executor) Evaluate(
	ctx context.Context,
	view *state.StagedView,
	account crypto.Address,
	tx *types.Transaction,
	signers []crypto.Address,
) error {
	code, ok, err := view.PreRead(types.VPKey(account))
	if err != nil {
		return err
	}
	if !ok {
		code = sandbox.DefaultVP()
	}

	input := sandbox.Input{
		Account:   account,
		PreState:  make(map[string][]byte),
		PostState: make(map[string][]byte),
		Diff:      view.Diff(),
		Signers:   signers,
		Code:      tx.Code,
	}
	for _, w := range view.Diff() {
		addr, path, ok := types.ParseAccountKey(w.Key)
		if !ok || addr != account {
			continue
		}
		input.PreState[path] = w.Old
		input.PostState[path] = w.New
	}

	out, err := e.runtime.Run(ctx, code, input, e.quota)
	switch {
	case errors.Is(err, sandbox.ErrQuotaExceeded), errors.Is(err, sandbox.ErrTrapped):
		e.logger.Debug("predicate sandbox fault",
			"account", account,
			"steps_used", out.StepsUsed,
			"err", err,
		)
		return types.ErrSandboxFault{Account: account, Err: err}

	case err != nil:
		// Context cancellation or a store read failure; not a verdict.
		return err
	}

	if !out.Accept {
		return types.ErrPredicateRejected{Account: account, Reason: out.Reason}
	}

	return nil
}
