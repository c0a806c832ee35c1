// Package sandbox defines the calling contract between the transaction
// engine and the isolated runtime that executes validity predicates, plus a
// deterministic in-process reference runtime used by default and in tests.
//
// Predicate execution must be deterministic, step-bounded and side-effect
// free on global state. Exceeding the step quota or trapping is reported as
// an error to the caller, never as a crash; the transaction engine treats
// both as a rejection for the account whose predicate faulted.
package sandbox

import (
	"context"
	"errors"

	"github.com/arvo-net/arvo/crypto"
	"github.com/arvo-net/arvo/types"
)

var (
	// ErrQuotaExceeded is reported when predicate execution used up its step
	// quota.
	ErrQuotaExceeded = errors.New("predicate exceeded its step quota")

	// ErrTrapped is reported when predicate code faulted (malformed program,
	// bad memory access in a real sandbox, unknown dispatch target).
	ErrTrapped = errors.New("predicate execution trapped")
)

// Input carries everything a validity predicate may observe. Predicates are
// total functions of this input: two predicates coordinate only through the
// shared diff they each inspect, never directly.
type Input struct {
	// Account is the account whose predicate is being evaluated.
	Account crypto.Address

	// PreState and PostState hold the account's touched keys (by path within
	// the account keyspace) before and after the diff. A nil value means the
	// key is absent on that side.
	PreState  map[string][]byte
	PostState map[string][]byte

	// Diff is the full transaction diff, so predicates can inspect changes
	// to other accounts as multi-party trade validation requires.
	Diff types.Diff

	// Signers are the addresses whose signatures authorized the transaction.
	Signers []crypto.Address

	// Code is the transaction's opaque executable payload. Settlement
	// transactions carry the canonical match set here.
	Code []byte
}

// Output is the verdict of one predicate evaluation.
type Output struct {
	Accept    bool
	Reason    string
	StepsUsed uint64
}

// Runtime executes predicate code against an input under a step quota. Run
// returns a non-nil error only for sandbox faults (ErrQuotaExceeded,
// ErrTrapped, or context cancellation); a predicate's own rejection is a
// normal Output with Accept=false.
type Runtime interface {
	Run(ctx context.Context, code []byte, input Input, quota uint64) (Output, error)
}
