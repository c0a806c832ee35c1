package types

import (
	"errors"
	"fmt"

	"github.com/arvo-net/arvo/crypto"
)

var (
	// ErrIntentInCache is returned to callers when an intent with the same
	// identifier is already known. Duplicates are a no-op, never a second
	// propagation.
	ErrIntentInCache = errors.New("intent already exists in cache")

	// ErrIntentNotFound is returned when querying or removing an unknown
	// intent identifier.
	ErrIntentNotFound = errors.New("intent not found")

	// ErrStoreHalted is returned for every commit after the state store
	// observes a failed atomic write. Only operator intervention clears it.
	ErrStoreHalted = errors.New("state store halted after failed atomic commit")

	// ErrStaleView is returned when committing a staged view built over a
	// superseded committed version. The caller must re-stage against current
	// state.
	ErrStaleView = errors.New("staged view is stale; re-stage against current state")
)

// ErrSignatureInvalid reports a failed cryptographic check on an intent or
// commitment. Such items are dropped and never propagated.
type ErrSignatureInvalid struct {
	Reason string
}

func (e ErrSignatureInvalid) Error() string {
	return "invalid signature: " + e.Reason
}

// ErrExpired reports an intent or commitment past its validity window.
type ErrExpired struct {
	Kind string // "intent" or "commitment"
	ID   string
}

func (e ErrExpired) Error() string {
	return fmt.Sprintf("%s %s is expired", e.Kind, e.ID)
}

// ErrPoolIsFull means the intent pool reached its configured capacity.
type ErrPoolIsFull struct {
	NumIntents int
	MaxIntents int
	Bytes      int64
	MaxBytes   int64
}

func (e ErrPoolIsFull) Error() string {
	return fmt.Sprintf(
		"intent pool is full: number of intents %d (max: %d), total bytes %d (max: %d)",
		e.NumIntents, e.MaxIntents, e.Bytes, e.MaxBytes,
	)
}

// ErrIntentTooLarge means the intent exceeded the maximum encoded size
// accepted by the pool.
type ErrIntentTooLarge struct {
	Max    int
	Actual int
}

func (e ErrIntentTooLarge) Error() string {
	return fmt.Sprintf("intent size %d bytes exceeds maximum %d bytes", e.Actual, e.Max)
}

// ErrPredicateRejected names the account whose validity predicate rejected a
// transaction, with the predicate-supplied reason. The transaction is
// discarded and its diff never committed.
type ErrPredicateRejected struct {
	Account crypto.Address
	Reason  string
}

func (e ErrPredicateRejected) Error() string {
	return fmt.Sprintf("predicate of account %s rejected transaction: %s", e.Account, e.Reason)
}

// ErrSandboxFault reports a quota or trap violation while running an
// account's predicate. It is treated as a rejection for that account, never
// escalated to the process.
type ErrSandboxFault struct {
	Account crypto.Address
	Err     error
}

func (e ErrSandboxFault) Error() string {
	return fmt.Sprintf("sandbox fault evaluating predicate of account %s: %v", e.Account, e.Err)
}

func (e ErrSandboxFault) Unwrap() error { return e.Err }

// ErrStaleMatch reports that an intent referenced by a candidate transaction
// was consumed (or expired) before the candidate committed. The candidate is
// discarded; the matching engine resubmits against fresh pool state.
type ErrStaleMatch struct {
	IntentID IntentID
	Cause    error
}

func (e ErrStaleMatch) Error() string {
	if e.IntentID == (IntentID{}) {
		return fmt.Sprintf("match is stale: %v", e.Cause)
	}
	return fmt.Sprintf("intent %s already consumed; match is stale", e.IntentID)
}

func (e ErrStaleMatch) Unwrap() error { return e.Cause }

// ErrCommitmentMismatch reports a reveal whose content does not hash to a
// previously-ordered commitment from the same submitter. The submitter's
// commitment is burned and cannot be retried with different content.
type ErrCommitmentMismatch struct {
	Submitter crypto.Address
}

func (e ErrCommitmentMismatch) Error() string {
	return fmt.Sprintf("revealed content does not match a prior commitment from %s", e.Submitter)
}

// ErrDuplicateReveal reports a second reveal of an already-settled
// commitment.
type ErrDuplicateReveal struct {
	Submitter crypto.Address
}

func (e ErrDuplicateReveal) Error() string {
	return fmt.Sprintf("commitment from %s was already revealed", e.Submitter)
}
