// Package guard implements the front-running guard: a commit-then-reveal
// wrapper around match-set submission.
//
// Threat model: an observer of gossiped intents or of an in-flight match set
// could copy it, or front-run the same opportunity, before the legitimate
// transaction commits. The guard publishes a hiding, binding commitment to
// the match set first; only after the commitment is ordered does the full
// transaction (revealing the nonce) become eligible for validation. An
// adversary who observes only gossiped intents cannot construct a valid
// competing reveal, because no commitment of theirs is ordered ahead of the
// legitimate one.
package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	"github.com/arvo-net/arvo/crypto"
	"github.com/arvo-net/arvo/internal/ordering"
	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/types"
)

// commitment record states.
const (
	stateOrdered  = "ordered"
	stateRevealed = "revealed"
	stateBurned   = "burned"
)

// commitmentRecord is the persisted view of an ordered commitment.
type commitmentRecord struct {
	State        string `cbor:"1,keyasint"`
	ExpiryHeight int64  `cbor:"2,keyasint"`
}

// pendingReveal is a locally assembled transaction waiting for its
// commitment to be ordered.
type pendingReveal struct {
	tx *types.Transaction
}

// Guard tracks ordered commitments and enforces the reveal rules. It serves
// two roles: on the submitting side it wraps local match sets in the
// commit-then-reveal flow, and on the validating side it decides whether a
// revealed transaction corresponds to a previously ordered commitment.
type Guard struct {
	logger    log.Logger
	db        dbm.DB
	orderer   ordering.Service
	submitter crypto.Address
	ttl       int64

	mtx sync.Mutex
	// pending maps commitment hash (string) to the prepared reveal awaiting
	// its commitment's ordering. Local, never persisted: a restart re-runs
	// matching rather than resuming half-open commitments.
	pending map[string]pendingReveal
}

// New returns a Guard persisting commitment records in db. ttl is the number
// of ordered blocks a commitment stays eligible for reveal.
func New(logger log.Logger, db dbm.DB, orderer ordering.Service, submitter crypto.Address, ttl int64) *Guard {
	return &Guard{
		logger:    logger,
		db:        db,
		orderer:   orderer,
		submitter: submitter,
		ttl:       ttl,
		pending:   make(map[string]pendingReveal),
	}
}

//-----------------------------------------------------------------------------
// Submitting side

// CommitMatchSet wraps a locally assembled settlement transaction in a
// commitment: it generates a nonce, fills it into the transaction, publishes
// the commitment to the ordering layer, and retains the reveal until the
// commitment is observed ordered. The transaction's Code must already carry
// the match set's canonical bytes.
func (g *Guard) CommitMatchSet(ctx context.Context, tx *types.Transaction) error {
	nonce := crypto.CRandBytes(types.CommitmentNonceSize)
	tx.Nonce = nonce
	hash := types.RevealHash(tx)

	commitment := &types.Commitment{
		Submitter: g.submitter,
		Hash:      hash,
	}

	g.mtx.Lock()
	g.pending[string(hash)] = pendingReveal{tx: tx}
	g.mtx.Unlock()

	if err := g.orderer.SubmitItem(ctx, ordering.Item{Commitment: commitment}); err != nil {
		g.mtx.Lock()
		delete(g.pending, string(hash))
		g.mtx.Unlock()
		return fmt.Errorf("failed to submit commitment: %w", err)
	}

	g.logger.Debug("committed match set", "hash", log.Hex(hash))
	return nil
}

// OnCommitmentOrdered is invoked for every commitment in the ordered stream.
// It persists the record that makes reveals eligible and, if the commitment
// is ours, releases the retained reveal to the ordering layer.
func (g *Guard) OnCommitmentOrdered(ctx context.Context, c *types.Commitment, height int64) error {
	rec := commitmentRecord{
		State:        stateOrdered,
		ExpiryHeight: height + g.ttl,
	}
	if err := g.setRecord(c.Submitter, c.Hash, rec); err != nil {
		return err
	}

	if c.Submitter != g.submitter {
		return nil
	}

	g.mtx.Lock()
	reveal, ok := g.pending[string(c.Hash)]
	delete(g.pending, string(c.Hash))
	g.mtx.Unlock()

	if !ok {
		// Not necessarily ours from this process lifetime.
		return nil
	}

	if err := g.orderer.SubmitItem(ctx, ordering.Item{Tx: reveal.tx}); err != nil {
		return fmt.Errorf("failed to submit reveal: %w", err)
	}

	g.logger.Debug("submitted reveal", "hash", log.Hex(c.Hash))
	return nil
}

//-----------------------------------------------------------------------------
// Validating side

// CheckReveal decides whether tx is an eligible reveal at the given height:
// its content must hash to a previously ordered, unrevealed, unexpired
// commitment from the same submitter.
//
// A mismatch burns every outstanding commitment from the submitter, so the
// commitment cannot be retried with different content.
func (g *Guard) CheckReveal(tx *types.Transaction, height int64) error {
	hash := types.RevealHash(tx)

	rec, ok, err := g.getRecord(tx.Submitter, hash)
	if err != nil {
		return err
	}

	if !ok {
		if err := g.burnOutstanding(tx.Submitter); err != nil {
			return err
		}
		return types.ErrCommitmentMismatch{Submitter: tx.Submitter}
	}

	switch rec.State {
	case stateRevealed:
		return types.ErrDuplicateReveal{Submitter: tx.Submitter}
	case stateBurned:
		return types.ErrCommitmentMismatch{Submitter: tx.Submitter}
	}

	if height > rec.ExpiryHeight {
		return types.ErrExpired{Kind: "commitment", ID: fmt.Sprintf("%X", hash)}
	}

	return nil
}

// MarkRevealed marks tx's commitment as settled after the transaction
// committed. Duplicate reveals are rejected from then on.
func (g *Guard) MarkRevealed(tx *types.Transaction) error {
	hash := types.RevealHash(tx)

	rec, ok, err := g.getRecord(tx.Submitter, hash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("marking reveal without an ordered commitment (hash %X)", hash)
	}

	rec.State = stateRevealed
	return g.setRecord(tx.Submitter, hash, rec)
}

// PurgeExpired removes commitment records whose reveal window closed before
// the given height.
func (g *Guard) PurgeExpired(height int64) error {
	it, err := dbm.IteratePrefix(g.db, []byte(commitmentKeyPrefix))
	if err != nil {
		return err
	}
	defer it.Close()

	var stale [][]byte
	for ; it.Valid(); it.Next() {
		var rec commitmentRecord
		if err := types.UnmarshalCanonical(it.Value(), &rec); err != nil {
			return fmt.Errorf("corrupt commitment record: %w", err)
		}
		if rec.ExpiryHeight < height {
			stale = append(stale, append([]byte(nil), it.Key()...))
		}
	}
	if err := it.Error(); err != nil {
		return err
	}

	for _, key := range stale {
		if err := g.db.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// burnOutstanding tombstones every ordered-but-unrevealed commitment from
// submitter.
func (g *Guard) burnOutstanding(submitter crypto.Address) error {
	prefix, err := orderedcode.Append(nil, commitmentKeyPrefix, string(submitter.Bytes()))
	if err != nil {
		return err
	}

	it, err := dbm.IteratePrefix(g.db, prefix)
	if err != nil {
		return err
	}
	defer it.Close()

	type kv struct {
		key []byte
		rec commitmentRecord
	}
	var burned []kv

	for ; it.Valid(); it.Next() {
		var rec commitmentRecord
		if err := types.UnmarshalCanonical(it.Value(), &rec); err != nil {
			return fmt.Errorf("corrupt commitment record: %w", err)
		}
		if rec.State == stateOrdered {
			rec.State = stateBurned
			burned = append(burned, kv{key: append([]byte(nil), it.Key()...), rec: rec})
		}
	}
	if err := it.Error(); err != nil {
		return err
	}

	for _, b := range burned {
		bz, err := types.MarshalCanonical(b.rec)
		if err != nil {
			return err
		}
		if err := g.db.Set(b.key, bz); err != nil {
			return err
		}
	}

	if len(burned) > 0 {
		g.logger.Info("burned outstanding commitments after mismatched reveal",
			"submitter", submitter,
			"count", len(burned),
		)
	}
	return nil
}

//-----------------------------------------------------------------------------
// Persistence

const commitmentKeyPrefix = "c"

func commitmentKey(submitter crypto.Address, hash []byte) []byte {
	key, err := orderedcode.Append(nil, commitmentKeyPrefix, string(submitter.Bytes()), string(hash))
	if err != nil {
		panic(err)
	}
	return key
}

func (g *Guard) getRecord(submitter crypto.Address, hash []byte) (commitmentRecord, bool, error) {
	var rec commitmentRecord

	bz, err := g.db.Get(commitmentKey(submitter, hash))
	if err != nil {
		return rec, false, err
	}
	if bz == nil {
		return rec, false, nil
	}
	if err := types.UnmarshalCanonical(bz, &rec); err != nil {
		return rec, false, fmt.Errorf("corrupt commitment record: %w", err)
	}
	return rec, true, nil
}

func (g *Guard) setRecord(submitter crypto.Address, hash []byte, rec commitmentRecord) error {
	bz, err := types.MarshalCanonical(rec)
	if err != nil {
		return err
	}
	return g.db.Set(commitmentKey(submitter, hash), bz)
}
