package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/arvo-net/arvo/crypto"
	"github.com/arvo-net/arvo/crypto/ed25519"
	"github.com/arvo-net/arvo/internal/sandbox"
	"github.com/arvo-net/arvo/internal/state"
	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/types"
)

// nopGuard admits every reveal. Guard behavior has its own tests; these
// exercise the validator around it.
type nopGuard struct{}

func (nopGuard) CheckReveal(*types.Transaction, int64) error { return nil }
func (nopGuard) MarkRevealed(*types.Transaction) error       { return nil }

type errGuard struct{ err error }

func (g errGuard) CheckReveal(*types.Transaction, int64) error { return g.err }
func (g errGuard) MarkRevealed(*types.Transaction) error       { return nil }

type testEnv struct {
	store     *state.Store
	validator *Validator
}

func newTestEnv(t *testing.T, guard RevealChecker, opts ...ValidatorOption) *testEnv {
	t.Helper()

	logger := log.NewNopLogger()
	store, err := state.NewStore(logger, dbm.NewMemDB())
	require.NoError(t, err)

	executor := NewExecutor(logger, sandbox.NewRegistry(), 100000)
	return &testEnv{
		store:     store,
		validator: NewValidator(logger, store, executor, guard, opts...),
	}
}

// seed commits writes directly, bypassing predicate evaluation. Backfills
// Old values from committed state so staging succeeds.
func (env *testEnv) seed(t *testing.T, diff types.Diff) {
	t.Helper()

	for i := range diff {
		old, ok, err := env.store.Read(diff[i].Key)
		require.NoError(t, err)
		if ok {
			diff[i].Old = old
		}
	}
	view, err := env.store.Stage(diff)
	require.NoError(t, err)
	require.NoError(t, env.store.Commit(view))
}

func (env *testEnv) balance(t *testing.T, addr crypto.Address, asset types.Asset) uint64 {
	t.Helper()
	bz, _, err := env.store.Read(types.BalanceKey(addr, asset))
	require.NoError(t, err)
	amount, err := types.DecodeBalance(bz)
	require.NoError(t, err)
	return amount
}

type trader struct {
	priv ed25519.PrivKey
	addr crypto.Address
}

func newTrader() trader {
	priv := ed25519.GenPrivKey()
	return trader{priv: priv, addr: priv.PubKey().Address()}
}

func TestValidateVPInstall(t *testing.T) {
	env := newTestEnv(t, nopGuard{})
	owner := newTrader()

	tx := &types.Transaction{
		Submitter: owner.addr,
		Diff: types.Diff{{
			Key: types.VPKey(owner.addr),
			New: sandbox.MakeVP(sandbox.VPAcceptAll, nil),
		}},
	}
	require.NoError(t, tx.AddSignature(owner.priv))

	res, err := env.validator.ValidateTx(context.Background(), tx, 1, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.TxStatusAccepted, res.Status)

	code, ok, err := env.store.Read(types.VPKey(owner.addr))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sandbox.MakeVP(sandbox.VPAcceptAll, nil), code)
}

func TestValidateVPInstallUnsigned(t *testing.T) {
	env := newTestEnv(t, nopGuard{})
	owner := newTrader()

	tx := &types.Transaction{
		Submitter: owner.addr,
		Diff: types.Diff{{
			Key: types.VPKey(owner.addr),
			New: sandbox.MakeVP(sandbox.VPAcceptAll, nil),
		}},
	}

	res, err := env.validator.ValidateTx(context.Background(), tx, 1, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.TxStatusRejected, res.Status)
	assert.IsType(t, types.ErrPredicateRejected{}, res.Err)

	// Rejection leaves no trace.
	_, ok, err := env.store.Read(types.VPKey(owner.addr))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidateDefaultPredicateBlocksTransfers(t *testing.T) {
	env := newTestEnv(t, nopGuard{})
	owner := newTrader()

	env.seed(t, types.Diff{{Key: types.BalanceKey(owner.addr, "BTC"), New: types.EncodeBalance(100)}})

	tx := &types.Transaction{
		Submitter: owner.addr,
		Diff: types.Diff{{
			Key: types.BalanceKey(owner.addr, "BTC"),
			Old: types.EncodeBalance(100),
			New: types.EncodeBalance(50),
		}},
	}
	require.NoError(t, tx.AddSignature(owner.priv))

	res, err := env.validator.ValidateTx(context.Background(), tx, 1, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.TxStatusRejected, res.Status)
	require.EqualValues(t, 100, env.balance(t, owner.addr, "BTC"))
}

func TestValidateTamperedSignature(t *testing.T) {
	env := newTestEnv(t, nopGuard{})
	owner := newTrader()

	tx := &types.Transaction{
		Submitter: owner.addr,
		Diff:      types.Diff{{Key: types.VPKey(owner.addr), New: sandbox.DefaultVP()}},
	}
	require.NoError(t, tx.AddSignature(owner.priv))
	tx.Auth[0].Signature[0] ^= 0xff

	res, err := env.validator.ValidateTx(context.Background(), tx, 1, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.TxStatusRejected, res.Status)
}

func TestValidateCodeOnNonSettlement(t *testing.T) {
	env := newTestEnv(t, nopGuard{})
	owner := newTrader()

	tx := &types.Transaction{
		Submitter: owner.addr,
		Code:      []byte("opaque"),
		Diff:      types.Diff{{Key: types.VPKey(owner.addr), New: sandbox.DefaultVP()}},
	}
	require.NoError(t, tx.AddSignature(owner.priv))

	res, err := env.validator.ValidateTx(context.Background(), tx, 1, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.TxStatusRejected, res.Status)
}

// settlementFixture funds two traders, installs the trading predicate on
// both, and returns a balanced settlement transaction: alice gives 100 BTC
// for 90 XTZ, bob gives 90 of his 95 XTZ for 100 BTC.
type settlementFixture struct {
	alice, bob             trader
	aliceIntent, bobIntent types.Intent
	tx                     *types.Transaction
}

func newSettlementFixture(t *testing.T, env *testEnv) *settlementFixture {
	t.Helper()

	f := &settlementFixture{alice: newTrader(), bob: newTrader()}

	env.seed(t, types.Diff{
		{Key: types.BalanceKey(f.alice.addr, "BTC"), New: types.EncodeBalance(150)},
		{Key: types.BalanceKey(f.bob.addr, "XTZ"), New: types.EncodeBalance(95)},
		{Key: types.VPKey(f.alice.addr), New: sandbox.MakeVP(sandbox.VPIntentAuth, nil)},
		{Key: types.VPKey(f.bob.addr), New: sandbox.MakeVP(sandbox.VPIntentAuth, nil)},
	})

	expiry := time.Now().Add(time.Hour).UTC()
	f.aliceIntent = types.Intent{
		OfferAsset: "BTC", OfferAmount: 100,
		WantAsset: "XTZ", WantMin: 90,
		Expiry: expiry,
	}
	require.NoError(t, f.aliceIntent.Sign(f.alice.priv))

	f.bobIntent = types.Intent{
		OfferAsset: "XTZ", OfferAmount: 95,
		WantAsset: "BTC", WantMin: 100,
		Expiry: expiry,
	}
	require.NoError(t, f.bobIntent.Sign(f.bob.priv))

	ms := &types.MatchSet{Fills: []types.Fill{
		{Intent: f.aliceIntent, Give: 100, Receive: 90},
		{Intent: f.bobIntent, Give: 90, Receive: 100},
	}}
	require.NoError(t, ms.Validate())

	f.tx = &types.Transaction{
		Code: ms.Bytes(),
		Diff: types.Diff{
			{
				Key: types.BalanceKey(f.alice.addr, "BTC"),
				Old: types.EncodeBalance(150), New: types.EncodeBalance(50),
			},
			{
				Key: types.BalanceKey(f.alice.addr, "XTZ"),
				Old: nil, New: types.EncodeBalance(90),
			},
			{
				Key: types.BalanceKey(f.bob.addr, "XTZ"),
				Old: types.EncodeBalance(95), New: types.EncodeBalance(5),
			},
			{
				Key: types.BalanceKey(f.bob.addr, "BTC"),
				Old: nil, New: types.EncodeBalance(100),
			},
			{
				Key: types.IntentStateKey(f.aliceIntent.ID()),
				Old: nil,
				New: types.EncodeIntentConsumption(types.IntentConsumption{Consumed: 100, Total: 100}),
			},
			{
				Key: types.IntentStateKey(f.bobIntent.ID()),
				Old: nil,
				New: types.EncodeIntentConsumption(types.IntentConsumption{Consumed: 90, Total: 95}),
			},
		},
		IntentRefs: []types.IntentRef{
			{ID: f.aliceIntent.ID(), Give: 100},
			{ID: f.bobIntent.ID(), Give: 90},
		},
		Nonce: crypto.CRandBytes(types.CommitmentNonceSize),
	}

	return f
}

func TestValidateSettlement(t *testing.T) {
	env := newTestEnv(t, nopGuard{})
	f := newSettlementFixture(t, env)

	res, err := env.validator.ValidateTx(context.Background(), f.tx, 5, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.TxStatusAccepted, res.Status, "%v", res.Err)

	assert.EqualValues(t, 50, env.balance(t, f.alice.addr, "BTC"))
	assert.EqualValues(t, 90, env.balance(t, f.alice.addr, "XTZ"))
	assert.EqualValues(t, 5, env.balance(t, f.bob.addr, "XTZ"))
	assert.EqualValues(t, 100, env.balance(t, f.bob.addr, "BTC"))

	// The consumption records are committed.
	bz, ok, err := env.store.Read(types.IntentStateKey(f.aliceIntent.ID()))
	require.NoError(t, err)
	require.True(t, ok)
	rec, err := types.DecodeIntentConsumption(bz)
	require.NoError(t, err)
	assert.Equal(t, types.IntentConsumption{Consumed: 100, Total: 100}, rec)
}

func TestValidateSettlementReplayIsStale(t *testing.T) {
	env := newTestEnv(t, nopGuard{})
	f := newSettlementFixture(t, env)

	res, err := env.validator.ValidateTx(context.Background(), f.tx, 5, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.TxStatusAccepted, res.Status)

	// The same settlement again: its recorded pre-values no longer match
	// committed state, so the match is stale, not double-applied.
	res, err = env.validator.ValidateTx(context.Background(), f.tx, 6, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.TxStatusRejected, res.Status)
	assert.IsType(t, types.ErrStaleMatch{}, res.Err)

	assert.EqualValues(t, 50, env.balance(t, f.alice.addr, "BTC"))
}

func TestValidateSettlementExpiredIntent(t *testing.T) {
	env := newTestEnv(t, nopGuard{})
	f := newSettlementFixture(t, env)

	// Block time past the intents' expiry.
	res, err := env.validator.ValidateTx(context.Background(), f.tx, 5, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, types.TxStatusRejected, res.Status)
	assert.IsType(t, types.ErrExpired{}, res.Err)
}

func TestValidateSettlementRefMismatch(t *testing.T) {
	env := newTestEnv(t, nopGuard{})

	t.Run("give disagrees", func(t *testing.T) {
		f := newSettlementFixture(t, env)
		f.tx.IntentRefs[0].Give = 99

		res, err := env.validator.ValidateTx(context.Background(), f.tx, 5, time.Now())
		require.NoError(t, err)
		require.Equal(t, types.TxStatusRejected, res.Status)
	})

	t.Run("missing consumption record", func(t *testing.T) {
		f := newSettlementFixture(t, env)
		f.tx.Diff = f.tx.Diff[:4] // drop both consumption writes

		res, err := env.validator.ValidateTx(context.Background(), f.tx, 5, time.Now())
		require.NoError(t, err)
		require.Equal(t, types.TxStatusRejected, res.Status)
	})

	t.Run("ref count disagrees", func(t *testing.T) {
		f := newSettlementFixture(t, env)
		f.tx.IntentRefs = f.tx.IntentRefs[:1]

		res, err := env.validator.ValidateTx(context.Background(), f.tx, 5, time.Now())
		require.NoError(t, err)
		require.Equal(t, types.TxStatusRejected, res.Status)
	})
}

func TestValidateSettlementGuardRejects(t *testing.T) {
	mismatch := types.ErrCommitmentMismatch{}
	env := newTestEnv(t, errGuard{err: mismatch})
	f := newSettlementFixture(t, env)

	res, err := env.validator.ValidateTx(context.Background(), f.tx, 5, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.TxStatusRejected, res.Status)
	assert.IsType(t, mismatch, res.Err)
}

func TestValidateDeterministicVerdict(t *testing.T) {
	// Two accounts both reject; with short-circuiting off the reported
	// verdict is the lowest-ordered account's, regardless of scheduling.
	env := newTestEnv(t, nopGuard{}, WithShortCircuit(false))

	a, b := newTrader(), newTrader()
	lo, hi := a, b
	if hi.addr.String() < lo.addr.String() {
		lo, hi = hi, lo
	}

	env.seed(t, types.Diff{
		{Key: types.VPKey(lo.addr), New: sandbox.MakeVP(sandbox.VPRejectAll, nil)},
		{Key: types.VPKey(hi.addr), New: sandbox.MakeVP(sandbox.VPRejectAll, nil)},
		{Key: types.BalanceKey(lo.addr, "BTC"), New: types.EncodeBalance(10)},
		{Key: types.BalanceKey(hi.addr, "BTC"), New: types.EncodeBalance(10)},
	})

	tx := &types.Transaction{
		Diff: types.Diff{
			{Key: types.BalanceKey(hi.addr, "BTC"), Old: types.EncodeBalance(10), New: types.EncodeBalance(5)},
			{Key: types.BalanceKey(lo.addr, "BTC"), Old: types.EncodeBalance(10), New: types.EncodeBalance(15)},
		},
	}

	for i := 0; i < 10; i++ {
		res, err := env.validator.ValidateTx(context.Background(), tx, 1, time.Now())
		require.NoError(t, err)
		require.Equal(t, types.TxStatusRejected, res.Status)

		var rejected types.ErrPredicateRejected
		require.ErrorAs(t, res.Err, &rejected)
		require.Equal(t, lo.addr, rejected.Account)
	}
}

func TestValidateEmptyDiff(t *testing.T) {
	env := newTestEnv(t, nopGuard{})

	res, err := env.validator.ValidateTx(context.Background(), &types.Transaction{}, 1, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.TxStatusRejected, res.Status)
}
