package sandbox

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/arvo-net/arvo/types"
)

// program is one built-in validity predicate. Programs meter their own steps
// and must be pure functions of (input, params).
type program func(m *meter, in Input, params cbor.RawMessage) (bool, string, error)

// vpCode is the wire form of reference-runtime predicate code: a dispatch
// name plus program-specific parameters.
type vpCode struct {
	Name   string          `cbor:"1,keyasint"`
	Params cbor.RawMessage `cbor:"2,keyasint,omitempty"`
}

// Registry is the deterministic reference Runtime. Predicate code dispatches
// by name into a fixed table of built-in, step-metered programs. A real
// deployment would substitute a WASM executor behind the same Runtime
// interface; the calling contract is identical.
type Registry struct {
	programs map[string]program
}

var _ Runtime = (*Registry)(nil)

// NewRegistry returns a Registry with the built-in program table.
func NewRegistry() *Registry {
	r := &Registry{programs: make(map[string]program)}

	r.programs[VPAcceptAll] = progAcceptAll
	r.programs[VPRejectAll] = progRejectAll
	r.programs[VPOwnerSigned] = progOwnerSigned
	r.programs[VPMaxDebit] = progMaxDebit
	r.programs[VPIntentAuth] = progIntentAuth
	r.programs[VPOwnerUpdate] = progOwnerUpdate
	r.programs[VPConserveAsset] = progConserveAsset

	return r
}

// Built-in program names.
const (
	VPAcceptAll     = "accept-all"
	VPRejectAll     = "reject-all"
	VPOwnerSigned   = "owner-signed"
	VPMaxDebit      = "max-debit"
	VPIntentAuth    = "intent-auth"
	VPOwnerUpdate   = "vp-owner-update"
	VPConserveAsset = "conserve-asset"
)

// MakeVP encodes predicate code for a named built-in program. params may be
// nil for parameterless programs.
func MakeVP(name string, params interface{}) []byte {
	var raw cbor.RawMessage
	if params != nil {
		bz, err := types.MarshalCanonical(params)
		if err != nil {
			panic(err)
		}
		raw = bz
	}

	code, err := types.MarshalCanonical(vpCode{Name: name, Params: raw})
	if err != nil {
		panic(err)
	}
	return code
}

// DefaultVP is the predicate in force for accounts that never installed one:
// it accepts nothing but a predicate installation signed by the owner.
func DefaultVP() []byte {
	return MakeVP(VPOwnerUpdate, nil)
}

// Run implements Runtime.
func (r *Registry) Run(ctx context.Context, code []byte, input Input, quota uint64) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	var vc vpCode
	if err := types.UnmarshalCanonical(code, &vc); err != nil {
		return Output{}, fmt.Errorf("%w: undecodable predicate code", ErrTrapped)
	}

	prog, ok := r.programs[vc.Name]
	if !ok {
		return Output{}, fmt.Errorf("%w: unknown program %q", ErrTrapped, vc.Name)
	}

	m := newMeter(quota)
	accept, reason, err := prog(m, input, vc.Params)
	if err != nil {
		return Output{StepsUsed: m.used}, err
	}

	return Output{Accept: accept, Reason: reason, StepsUsed: m.used}, nil
}

//-----------------------------------------------------------------------------
// Built-in programs

func progAcceptAll(m *meter, _ Input, _ cbor.RawMessage) (bool, string, error) {
	if err := m.charge(1); err != nil {
		return false, "", err
	}
	return true, "", nil
}

type rejectAllParams struct {
	Reason string `cbor:"1,keyasint,omitempty"`
}

func progRejectAll(m *meter, _ Input, params cbor.RawMessage) (bool, string, error) {
	if err := m.charge(1); err != nil {
		return false, "", err
	}

	var p rejectAllParams
	if params != nil {
		if err := types.UnmarshalCanonical(params, &p); err != nil {
			return false, "", fmt.Errorf("%w: bad reject-all params", ErrTrapped)
		}
	}
	if p.Reason == "" {
		p.Reason = "account accepts no transactions"
	}
	return false, p.Reason, nil
}

func progOwnerSigned(m *meter, in Input, _ cbor.RawMessage) (bool, string, error) {
	for _, signer := range in.Signers {
		if err := m.charge(1); err != nil {
			return false, "", err
		}
		if signer == in.Account {
			return true, "", nil
		}
	}
	return false, "transaction not signed by account owner", nil
}

type maxDebitParams struct {
	Asset types.Asset `cbor:"1,keyasint"`
	Max   uint64      `cbor:"2,keyasint"`
}

// progMaxDebit accepts any transaction that decreases the account's balance
// of the given asset by at most Max per transaction.
func progMaxDebit(m *meter, in Input, params cbor.RawMessage) (bool, string, error) {
	var p maxDebitParams
	if err := types.UnmarshalCanonical(params, &p); err != nil {
		return false, "", fmt.Errorf("%w: bad max-debit params", ErrTrapped)
	}

	path := types.BalancePathPrefix + string(p.Asset)
	if err := m.charge(2); err != nil {
		return false, "", err
	}

	pre, err := types.DecodeBalance(in.PreState[path])
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrTrapped, err)
	}
	post := pre
	if bz, ok := in.PostState[path]; ok {
		if post, err = types.DecodeBalance(bz); err != nil {
			return false, "", fmt.Errorf("%w: %v", ErrTrapped, err)
		}
	}

	if post < pre && pre-post > p.Max {
		return false, fmt.Sprintf("balance of %s may not decrease by more than %d per transaction (attempted %d)",
			p.Asset, p.Max, pre-post), nil
	}
	return true, "", nil
}

// progIntentAuth is the trading predicate: every balance movement of the
// account must be covered by a fill whose intent the account owner signed,
// within the intent's signed quantity and minimum-want bounds. It is the
// predicate accounts install to participate in intent matching.
func progIntentAuth(m *meter, in Input, _ cbor.RawMessage) (bool, string, error) {
	if err := m.charge(uint64(4 + len(in.Code)/64)); err != nil {
		return false, "", err
	}

	ms, err := types.MatchSetFromBytes(in.Code)
	if err != nil {
		return false, "transaction carries no decodable match set", nil
	}

	// Aggregate this account's authorized movements from its own fills,
	// verifying each backing intent.
	gives := make(map[types.Asset]uint64)
	receives := make(map[types.Asset]uint64)

	for i := range ms.Fills {
		f := &ms.Fills[i]
		if f.Intent.Owner() != in.Account {
			continue
		}

		// Signature verification dominates the cost of this program.
		if err := m.charge(64); err != nil {
			return false, "", err
		}
		if err := f.Intent.ValidateBasic(); err != nil {
			return false, fmt.Sprintf("fill backed by invalid intent: %v", err), nil
		}
		if f.Give > f.Intent.OfferAmount {
			return false, "fill exceeds the intent's signed quantity", nil
		}
		if f.Receive < f.Intent.MinFillFor(f.Give) {
			return false, "fill leaves the intent below its minimum want", nil
		}

		gives[f.Intent.OfferAsset] += f.Give
		receives[f.Intent.WantAsset] += f.Receive
	}

	// Every balance delta in the account's keyspace must equal the
	// aggregate authorized movement for that asset.
	for path, preBz := range in.PreState {
		if err := m.charge(2); err != nil {
			return false, "", err
		}
		if len(path) <= len(types.BalancePathPrefix) ||
			path[:len(types.BalancePathPrefix)] != types.BalancePathPrefix {
			return false, fmt.Sprintf("unexpected write to %s", path), nil
		}
		asset := types.Asset(path[len(types.BalancePathPrefix):])

		pre, err := types.DecodeBalance(preBz)
		if err != nil {
			return false, "", fmt.Errorf("%w: %v", ErrTrapped, err)
		}
		post, err := types.DecodeBalance(in.PostState[path])
		if err != nil {
			return false, "", fmt.Errorf("%w: %v", ErrTrapped, err)
		}

		switch {
		case post < pre: // debit
			if pre-post != gives[asset] {
				return false, fmt.Sprintf("debit of %d %s not covered by signed intents", pre-post, asset), nil
			}
		case post > pre: // credit
			if post-pre != receives[asset] {
				return false, fmt.Sprintf("credit of %d %s does not match signed intents", post-pre, asset), nil
			}
		}
	}

	return true, "", nil
}

// progOwnerUpdate allows exactly one kind of transaction: replacing the
// account's validity predicate, signed by the owner. It is the default
// predicate for accounts that never installed one.
func progOwnerUpdate(m *meter, in Input, _ cbor.RawMessage) (bool, string, error) {
	if err := m.charge(uint64(1 + len(in.PostState))); err != nil {
		return false, "", err
	}

	for path := range in.PreState {
		if path != types.VPPath {
			return false, fmt.Sprintf("only predicate replacement is permitted, found write to %s", path), nil
		}
	}
	if _, ok := in.PostState[types.VPPath]; !ok {
		return false, "only predicate replacement is permitted", nil
	}

	signed := false
	for _, signer := range in.Signers {
		if signer == in.Account {
			signed = true
			break
		}
	}
	if !signed {
		return false, "predicate replacement not signed by account owner", nil
	}

	return true, "", nil
}

type conserveAssetParams struct {
	Asset types.Asset `cbor:"1,keyasint"`
}

// progConserveAsset accepts only diffs that conserve the given asset's total
// supply across every account the diff touches.
func progConserveAsset(m *meter, in Input, params cbor.RawMessage) (bool, string, error) {
	var p conserveAssetParams
	if err := types.UnmarshalCanonical(params, &p); err != nil {
		return false, "", fmt.Errorf("%w: bad conserve-asset params", ErrTrapped)
	}

	suffix := types.BalancePathPrefix + string(p.Asset)
	var delta int64

	for _, w := range in.Diff {
		if err := m.charge(1); err != nil {
			return false, "", err
		}
		_, path, ok := types.ParseAccountKey(w.Key)
		if !ok || path != suffix {
			continue
		}

		pre, err := types.DecodeBalance(w.Old)
		if err != nil {
			return false, "", fmt.Errorf("%w: %v", ErrTrapped, err)
		}
		post, err := types.DecodeBalance(w.New)
		if err != nil {
			return false, "", fmt.Errorf("%w: %v", ErrTrapped, err)
		}
		delta += int64(post) - int64(pre)
	}

	if delta != 0 {
		return false, fmt.Sprintf("transaction does not conserve %s (delta %d)", p.Asset, delta), nil
	}
	return true, "", nil
}
