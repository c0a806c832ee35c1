package types

import (
	"fmt"

	"github.com/google/orderedcode"

	"github.com/arvo-net/arvo/crypto"
)

// Ledger keys come in two namespaces: account keys, prefixed by the owning
// account's address, and system keys, owned by the protocol itself (intent
// consumption records, commitment tombstones). The namespaces are kept
// disjoint by an orderedcode domain tag, so deriving the touched-account set
// from a diff can never misattribute a system key to an account.
const (
	accountKeyDomain = "a"
	systemKeyDomain  = "s"

	// VPPath is the reserved path under every account that stores the
	// account's validity predicate. Replacing the value under this path is
	// what a predicate upgrade is.
	VPPath = "vp"

	// BalancePathPrefix prefixes per-asset balance paths, e.g. "balance/BTC".
	BalancePathPrefix = "balance/"
)

// AccountKey builds the ledger key for path within the keyspace of addr.
func AccountKey(addr crypto.Address, path string) []byte {
	key, err := orderedcode.Append(nil, accountKeyDomain, string(addr.Bytes()), path)
	if err != nil {
		panic(err)
	}
	return key
}

// VPKey returns the key holding addr's validity predicate.
func VPKey(addr crypto.Address) []byte {
	return AccountKey(addr, VPPath)
}

// BalanceKey returns the key holding addr's balance of asset.
func BalanceKey(addr crypto.Address, asset Asset) []byte {
	return AccountKey(addr, BalancePathPrefix+string(asset))
}

// SystemKey builds a protocol-owned ledger key outside any account keyspace.
func SystemKey(path string) []byte {
	key, err := orderedcode.Append(nil, systemKeyDomain, path)
	if err != nil {
		panic(err)
	}
	return key
}

// IntentStateKey returns the system key recording an intent's cumulative
// consumption. The validator uses it to refuse settling an intent beyond its
// signed quantity.
func IntentStateKey(id IntentID) []byte {
	return SystemKey("intent/" + id.String())
}

// ParseAccountKey extracts the owning address and path from an account key.
// It reports ok=false for system keys and malformed input.
func ParseAccountKey(key []byte) (crypto.Address, string, bool) {
	var domain, rawAddr, path string
	rest, err := orderedcode.Parse(string(key), &domain, &rawAddr, &path)
	if err != nil || rest != "" || domain != accountKeyDomain {
		return crypto.Address{}, "", false
	}

	addr, err := crypto.AddressFromBytes([]byte(rawAddr))
	if err != nil {
		return crypto.Address{}, "", false
	}
	return addr, path, true
}

// AccountsTouched returns the set of account addresses whose keyspace appears
// in the diff, in first-seen order. System keys contribute no accounts.
func AccountsTouched(diff Diff) []crypto.Address {
	seen := make(map[crypto.Address]struct{})
	var addrs []crypto.Address

	for _, w := range diff {
		addr, _, ok := ParseAccountKey(w.Key)
		if !ok {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}

	return addrs
}

// DebugKey renders a ledger key for log output.
func DebugKey(key []byte) string {
	if addr, path, ok := ParseAccountKey(key); ok {
		return fmt.Sprintf("%s/%s", addr, path)
	}
	return fmt.Sprintf("%X", key)
}
