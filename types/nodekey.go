package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/creachadair/atomicfile"

	"github.com/arvo-net/arvo/crypto"
	"github.com/arvo-net/arvo/crypto/ed25519"
)

// NodeIDByteLength is the length of a crypto.Address. Currently only 20-byte
// addresses are supported.
const NodeIDByteLength = crypto.AddressSize

// NodeID is a hex-encoded crypto.Address. It identifies a gossip peer across
// the network.
type NodeID string

// NewNodeID returns a lowercased (normalized) NodeID, or errors if the ID is
// invalid.
func NewNodeID(nodeID string) (NodeID, error) {
	return NodeID(strings.ToLower(nodeID)), NodeID(nodeID).Validate()
}

// NodeIDFromPubKey creates a node ID from a given PubKey address.
func NodeIDFromPubKey(pubKey crypto.PubKey) NodeID {
	return NodeID(hex.EncodeToString(pubKey.Address().Bytes()))
}

// Bytes converts the node ID to its binary byte representation.
func (id NodeID) Bytes() ([]byte, error) {
	bz, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("invalid node ID encoding: %w", err)
	}
	return bz, nil
}

// Validate validates the NodeID.
func (id NodeID) Validate() error {
	switch {
	case len(id) == 0:
		return fmt.Errorf("empty node ID")

	case len(id) != 2*NodeIDByteLength:
		return fmt.Errorf("invalid node ID length %d, expected %d", len(id), 2*NodeIDByteLength)

	case strings.ToLower(string(id)) != string(id):
		return fmt.Errorf("node ID can only contain lowercased hex digits")
	}

	for _, b := range id {
		if (b < '0' || b > '9') && (b < 'a' || b > 'f') {
			return fmt.Errorf("node ID can only contain hexadecimal digits")
		}
	}

	return nil
}

//------------------------------------------------------------------------------

// NodeKey is the persistent peer key. It contains the node's private key for
// authentication. Node keys double as the identity under which locally
// assembled match sets are committed and revealed.
type NodeKey struct {
	// ID is the node's unique ID, derived from the public key.
	ID NodeID `json:"id"`

	// PrivKey should be used to identify the node on the gossip layer and to
	// sign commitments submitted to the ordering service.
	PrivKey crypto.PrivKey `json:"priv_key"`
}

// PubKey returns the peer's public key.
func (nk NodeKey) PubKey() crypto.PubKey {
	return nk.PrivKey.PubKey()
}

// Address returns the account address derived from the node's public key.
func (nk NodeKey) Address() crypto.Address {
	return nk.PubKey().Address()
}

// GenNodeKey generates a new node key.
func GenNodeKey() NodeKey {
	privKey := ed25519.GenPrivKey()
	return NodeKey{
		ID:      NodeIDFromPubKey(privKey.PubKey()),
		PrivKey: privKey,
	}
}

// nodeKeyJSON is the on-disk representation of a NodeKey. Only ed25519 node
// keys are supported.
type nodeKeyJSON struct {
	ID      NodeID `json:"id"`
	PrivKey string `json:"priv_key"`
}

// LoadOrGenNodeKey attempts to load the NodeKey from the given filePath. If
// the file does not exist, it generates and saves a new NodeKey.
func LoadOrGenNodeKey(filePath string) (NodeKey, error) {
	if _, err := os.Stat(filePath); err == nil {
		return LoadNodeKey(filePath)
	}

	nodeKey := GenNodeKey()
	if err := nodeKey.SaveAs(filePath); err != nil {
		return NodeKey{}, err
	}

	return nodeKey, nil
}

// LoadNodeKey loads NodeKey located in filePath.
func LoadNodeKey(filePath string) (NodeKey, error) {
	jsonBytes, err := os.ReadFile(filePath)
	if err != nil {
		return NodeKey{}, err
	}

	var nkj nodeKeyJSON
	if err := json.Unmarshal(jsonBytes, &nkj); err != nil {
		return NodeKey{}, err
	}

	privBytes, err := hex.DecodeString(nkj.PrivKey)
	if err != nil {
		return NodeKey{}, fmt.Errorf("invalid node key encoding: %w", err)
	}
	if len(privBytes) != ed25519.PrivateKeySize {
		return NodeKey{}, fmt.Errorf("invalid node key length %d", len(privBytes))
	}

	nodeKey := NodeKey{
		ID:      nkj.ID,
		PrivKey: ed25519.PrivKey(privBytes),
	}
	if derived := NodeIDFromPubKey(nodeKey.PubKey()); derived != nodeKey.ID {
		return NodeKey{}, fmt.Errorf("node ID %s does not match key-derived ID %s", nodeKey.ID, derived)
	}

	return nodeKey, nil
}

// SaveAs persists the NodeKey to filePath. The write is atomic: a crash never
// leaves a truncated key file behind.
func (nk NodeKey) SaveAs(filePath string) error {
	jsonBytes, err := json.Marshal(nodeKeyJSON{
		ID:      nk.ID,
		PrivKey: hex.EncodeToString(nk.PrivKey.Bytes()),
	})
	if err != nil {
		return err
	}

	return atomicfile.WriteData(filePath, jsonBytes, 0600)
}
