package gossip

import (
	"errors"
	"fmt"

	"github.com/arvo-net/arvo/types"
)

// IntentMessage carries one signed intent to a peer. The payload is the
// intent's canonical encoding; the receiver re-derives the identifier and
// verifies the signature before admitting it.
type IntentMessage struct {
	Intent []byte `cbor:"1,keyasint"`
}

func (m *IntentMessage) ValidateBasic() error {
	if len(m.Intent) == 0 {
		return errors.New("empty intent payload")
	}
	return nil
}

// IntentResponse acknowledges receipt of an intent. Reason is set when the
// intent was not admitted, so the sender can stop retransmitting it.
type IntentResponse struct {
	ID       []byte `cbor:"1,keyasint"`
	Accepted bool   `cbor:"2,keyasint"`
	Reason   string `cbor:"3,keyasint,omitempty"`
}

func (m *IntentResponse) ValidateBasic() error {
	if len(m.ID) != types.IntentIDSize {
		return fmt.Errorf("invalid intent id length %d", len(m.ID))
	}
	return nil
}
