package rpc

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arvo-net/arvo/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced by the cors middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type intentEvent struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	Remaining uint64 `json:"remaining"`
}

// handleWebsocket streams intent state transitions: GET /v1/ws. An optional
// ?intent=<id> query restricts the stream to one intent.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	var filter *types.IntentID
	if q := r.URL.Query().Get("intent"); q != "" {
		id, err := types.IntentIDFromString(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter = &id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	sub := s.tracker.Subscribe()
	defer s.tracker.Unsubscribe(sub.ID)

	// Reader goroutine: drain control frames and detect disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-sub.Done():
			return
		case st := <-sub.C:
			if filter != nil && st.ID != *filter {
				continue
			}

			if timeout := s.cfg.EventWriteTimeout; timeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(timeout))
			}
			err := conn.WriteJSON(intentEvent{
				ID:        st.ID.String(),
				State:     st.State.String(),
				Remaining: st.Remaining,
			})
			if err != nil {
				s.logger.Debug("dropping websocket subscriber", "err", err)
				return
			}
		}
	}
}
