package rpc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/arvo-net/arvo/internal/gossip"
	"github.com/arvo-net/arvo/internal/intentpool"
	"github.com/arvo-net/arvo/types"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/intents", s.handleIntents)
	mux.HandleFunc("/v1/intents/", s.handleIntentByID)
	mux.HandleFunc("/v1/status", s.handleNodeStatus)
	mux.HandleFunc("/v1/ws", s.handleWebsocket)
}

type submitIntentRequest struct {
	// Payload is the base64 canonical encoding of a signed intent.
	Payload string `json:"payload"`
}

type submitIntentResponse struct {
	ID string `json:"id"`
}

type intentStatusResponse struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	Remaining uint64 `json:"remaining"`
}

type cancelIntentRequest struct {
	PubKeyType string `json:"pub_key_type"`
	PubKey     string `json:"pub_key"`
	Signature  string `json:"signature"`
}

type nodeStatusResponse struct {
	NodeID        string `json:"node_id"`
	PoolSize      int    `json:"pool_size"`
	PoolSizeBytes int64  `json:"pool_size_bytes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleIntents accepts new intents: POST /v1/intents.
func (s *Server) handleIntents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	var req submitIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	bz, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	intent, err := types.IntentFromBytes(bz)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.pool.Insert(intent, intentpool.IntentInfo{SenderID: gossip.UnknownPeerID})
	switch {
	case err == nil, errors.Is(err, types.ErrIntentInCache):
		// Resubmission of a known intent is idempotent.
		writeJSON(w, http.StatusOK, submitIntentResponse{ID: intent.ID().String()})

	default:
		var full types.ErrPoolIsFull
		if errors.As(err, &full) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
	}
}

// handleIntentByID serves GET /v1/intents/{id} for status queries and
// POST /v1/intents/{id}/cancel for owner-signed cancellation.
func (s *Server) handleIntentByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/intents/")
	idStr, action := rest, ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		idStr, action = rest[:i], rest[i+1:]
	}

	id, err := types.IntentIDFromString(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleIntentStatus(w, id)

	case action == "cancel" && r.Method == http.MethodPost:
		s.handleCancelIntent(w, r, id)

	default:
		writeError(w, http.StatusNotFound, errors.New("unknown intent endpoint"))
	}
}

func (s *Server) handleIntentStatus(w http.ResponseWriter, id types.IntentID) {
	st, ok := s.tracker.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, types.ErrIntentNotFound)
		return
	}

	writeJSON(w, http.StatusOK, intentStatusResponse{
		ID:        st.ID.String(),
		State:     st.State.String(),
		Remaining: st.Remaining,
	})
}

func (s *Server) handleCancelIntent(w http.ResponseWriter, r *http.Request, id types.IntentID) {
	var req cancelIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pubKey, err := base64.StdEncoding.DecodeString(req.PubKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cancel := types.CancelIntent{
		ID:         id,
		PubKeyType: req.PubKeyType,
		PubKey:     pubKey,
		Signature:  sig,
	}
	if err := cancel.ValidateBasic(); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	if err := s.pool.Cancel(id, cancel.Owner()); err != nil {
		if errors.Is(err, types.ErrIntentNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNodeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	writeJSON(w, http.StatusOK, nodeStatusResponse{
		NodeID:        string(s.nodeID),
		PoolSize:      s.pool.Size(),
		PoolSizeBytes: s.pool.SizeBytes(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
