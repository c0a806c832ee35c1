package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvo-net/arvo/config"
	"github.com/arvo-net/arvo/crypto/ed25519"
	"github.com/arvo-net/arvo/internal/intentpool"
	"github.com/arvo-net/arvo/internal/status"
	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/types"
)

type testServer struct {
	srv     *Server
	pool    *intentpool.IntentPool
	tracker *status.Tracker
	nodeID  types.NodeID
	baseURL string
}

func startTestServer(t *testing.T, poolCfg *config.PoolConfig) *testServer {
	t.Helper()

	logger := log.NewTestingLogger(t)
	if poolCfg == nil {
		poolCfg = config.TestPoolConfig()
	}

	pool := intentpool.NewIntentPool(logger, poolCfg)
	tracker := status.NewTracker(logger)
	nodeKey := types.GenNodeKey()

	srv := NewServer(logger, config.TestRPCConfig(), pool, tracker, nodeKey.ID)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(srv.Wait)
	t.Cleanup(cancel)

	return &testServer{
		srv:     srv,
		pool:    pool,
		tracker: tracker,
		nodeID:  nodeKey.ID,
		baseURL: "http://" + srv.Addr().String(),
	}
}

func testRPCIntent(t *testing.T, priv ed25519.PrivKey, nonce uint64) types.Intent {
	t.Helper()

	in := types.Intent{
		OfferAsset:  "BTC",
		OfferAmount: 100,
		WantAsset:   "XTZ",
		WantMin:     90,
		Expiry:      time.Now().Add(time.Hour),
		Timestamp:   time.Now().UTC(),
		Nonce:       nonce,
	}
	require.NoError(t, in.Sign(priv))
	return in
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()

	bz, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(bz))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServerSubmitIntent(t *testing.T) {
	ts := startTestServer(t, nil)

	priv := ed25519.GenPrivKey()
	intent := testRPCIntent(t, priv, 1)
	payload := base64.StdEncoding.EncodeToString(intent.Bytes())

	resp := postJSON(t, ts.baseURL+"/v1/intents", submitIntentRequest{Payload: payload})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submitted submitIntentResponse
	decodeJSON(t, resp, &submitted)
	assert.Equal(t, intent.ID().String(), submitted.ID)
	assert.Equal(t, 1, ts.pool.Size())

	// Resubmission of a known intent is idempotent.
	resp = postJSON(t, ts.baseURL+"/v1/intents", submitIntentRequest{Payload: payload})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ts.pool.Size())
}

func TestServerSubmitIntentRejects(t *testing.T) {
	ts := startTestServer(t, nil)

	t.Run("malformed json", func(t *testing.T) {
		resp, err := http.Post(ts.baseURL+"/v1/intents", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad base64", func(t *testing.T) {
		resp := postJSON(t, ts.baseURL+"/v1/intents", submitIntentRequest{Payload: "!!not-base64!!"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("not an intent", func(t *testing.T) {
		payload := base64.StdEncoding.EncodeToString([]byte("not cbor"))
		resp := postJSON(t, ts.baseURL+"/v1/intents", submitIntentRequest{Payload: payload})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid signature", func(t *testing.T) {
		intent := testRPCIntent(t, ed25519.GenPrivKey(), 2)
		intent.OfferAmount = 200
		payload := base64.StdEncoding.EncodeToString(intent.Bytes())
		resp := postJSON(t, ts.baseURL+"/v1/intents", submitIntentRequest{Payload: payload})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("get not allowed", func(t *testing.T) {
		resp, err := http.Get(ts.baseURL + "/v1/intents")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestServerSubmitIntentPoolFull(t *testing.T) {
	cfg := config.TestPoolConfig()
	cfg.Size = 1
	ts := startTestServer(t, cfg)

	priv := ed25519.GenPrivKey()

	first := testRPCIntent(t, priv, 1)
	resp := postJSON(t, ts.baseURL+"/v1/intents", submitIntentRequest{
		Payload: base64.StdEncoding.EncodeToString(first.Bytes()),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	second := testRPCIntent(t, priv, 2)
	resp = postJSON(t, ts.baseURL+"/v1/intents", submitIntentRequest{
		Payload: base64.StdEncoding.EncodeToString(second.Bytes()),
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServerIntentStatus(t *testing.T) {
	ts := startTestServer(t, nil)

	intent := testRPCIntent(t, ed25519.GenPrivKey(), 1)
	ts.tracker.Update(types.IntentStatus{
		ID:        intent.ID(),
		State:     types.IntentStatePartiallyFilled,
		Remaining: 60,
	})

	resp, err := http.Get(ts.baseURL + "/v1/intents/" + intent.ID().String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got intentStatusResponse
	decodeJSON(t, resp, &got)

	want := intentStatusResponse{
		ID:        intent.ID().String(),
		State:     "partiallyFilled",
		Remaining: 60,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("intent status mismatch (-want +got):\n%s", diff)
	}

	t.Run("unknown intent", func(t *testing.T) {
		other := testRPCIntent(t, ed25519.GenPrivKey(), 2)
		resp, err := http.Get(ts.baseURL + "/v1/intents/" + other.ID().String())
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("malformed id", func(t *testing.T) {
		resp, err := http.Get(ts.baseURL + "/v1/intents/zzzz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServerCancelIntent(t *testing.T) {
	ts := startTestServer(t, nil)

	owner := ed25519.GenPrivKey()
	intent := testRPCIntent(t, owner, 1)
	require.NoError(t, ts.pool.Insert(intent, intentpool.IntentInfo{}))

	cancelURL := fmt.Sprintf("%s/v1/intents/%s/cancel", ts.baseURL, intent.ID())

	signedCancel := func(priv ed25519.PrivKey) cancelIntentRequest {
		cancel := types.CancelIntent{ID: intent.ID()}
		require.NoError(t, cancel.Sign(priv))
		return cancelIntentRequest{
			PubKeyType: cancel.PubKeyType,
			PubKey:     base64.StdEncoding.EncodeToString(cancel.PubKey),
			Signature:  base64.StdEncoding.EncodeToString(cancel.Signature),
		}
	}

	t.Run("stranger rejected", func(t *testing.T) {
		resp := postJSON(t, cancelURL, signedCancel(ed25519.GenPrivKey()))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, 1, ts.pool.Size())
	})

	t.Run("forged signature rejected", func(t *testing.T) {
		req := signedCancel(owner)
		req.Signature = base64.StdEncoding.EncodeToString(make([]byte, 64))
		resp := postJSON(t, cancelURL, req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("owner cancels", func(t *testing.T) {
		resp := postJSON(t, cancelURL, signedCancel(owner))
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Zero(t, ts.pool.Size())
	})

	t.Run("already gone", func(t *testing.T) {
		resp := postJSON(t, cancelURL, signedCancel(owner))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServerNodeStatus(t *testing.T) {
	ts := startTestServer(t, nil)

	intent := testRPCIntent(t, ed25519.GenPrivKey(), 1)
	require.NoError(t, ts.pool.Insert(intent, intentpool.IntentInfo{}))

	resp, err := http.Get(ts.baseURL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got nodeStatusResponse
	decodeJSON(t, resp, &got)

	want := nodeStatusResponse{
		NodeID:        string(ts.nodeID),
		PoolSize:      1,
		PoolSizeBytes: int64(len(intent.Bytes())),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("node status mismatch (-want +got):\n%s", diff)
	}
}

func TestServerWebsocketStream(t *testing.T) {
	ts := startTestServer(t, nil)

	wsURL := "ws://" + ts.srv.Addr().String() + "/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	intent := testRPCIntent(t, ed25519.GenPrivKey(), 1)

	// The subscription is registered during the upgrade handshake, but give
	// the handler a moment to enter its event loop before publishing.
	time.Sleep(50 * time.Millisecond)
	ts.tracker.Update(types.IntentStatus{
		ID:        intent.ID(),
		State:     types.IntentStateFilled,
		Remaining: 0,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev intentEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, intent.ID().String(), ev.ID)
	assert.Equal(t, "filled", ev.State)
	assert.Zero(t, ev.Remaining)
}

func TestServerWebsocketFilter(t *testing.T) {
	ts := startTestServer(t, nil)

	watched := testRPCIntent(t, ed25519.GenPrivKey(), 1)
	other := testRPCIntent(t, ed25519.GenPrivKey(), 2)

	wsURL := "ws://" + ts.srv.Addr().String() + "/v1/ws?intent=" + watched.ID().String()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	ts.tracker.Update(types.IntentStatus{ID: other.ID(), State: types.IntentStatePending, Remaining: 100})
	ts.tracker.Update(types.IntentStatus{ID: watched.ID(), State: types.IntentStateCancelled})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev intentEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, watched.ID().String(), ev.ID)
	assert.Equal(t, "cancelled", ev.State)
}

func TestServerWebsocketBadFilter(t *testing.T) {
	ts := startTestServer(t, nil)

	resp, err := http.Get(ts.baseURL + "/v1/ws?intent=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSplitListenAddress(t *testing.T) {
	proto, addr, err := splitListenAddress("tcp://127.0.0.1:26670")
	require.NoError(t, err)
	assert.Equal(t, "tcp", proto)
	assert.Equal(t, "127.0.0.1:26670", addr)

	_, _, err = splitListenAddress("127.0.0.1:26670")
	require.Error(t, err)
}
