package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachet/internal/domain"
)

// stubVerifier resolves fixed tokens to fixed identities.
type stubVerifier struct {
	identities map[string]domain.Identity
}

func (v stubVerifier) Verify(token string) (domain.Identity, error) {
	id, ok := v.identities[token]
	if !ok {
		return domain.Identity{}, domain.ErrAuthentication
	}
	return id, nil
}

type gatewayHarness struct {
	registry *Registry
	server   *httptest.Server
}

func newGatewayHarness(t *testing.T) *gatewayHarness {
	t.Helper()
	registry := NewRegistry(testLogger())
	router := NewRouter(registry, nil, testLogger())
	gw := NewGateway(stubVerifier{identities: map[string]domain.Identity{
		"alice-token": {ID: "alice", DisplayName: "Alice"},
		"bob-token":   {ID: "bob", DisplayName: "Bob"},
	}}, registry, router, testLogger())

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return &gatewayHarness{registry: registry, server: srv}
}

func (h *gatewayHarness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http")
}

func (h *gatewayHarness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, _, err := websocket.DefaultDialer.Dial(h.wsURL(), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func waitRegistered(t *testing.T, reg *Registry, id domain.UserID) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := reg.Lookup(id)
		return ok
	}, 2*time.Second, 5*time.Millisecond, "connection for %s never registered", id)
}

func readFrame(t *testing.T, ws *websocket.Conn) domain.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f domain.Frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestGateway_RefusesHandshakeWithoutToken(t *testing.T) {
	h := newGatewayHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, h.registry.Len(), "refused handshake must not touch the registry")
}

func TestGateway_RefusesHandshakeWithBadToken(t *testing.T) {
	h := newGatewayHarness(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer expired-or-forged")
	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, h.registry.Len())
}

func TestGateway_TokenViaQueryParam(t *testing.T) {
	h := newGatewayHarness(t)

	ws, _, err := websocket.DefaultDialer.Dial(h.wsURL()+"?token=alice-token", nil)
	require.NoError(t, err)
	defer ws.Close()

	waitRegistered(t, h.registry, "alice")
}

func TestGateway_EndToEndRelay(t *testing.T) {
	h := newGatewayHarness(t)

	alice := h.dial(t, "alice-token")
	bob := h.dial(t, "bob-token")
	waitRegistered(t, h.registry, "alice")
	waitRegistered(t, h.registry, "bob")

	req := validRequest("bob")
	require.NoError(t, alice.WriteJSON(domain.Frame{Type: domain.FrameSend, Send: &req}))

	receipt := readFrame(t, alice)
	require.Equal(t, domain.FrameReceipt, receipt.Type)
	require.NotNil(t, receipt.Receipt)
	assert.Equal(t, "delivered", receipt.Receipt.Outcome)
	assert.Equal(t, domain.UserID("bob"), receipt.Receipt.To)

	msg := readFrame(t, bob)
	require.Equal(t, domain.FrameMessage, msg.Type)
	require.NotNil(t, msg.Message)
	assert.Equal(t, domain.UserID("alice"), msg.Message.From, "from must be the authenticated sender")
	assert.Equal(t, req.Ciphertext, msg.Message.Ciphertext)
	assert.False(t, msg.Message.Timestamp.IsZero(), "timestamp is server-assigned")
}

func TestGateway_SendToOfflineRecipient(t *testing.T) {
	h := newGatewayHarness(t)

	alice := h.dial(t, "alice-token")
	waitRegistered(t, h.registry, "alice")

	req := validRequest("carol")
	require.NoError(t, alice.WriteJSON(domain.Frame{Type: domain.FrameSend, Send: &req}))

	receipt := readFrame(t, alice)
	require.Equal(t, domain.FrameReceipt, receipt.Type)
	assert.Equal(t, "recipient_offline", receipt.Receipt.Outcome)
}

func TestGateway_MalformedSendDroppedConnectionSurvives(t *testing.T) {
	h := newGatewayHarness(t)

	alice := h.dial(t, "alice-token")
	bob := h.dial(t, "bob-token")
	waitRegistered(t, h.registry, "alice")
	waitRegistered(t, h.registry, "bob")

	bad := validRequest("bob")
	bad.Ciphertext = nil
	require.NoError(t, alice.WriteJSON(domain.Frame{Type: domain.FrameSend, Send: &bad}))

	errFrame := readFrame(t, alice)
	assert.Equal(t, domain.FrameError, errFrame.Type)
	assert.NotEmpty(t, errFrame.Error)

	// The connection is still usable afterwards.
	good := validRequest("bob")
	require.NoError(t, alice.WriteJSON(domain.Frame{Type: domain.FrameSend, Send: &good}))
	receipt := readFrame(t, alice)
	assert.Equal(t, domain.FrameReceipt, receipt.Type)

	msg := readFrame(t, bob)
	require.Equal(t, domain.FrameMessage, msg.Type)
	assert.Equal(t, good.Ciphertext, msg.Message.Ciphertext)
}

func TestGateway_DisconnectCleansRegistryOnce(t *testing.T) {
	h := newGatewayHarness(t)

	alice := h.dial(t, "alice-token")
	waitRegistered(t, h.registry, "alice")

	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool {
		_, ok := h.registry.Lookup("alice")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.registry.Len())
}

func TestGateway_ReconnectSupersedesAndRoutesToNewest(t *testing.T) {
	h := newGatewayHarness(t)

	old := h.dial(t, "bob-token")
	waitRegistered(t, h.registry, "bob")
	first, _ := h.registry.Lookup("bob")

	fresh := h.dial(t, "bob-token")
	require.Eventually(t, func() bool {
		cur, ok := h.registry.Lookup("bob")
		return ok && cur != first
	}, 2*time.Second, 5*time.Millisecond, "new connection must supersede the old one")

	alice := h.dial(t, "alice-token")
	waitRegistered(t, h.registry, "alice")

	req := validRequest("bob")
	require.NoError(t, alice.WriteJSON(domain.Frame{Type: domain.FrameSend, Send: &req}))

	msg := readFrame(t, fresh)
	require.Equal(t, domain.FrameMessage, msg.Type)

	// The superseded socket sees a close, not the message.
	_ = old.SetReadDeadline(time.Now().Add(time.Second))
	var stale domain.Frame
	err := old.ReadJSON(&stale)
	assert.Error(t, err)
}

// TestGateway_PingsDoNotCorruptConcurrentWrites floods the receipt path
// while the keepalive ticker fires every couple of milliseconds. Pings must
// go out as control frames; a data-frame ping would interleave with the
// receipts written by the read loop and kill the connection.
func TestGateway_PingsDoNotCorruptConcurrentWrites(t *testing.T) {
	old := pingPeriod
	pingPeriod = 2 * time.Millisecond
	defer func() { pingPeriod = old }()

	h := newGatewayHarness(t)

	alice := h.dial(t, "alice-token")
	bob := h.dial(t, "bob-token")
	waitRegistered(t, h.registry, "alice")
	waitRegistered(t, h.registry, "bob")

	const sends = 200
	go func() {
		for i := 0; i < sends; i++ {
			req := validRequest("bob")
			if err := alice.WriteJSON(domain.Frame{Type: domain.FrameSend, Send: &req}); err != nil {
				return
			}
		}
	}()

	for i := 0; i < sends; i++ {
		receipt := readFrame(t, alice)
		require.Equal(t, domain.FrameReceipt, receipt.Type)
		require.Equal(t, "delivered", receipt.Receipt.Outcome)
	}
	for i := 0; i < sends; i++ {
		msg := readFrame(t, bob)
		require.Equal(t, domain.FrameMessage, msg.Type)
	}
}
