package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachet/internal/auth"
	"cachet/internal/crypto"
	"cachet/internal/domain"
	"cachet/internal/store"
	"cachet/internal/vault"
)

type harness struct {
	srv       *httptest.Server
	authority *auth.Authority
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	db, err := store.OpenBolt(filepath.Join(t.TempDir(), "cachet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	authority := auth.NewAuthority([]byte("test-secret"), time.Hour)
	s := New(db, db, authority, log)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, authority: authority}
}

func (h *harness) postJSON(t *testing.T, path string, body, out any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(h.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (h *harness) getJSON(t *testing.T, path, token string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// registerUser creates an account with real locked key material and returns
// the auth response plus the private key for the test to decrypt with.
func (h *harness) registerUser(t *testing.T, username, password string) (AuthResponse, []byte) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair(crypto.DefaultAlgorithm)
	require.NoError(t, err)

	salt, err := vault.NewSalt()
	require.NoError(t, err)
	blob, err := vault.Lock(crypto.EncodePrivateKeyPEM(priv), password, salt)
	require.NoError(t, err)

	var out AuthResponse
	resp := h.postJSON(t, "/api/auth/register", RegisterRequest{
		Username:       username,
		DisplayName:    username,
		Password:       password,
		PublicKey:      pub,
		Algorithm:      crypto.DefaultAlgorithm,
		PrivateKeyBlob: blob,
	}, &out)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, out.Token)
	require.NotEmpty(t, out.Identity.ID)
	return out, priv
}

func (h *harness) dialWS(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	header := http.Header{"Authorization": {"Bearer " + token}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) domain.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f domain.Frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t)

	resp := h.postJSON(t, "/api/auth/register", RegisterRequest{Username: "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.postJSON(t, "/api/auth/register", RegisterRequest{
		Username: "x", Password: "pw",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "key material is required")
}

func TestRegister_DuplicateUsername(t *testing.T) {
	h := newHarness(t)
	h.registerUser(t, "alice", "pw-alice-1")

	_, pub, err := crypto.GenerateKeyPair(crypto.DefaultAlgorithm)
	require.NoError(t, err)
	salt, _ := vault.NewSalt()
	blob, _ := vault.Lock([]byte("pem"), "pw", salt)

	resp := h.postJSON(t, "/api/auth/register", RegisterRequest{
		Username: "alice", Password: "other", PublicKey: pub,
		Algorithm: crypto.DefaultAlgorithm, PrivateKeyBlob: blob,
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	reg, _ := h.registerUser(t, "alice", "pw-alice-1")

	var out LoginResponse
	resp := h.postJSON(t, "/api/auth/login", LoginRequest{Username: "alice", Password: "pw-alice-1"}, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, reg.Identity.ID, out.Identity.ID)
	assert.NotEmpty(t, out.Token)
	assert.False(t, out.PrivateKeyBlob.Empty(), "login returns the locked blob for local unlock")

	resp = h.postJSON(t, "/api/auth/login", LoginRequest{Username: "alice", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.postJSON(t, "/api/auth/login", LoginRequest{Username: "ghost", Password: "pw"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "unknown user and bad password look alike")
}

func TestPublicKeyDirectory(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.registerUser(t, "alice", "pw-alice-1")
	bob, _ := h.registerUser(t, "bob", "pw-bob-1")

	var rec domain.PublicKeyRecord
	resp := h.getJSON(t, "/api/identity/"+string(bob.Identity.ID)+"/publicKey", alice.Token, &rec)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, rec.PublicKey)
	assert.Equal(t, crypto.DefaultAlgorithm, rec.Algorithm)

	resp = h.getJSON(t, "/api/identity/nobody/publicKey", alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.getJSON(t, "/api/identity/"+string(bob.Identity.ID)+"/publicKey", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPrivateKeyBlob_OnlyOwn(t *testing.T) {
	h := newHarness(t)
	alice, alicePriv := h.registerUser(t, "alice", "pw-alice-1")

	var blob BlobResponse
	resp := h.getJSON(t, "/api/me/privateKeyBlob", alice.Token, &blob)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", blob.Username)

	// The blob unlocks locally with the account password and nothing else.
	pemBytes, err := vault.Unlock(domain.KeyBlob{
		Ciphertext: blob.Ciphertext, IV: blob.IV, Salt: blob.Salt,
	}, "pw-alice-1")
	require.NoError(t, err)
	priv, err := crypto.DecodePrivateKeyPEM(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, alicePriv, priv)

	_, err = vault.Unlock(domain.KeyBlob{
		Ciphertext: blob.Ciphertext, IV: blob.IV, Salt: blob.Salt,
	}, "not-the-password")
	assert.ErrorIs(t, err, vault.ErrKeyUnlock)
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.registerUser(t, "alice", "pw-1")
	h.registerUser(t, "bob", "pw-2")

	var out []UserSummary
	resp := h.getJSON(t, "/api/users/search?q=bo", alice.Token, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out, 1)
	assert.Equal(t, "bob", out[0].Username)
}

// TestEndToEndScenario is the full path: two users register, connect, one
// seals and sends, the relay stamps attribution, the other receives,
// unlocks the vault, and opens the envelope.
func TestEndToEndScenario(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.registerUser(t, "alice", "pw-alice-1")
	bob, _ := h.registerUser(t, "bob", "pw-bob-1")

	aliceWS := h.dialWS(t, alice.Token)
	bobWS := h.dialWS(t, bob.Token)

	// Alice looks up Bob's key and seals locally.
	var rec domain.PublicKeyRecord
	resp := h.getJSON(t, "/api/identity/"+string(bob.Identity.ID)+"/publicKey", alice.Token, &rec)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sealed, err := crypto.Seal(rec.Algorithm, rec.PublicKey, []byte("hi"))
	require.NoError(t, err)

	req := domain.SendRequest{
		To:         bob.Identity.ID,
		Ciphertext: sealed.Ciphertext,
		Algorithm:  sealed.Algorithm,
		Metadata:   domain.EnvelopeMetadata{IV: sealed.IV, WrappedKey: sealed.WrappedKey},
	}
	require.NoError(t, aliceWS.WriteJSON(domain.Frame{Type: domain.FrameSend, Send: &req}))

	receipt := readFrame(t, aliceWS)
	require.Equal(t, domain.FrameReceipt, receipt.Type)
	assert.Equal(t, "delivered", receipt.Receipt.Outcome)

	msg := readFrame(t, bobWS)
	require.Equal(t, domain.FrameMessage, msg.Type)
	require.NotNil(t, msg.Message)
	assert.Equal(t, alice.Identity.ID, msg.Message.From)

	// Bob unlocks his private key via the two-phase flow against the real
	// blob endpoint, then opens the envelope.
	var blobResp BlobResponse
	h.getJSON(t, "/api/me/privateKeyBlob", bob.Token, &blobResp)
	blob := domain.KeyBlob{Ciphertext: blobResp.Ciphertext, IV: blobResp.IV, Salt: blobResp.Salt}

	pemBytes, err := vault.Unlock(blob, "pw-bob-1")
	require.NoError(t, err)
	bobPriv, err := crypto.DecodePrivateKeyPEM(pemBytes)
	require.NoError(t, err)

	plaintext, err := crypto.Open(bobPriv, crypto.Sealed{
		Algorithm:  msg.Message.Algorithm,
		Ciphertext: msg.Message.Ciphertext,
		IV:         msg.Message.Metadata.IV,
		WrappedKey: msg.Message.Metadata.WrappedKey,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), plaintext)

	// The envelope also landed in persisted history, from either side.
	var envs []domain.Envelope
	h.getJSON(t, fmt.Sprintf("/api/messages?with=%s", alice.Identity.ID), bob.Token, &envs)
	require.Len(t, envs, 1)
	assert.Equal(t, alice.Identity.ID, envs[0].From)
}

func TestHistory_RequiresAuthAndPeer(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.registerUser(t, "alice", "pw-1")

	resp := h.getJSON(t, "/api/messages?with=someone", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.getJSON(t, "/api/messages", alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var envs []domain.Envelope
	resp = h.getJSON(t, "/api/messages?with=nobody", alice.Token, &envs)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, envs)
}

func TestWS_ExpiredTokenRefusedAtHandshake(t *testing.T) {
	h := newHarness(t)
	h.registerUser(t, "alice", "pw-1")

	// A token from a different authority is a forged/expired credential as
	// far as this server is concerned.
	other := auth.NewAuthority([]byte("other-secret"), time.Hour)
	forged, err := other.Issue(domain.Identity{ID: "alice"})
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	header := http.Header{"Authorization": {"Bearer " + forged}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
