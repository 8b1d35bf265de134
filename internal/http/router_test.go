package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talktalk/server/internal/auth"
	"github.com/talktalk/server/internal/http/handlers"
	"github.com/talktalk/server/internal/model"
	"github.com/talktalk/server/internal/relay"
	"github.com/talktalk/server/internal/store"
	"github.com/talktalk/server/internal/ws"
)

const readTimeout = 3 * time.Second

// newTestServer wires the full stack with in-memory stores and dev-mode OTP.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	identities := store.NewIdentityStore()
	history := store.NewMemoryHistory()
	registry := relay.NewRegistry()

	metricsRegistry := prometheus.NewRegistry()
	metrics := relay.NewMetrics(metricsRegistry)

	presence := relay.NewPresence(identities, registry, metrics)
	messageRelay := relay.NewMessageRelay(history, registry, metrics)
	signallingRelay := relay.NewSignallingRelay(registry, metrics)
	gateway := ws.NewGateway(identities, registry, presence, messageRelay, signallingRelay, metrics)

	otpProvider := auth.NewOtpStub("test-otp-salt", true)
	jwtService := auth.NewJWTService("test-jwt-secret-at-least-32-characters-long")

	otpHandler := handlers.NewOtpHandler(otpProvider, jwtService, identities, presence, true)
	directoryHandler := handlers.NewDirectoryHandler(identities, history)

	router := NewRouter(otpHandler, directoryHandler, gateway, jwtService, identities, metricsRegistry)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

// verifyIdentity runs the OTP flow for the id and returns the verify response.
func verifyIdentity(t *testing.T, baseURL, id, name string) map[string]json.RawMessage {
	t.Helper()

	resp := postJSON(t, baseURL+"/request-otp", map[string]string{"id": id})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, baseURL+"/verify-otp", map[string]string{"id": id, "code": auth.DevOTP, "name": name})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var out map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func dialWS(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one matches, skipping interleaved broadcasts.
func readUntil(t *testing.T, conn *websocket.Conn, match func(relay.Frame) bool) relay.Frame {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f relay.Frame
		require.NoError(t, conn.ReadJSON(&f), "expected frame before deadline")
		if match(f) {
			return f
		}
	}
}

func authConnection(t *testing.T, conn *websocket.Conn, id string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(relay.Frame{Type: relay.TypeAuth, IdentityID: id}))
	f := readUntil(t, conn, func(f relay.Frame) bool { return f.Type == relay.TypeAuthOK })
	require.NotNil(t, f.Identity)
	require.Equal(t, id, f.Identity.ID)
}

func TestEndToEndMessageFlow(t *testing.T) {
	server := newTestServer(t)

	verifyIdentity(t, server.URL, "+1000", "alice")
	verifyIdentity(t, server.URL, "+2000", "bob")

	sender := dialWS(t, server.URL)
	recipient := dialWS(t, server.URL)
	authConnection(t, sender, "+1000")
	authConnection(t, recipient, "+2000")

	require.NoError(t, sender.WriteJSON(relay.Frame{
		Type: relay.TypeMessage,
		From: "+1000",
		To:   "+2000",
		Kind: model.KindText,
		Text: "hi",
	}))

	delivered := readUntil(t, recipient, func(f relay.Frame) bool { return f.Type == relay.TypeMessage })
	assert.Equal(t, "hi", delivered.Text)
	assert.Equal(t, "+1000", delivered.From)
	assert.NotZero(t, delivered.Time, "time must be set by the server")
	assert.False(t, delivered.Self)

	echo := readUntil(t, sender, func(f relay.Frame) bool { return f.Type == relay.TypeMessage })
	assert.True(t, echo.Self, "sender receives a self-echo")
	assert.Equal(t, delivered.Time, echo.Time)

	resp, err := http.Get(server.URL + "/history/+1000/+2000")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var convo []model.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&convo))
	require.Len(t, convo, 1)
	assert.Equal(t, "hi", convo[0].Text)
	assert.Equal(t, delivered.Time, convo[0].Time)
}

func TestAuthRejectedForUnverifiedIdentity(t *testing.T) {
	server := newTestServer(t)
	verifyIdentity(t, server.URL, "+1000", "alice")

	conn := dialWS(t, server.URL)
	require.NoError(t, conn.WriteJSON(relay.Frame{Type: relay.TypeAuth, IdentityID: "+9999"}))

	f := readUntil(t, conn, func(f relay.Frame) bool { return f.Type == relay.TypeError })
	assert.Equal(t, "not verified", f.Reason)

	// The connection stays open; a retry with a verified identity succeeds.
	authConnection(t, conn, "+1000")
}

func TestRosterBroadcastReachesAllLiveConnections(t *testing.T) {
	server := newTestServer(t)
	verifyIdentity(t, server.URL, "+1000", "alice")
	verifyIdentity(t, server.URL, "+2000", "bob")

	a := dialWS(t, server.URL)
	b := dialWS(t, server.URL)
	authConnection(t, a, "+1000")
	authConnection(t, b, "+2000")

	// Verifying a new identity elsewhere pushes a fresh roster to everyone.
	verifyIdentity(t, server.URL, "+3000", "carol")

	hasCarol := func(f relay.Frame) bool {
		if f.Type != relay.TypeUsersList {
			return false
		}
		for _, u := range f.Users {
			if u.ID == "+3000" {
				return true
			}
		}
		return false
	}
	readUntil(t, a, hasCarol)
	readUntil(t, b, hasCarol)
}

func TestSignallingRelayedWithoutPersistence(t *testing.T) {
	server := newTestServer(t)
	verifyIdentity(t, server.URL, "+1000", "alice")
	verifyIdentity(t, server.URL, "+2000", "bob")

	caller := dialWS(t, server.URL)
	callee := dialWS(t, server.URL)
	authConnection(t, caller, "+1000")
	authConnection(t, callee, "+2000")

	require.NoError(t, caller.WriteJSON(relay.Frame{
		Type: relay.TypeWebRTCOffer,
		From: "+1000",
		To:   "+2000",
		SDP:  json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	}))

	offer := readUntil(t, callee, func(f relay.Frame) bool { return f.Type == relay.TypeWebRTCOffer })
	assert.Equal(t, "+1000", offer.From)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(offer.SDP))

	// Signalling leaves no trace in history.
	resp, err := http.Get(server.URL + "/history/+1000/+2000")
	require.NoError(t, err)
	defer resp.Body.Close()
	var convo []model.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&convo))
	assert.Empty(t, convo)
}

func TestIdentitiesEndpoint(t *testing.T) {
	server := newTestServer(t)
	verifyIdentity(t, server.URL, "+1000", "alice")
	verifyIdentity(t, server.URL, "+2000", "bob")

	resp, err := http.Get(server.URL + "/identities")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var roster []model.Identity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&roster))
	require.Len(t, roster, 2)
	assert.Equal(t, "+1000", roster[0].ID)
	assert.Equal(t, "alice", roster[0].DisplayName)
	assert.True(t, roster[0].Verified)
}

func TestMeEndpoint(t *testing.T) {
	server := newTestServer(t)
	out := verifyIdentity(t, server.URL, "+1000", "alice")

	var token string
	require.NoError(t, json.Unmarshal(out["access_token"], &token))
	require.NotEmpty(t, token)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var identity model.Identity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&identity))
	assert.Equal(t, "+1000", identity.ID)

	// Without a token the route is rejected.
	resp2, err := http.Get(server.URL + "/me")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestRequestOTPValidation(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/request-otp", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/verify-otp", map[string]string{"id": "+1000", "code": "000000"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestMalformedFrameIsDropped(t *testing.T) {
	server := newTestServer(t)
	verifyIdentity(t, server.URL, "+1000", "alice")

	conn := dialWS(t, server.URL)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	// The connection survives a malformed frame.
	authConnection(t, conn, "+1000")
}

func TestUnknownFrameKindIsIgnored(t *testing.T) {
	server := newTestServer(t)
	verifyIdentity(t, server.URL, "+1000", "alice")

	conn := dialWS(t, server.URL)
	authConnection(t, conn, "+1000")

	require.NoError(t, conn.WriteJSON(relay.Frame{Type: "future-kind", From: "+1000"}))

	// Still responsive afterwards: a profile update comes back as a roster.
	require.NoError(t, conn.WriteJSON(relay.Frame{
		Type:       relay.TypeUpdateProfile,
		IdentityID: "+1000",
		Name:       "alice2",
	}))
	f := readUntil(t, conn, func(f relay.Frame) bool {
		if f.Type != relay.TypeUsersList {
			return false
		}
		for _, u := range f.Users {
			if u.ID == "+1000" && u.DisplayName == "alice2" {
				return true
			}
		}
		return false
	})
	require.Equal(t, relay.TypeUsersList, f.Type)
}

func TestSupersededConnectionDoesNotUnbindNewOne(t *testing.T) {
	server := newTestServer(t)
	verifyIdentity(t, server.URL, "+1000", "alice")
	verifyIdentity(t, server.URL, "+2000", "bob")

	old := dialWS(t, server.URL)
	authConnection(t, old, "+1000")

	// A second authenticated connection for the same identity supersedes
	// the first in the registry.
	replacement := dialWS(t, server.URL)
	authConnection(t, replacement, "+1000")

	// Closing the superseded connection must not erase the new binding.
	old.Close()
	time.Sleep(100 * time.Millisecond)

	sender := dialWS(t, server.URL)
	authConnection(t, sender, "+2000")
	require.NoError(t, sender.WriteJSON(relay.Frame{
		Type: relay.TypeMessage,
		From: "+2000",
		To:   "+1000",
		Kind: model.KindText,
		Text: "still here",
	}))

	delivered := readUntil(t, replacement, func(f relay.Frame) bool { return f.Type == relay.TypeMessage })
	assert.Equal(t, "still here", delivered.Text)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHistoryOfflineRecipient(t *testing.T) {
	server := newTestServer(t)
	verifyIdentity(t, server.URL, "+1000", "alice")
	verifyIdentity(t, server.URL, "+2000", "bob")

	sender := dialWS(t, server.URL)
	authConnection(t, sender, "+1000")

	// Recipient never connects; messages still land in history, in order.
	for i := 1; i <= 2; i++ {
		require.NoError(t, sender.WriteJSON(relay.Frame{
			Type: relay.TypeMessage,
			From: "+1000",
			To:   "+2000",
			Kind: model.KindText,
			Text: fmt.Sprintf("m%d", i),
		}))
		// The echo confirms the append before the next send.
		readUntil(t, sender, func(f relay.Frame) bool { return f.Type == relay.TypeMessage && f.Self })
	}

	resp, err := http.Get(server.URL + "/history/+2000/+1000")
	require.NoError(t, err)
	defer resp.Body.Close()

	var convo []model.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&convo))
	require.Len(t, convo, 2)
	assert.Equal(t, "m1", convo[0].Text)
	assert.Equal(t, "m2", convo[1].Text)
	assert.LessOrEqual(t, convo[0].Time, convo[1].Time)
}
