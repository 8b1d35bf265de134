package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/talktalk/server/internal/relay"
	"github.com/talktalk/server/internal/store"
)

// Gateway is the per-connection entry point: it authenticates a connection
// against the identity store, registers it, demultiplexes inbound frames to
// the relays, and deregisters on disconnect.
//
// Per connection the state machine is Unauthenticated -> Authenticated ->
// Closed. Frames from one connection are handled strictly in arrival order
// by its read loop; different connections run concurrently.
type Gateway struct {
	identities *store.IdentityStore
	registry   *relay.Registry
	presence   *relay.Presence
	messages   *relay.MessageRelay
	signalling *relay.SignallingRelay
	metrics    *relay.Metrics
	upgrader   websocket.Upgrader
}

// NewGateway creates a session gateway
func NewGateway(
	identities *store.IdentityStore,
	registry *relay.Registry,
	presence *relay.Presence,
	messages *relay.MessageRelay,
	signalling *relay.SignallingRelay,
	metrics *relay.Metrics,
) *Gateway {
	return &Gateway{
		identities: identities,
		registry:   registry,
		presence:   presence,
		messages:   messages,
		signalling: signalling,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the request and serves the connection until it closes.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	client := newClient(conn)
	go client.writePump()
	g.readLoop(client)
}

func (g *Gateway) readLoop(client *Client) {
	defer g.teardown(client)

	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws read error conn=%s identity=%s err=%v", client.connID, client.identityID, err)
			}
			return
		}

		var f relay.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			// Structurally invalid frames are dropped; the connection
			// stays open.
			continue
		}
		g.handleFrame(client, f)
	}
}

func (g *Gateway) handleFrame(client *Client, f relay.Frame) {
	if client.identityID == "" {
		// Unauthenticated: only auth frames are acted on.
		if f.Type == relay.TypeAuth {
			g.handleAuth(client, f)
		}
		return
	}

	switch f.Type {
	case relay.TypeAddContact:
		if g.identities.AddContact(f.From, f.To) {
			g.presence.BroadcastRoster()
		}
	case relay.TypeMessage:
		if err := g.messages.Relay(context.Background(), client, f); err != nil {
			log.Printf("message relay failed conn=%s from=%s to=%s: %v", client.connID, f.From, f.To, err)
		}
	case relay.TypeWebRTCOffer, relay.TypeWebRTCAnswer, relay.TypeWebRTCIce:
		g.signalling.Relay(f)
	case relay.TypeUpdateProfile:
		if g.identities.UpdateProfile(f.IdentityID, f.Name, f.Avatar) {
			g.presence.BroadcastRoster()
		}
	default:
		// Unknown frame kinds are a forward-compatible no-op.
	}
}

// handleAuth processes the auth frame. A rejected auth leaves the
// connection open in the unauthenticated state; the client decides whether
// to retry.
func (g *Gateway) handleAuth(client *Client, f relay.Frame) {
	identity, ok := g.identities.Get(f.IdentityID)
	if !ok || !identity.Verified {
		_ = client.Send(relay.Frame{Type: relay.TypeError, Reason: "not verified"})
		return
	}

	client.identityID = identity.ID
	g.registry.Bind(identity.ID, client)
	g.metrics.ConnectionsActive.Set(float64(len(g.registry.LiveIdentities())))
	_ = client.Send(relay.Frame{Type: relay.TypeAuthOK, Identity: &identity})
	g.presence.BroadcastRoster()
}

// teardown is the single Closed transition for a connection. The unbind is
// identity-guarded: if this connection was superseded by a newer one, the
// registry entry is left alone and no broadcast happens.
func (g *Gateway) teardown(client *Client) {
	client.close()
	if client.identityID == "" {
		return
	}
	if g.registry.Unbind(client.identityID, client) {
		g.metrics.ConnectionsActive.Set(float64(len(g.registry.LiveIdentities())))
		g.presence.BroadcastRoster()
	}
}
