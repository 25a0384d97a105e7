package relay

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"cachet/internal/domain"
)

// Connection lifecycle states. Every connection walks them in order; any
// authentication failure short-circuits straight to closed.
const (
	stateConnecting int32 = iota
	stateAuthenticating
	stateAuthenticated
	stateClosed
)

const (
	// outboundQueueSize bounds each connection's delivery queue. A full
	// queue means the recipient cannot keep up; the envelope degrades to
	// the offline outcome rather than blocking the sender.
	outboundQueueSize = 256

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	maxFrameBytes = 1 << 20
)

// pingPeriod is a variable so tests can shrink it and drive the keepalive
// path under concurrent traffic.
var pingPeriod = (pongWait * 9) / 10

// Gateway authenticates incoming WebSocket connections, binds each to an
// identity, registers it, and pumps frames both ways. It is the single
// place outbound relay traffic passes through.
type Gateway struct {
	verifier domain.TokenVerifier
	registry *Registry
	router   *Router
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewGateway wires a gateway over the given verifier, registry and router.
func NewGateway(verifier domain.TokenVerifier, registry *Registry, router *Router, log logrus.FieldLogger) *Gateway {
	return &Gateway{
		verifier: verifier,
		registry: registry,
		router:   router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Payloads are end-to-end encrypted; cross-origin browsers
			// gain nothing beyond what any client already can do.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP handles the realtime handshake. The bearer token must be valid
// before the upgrade: a missing or bad credential refuses the handshake
// itself with 401 and the registry is never touched.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Connecting → Authenticating.
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	identity, err := g.verifier.Verify(token)
	if err != nil {
		// Authenticating → Closed. No retry at this layer; the client
		// reconnects with a fresh credential.
		g.log.WithField("remote", r.RemoteAddr).Warn("refusing handshake: bad credential")
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	// Authenticating → Authenticated: bind identity, then register.
	c := &conn{
		identity: identity,
		ws:       ws,
		outbound: make(chan domain.DeliverEvent, outboundQueueSize),
		done:     make(chan struct{}),
		log:      g.log.WithField("user_id", identity.ID),
	}
	c.state.Store(stateAuthenticated)
	c.teardown = func() {
		c.state.Store(stateClosed)
		g.registry.Remove(identity.ID, c)
		close(c.done)
		_ = ws.Close()
		c.log.Info("connection closed")
	}
	g.registry.Register(identity.ID, c)
	c.log.Info("connection authenticated")

	go c.writePump()
	c.readPump(g.router)
}

// bearerToken extracts the handshake credential from the Authorization
// header, falling back to the token query parameter for clients that
// cannot set headers on a WebSocket dial.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// conn is one live authenticated connection. The gateway owns it: one
// reader goroutine, one writer goroutine, and a once-guarded teardown.
type conn struct {
	identity domain.Identity
	ws       *websocket.Conn
	outbound chan domain.DeliverEvent
	done     chan struct{}
	state    atomic.Int32
	log      logrus.FieldLogger

	closeOnce sync.Once
	writeMu   sync.Mutex
	teardown  func()
}

// Identity returns the identity the connection authenticated as.
func (c *conn) Identity() domain.Identity { return c.identity }

// Deliver queues an envelope for the peer without blocking the sender.
// Only an authenticated connection accepts traffic.
func (c *conn) Deliver(ev domain.DeliverEvent) bool {
	if c.state.Load() != stateAuthenticated {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbound <- ev:
		return true
	case <-c.done:
		return false
	default:
		// Saturated queue: treat as unreachable for this envelope.
		c.log.Warn("outbound queue full, dropping envelope")
		return false
	}
}

// Close tears the connection down exactly once, even under concurrent
// disconnect signals.
func (c *conn) Close() {
	c.closeOnce.Do(c.teardown)
}

// readPump consumes frames from the peer until the connection dies. Send
// requests are relayed; the outcome goes back as a receipt frame.
// Malformed requests are dropped with an error frame and the connection
// stays up.
func (c *conn) readPump(router *Router) {
	defer c.Close()

	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f domain.Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("read loop ended")
			}
			return
		}
		if f.Type != domain.FrameSend || f.Send == nil {
			c.writeFrame(domain.Frame{Type: domain.FrameError, Error: domain.ErrValidation.Error()})
			continue
		}

		outcome, err := router.Relay(c.identity, *f.Send)
		if err != nil {
			c.writeFrame(domain.Frame{Type: domain.FrameError, Error: err.Error()})
			continue
		}
		c.writeFrame(domain.Frame{
			Type:    domain.FrameReceipt,
			Receipt: &domain.Receipt{To: f.Send.To, Outcome: outcome.String()},
		})
	}
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with pings. It exits when the connection is torn down.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case ev := <-c.outbound:
			c.writeFrame(domain.Frame{Type: domain.FrameMessage, Message: &ev})
		case <-ticker.C:
			// WriteControl is safe to call concurrently with writeFrame;
			// a plain WriteMessage here would race with the receipt path.
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// writeFrame serializes one frame. Writes are funneled through the writer
// goroutine and the receipt path of readPump; a mutex keeps them from
// interleaving on the socket.
func (c *conn) writeFrame(f domain.Frame) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(f); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.log.WithError(err).Debug("write failed")
	}
}
