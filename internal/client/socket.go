package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cachet/internal/domain"
)

const socketWriteWait = 10 * time.Second

// Socket is the live envelope channel. One goroutine owns all reads; Send
// serialises writes. Inbound envelopes arrive on Events; Send blocks until
// the relay acknowledges the specific envelope with a receipt or an error
// frame.
type Socket struct {
	ws     *websocket.Conn
	events chan domain.DeliverEvent
	acks   chan ack

	sendMu    sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	readErr   error
}

type ack struct {
	receipt domain.Receipt
	err     error
}

// DialSocket opens the relay's WebSocket endpoint with the bearer token.
// base is the HTTP server root; the scheme is rewritten to ws/wss.
func DialSocket(ctx context.Context, base, token string) (*Socket, error) {
	u := strings.Replace(base, "http", "ws", 1) + "/ws"
	header := http.Header{"Authorization": {"Bearer " + token}}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: %w", u, domain.ErrAuthentication)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	s := &Socket{
		ws:     ws,
		events: make(chan domain.DeliverEvent, 16),
		acks:   make(chan ack, 1),
		done:   make(chan struct{}),
	}
	ws.SetPingHandler(func(appData string) error {
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(socketWriteWait))
	})
	go s.readLoop()
	return s, nil
}

// Events delivers inbound envelopes until the socket closes, then the
// channel is closed.
func (s *Socket) Events() <-chan domain.DeliverEvent { return s.events }

// Send relays one envelope and waits for the relay's verdict. The returned
// outcome is "delivered" or "recipient_offline".
func (s *Socket) Send(ctx context.Context, req domain.SendRequest) (string, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	// A Send abandoned on ctx cancellation can leave its late receipt
	// buffered; it belongs to that send, not this one.
	select {
	case <-s.acks:
	default:
	}

	_ = s.ws.SetWriteDeadline(time.Now().Add(socketWriteWait))
	if err := s.ws.WriteJSON(domain.Frame{Type: domain.FrameSend, Send: &req}); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	select {
	case a := <-s.acks:
		if a.err != nil {
			return "", a.err
		}
		return a.receipt.Outcome, nil
	case <-s.done:
		return "", s.closedErr()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close tears the socket down. Safe to call more than once.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
	return nil
}

func (s *Socket) closedErr() error {
	if s.readErr != nil {
		return s.readErr
	}
	return errors.New("socket closed")
}

func (s *Socket) readLoop() {
	defer close(s.events)
	defer s.Close()
	for {
		var f domain.Frame
		if err := s.ws.ReadJSON(&f); err != nil {
			select {
			case <-s.done:
			default:
				s.readErr = err
			}
			return
		}
		switch f.Type {
		case domain.FrameMessage:
			if f.Message == nil {
				continue
			}
			select {
			case s.events <- *f.Message:
			case <-s.done:
				return
			}
		case domain.FrameReceipt:
			if f.Receipt == nil {
				continue
			}
			select {
			case s.acks <- ack{receipt: *f.Receipt}:
			default:
			}
		case domain.FrameError:
			select {
			case s.acks <- ack{err: fmt.Errorf("relay: %s", f.Error)}:
			default:
			}
		}
	}
}
