package signaling

import (
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/pkg/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFactor   = 0.3
)

// Client is the reconnect-with-backoff websocket client side of the
// signaling protocol, adapted from the teacher's internal/websocket.Client
// (same backoff constants) with its command/result framing replaced by
// the spec §6 tagged-union wire envelope.
type Client struct {
	serverURL string

	connMu sync.RWMutex
	conn   *websocket.Conn

	peerID   wire.PeerId
	peerIDMu sync.RWMutex

	sendChan  chan wire.PeerToServer
	recvChan  chan wire.ServerToPeer
	done      chan struct{}
	stopOnce  sync.Once
	isRunning bool
	runningMu sync.RWMutex
}

func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		sendChan:  make(chan wire.PeerToServer, 64),
		recvChan:  make(chan wire.ServerToPeer, 64),
		done:      make(chan struct{}),
	}
}

// Messages returns the channel of messages relayed from the server.
func (c *Client) Messages() <-chan wire.ServerToPeer {
	return c.recvChan
}

func (c *Client) PeerID() wire.PeerId {
	c.peerIDMu.RLock()
	defer c.peerIDMu.RUnlock()
	return c.peerID
}

func (c *Client) Start() {
	c.runningMu.Lock()
	if c.isRunning {
		c.runningMu.Unlock()
		return
	}
	c.isRunning = true
	c.runningMu.Unlock()

	go c.reconnectLoop()
}

func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.runningMu.Lock()
		c.isRunning = false
		c.runningMu.Unlock()

		close(c.done)

		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		log.Info("signaling client stopped")
	})
}

func (c *Client) buildWSURL() (string, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	if u.Path == "" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

func (c *Client) connect() error {
	wsURL, err := c.buildWSURL()
	if err != nil {
		return fmt.Errorf("signaling: building ws url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("signaling: dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	log.Info("signaling client connected", "server", c.serverURL)
	return nil
}

func (c *Client) reconnectLoop() {
	backoff := initialBackoff

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.connect(); err != nil {
			log.Warn("signaling connection failed", "error", err)

			jitter := time.Duration(float64(backoff) * jitterFactor * (rand.Float64()*2 - 1))
			sleep := backoff + jitter
			if sleep < 0 {
				sleep = backoff
			}

			select {
			case <-c.done:
				return
			case <-time.After(sleep):
			}

			backoff = time.Duration(float64(backoff) * backoffFactor)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff

		pumpDone := make(chan struct{})
		go c.writePump(pumpDone)
		c.readPump()
		close(pumpDone)

		c.runningMu.RLock()
		running := c.isRunning
		c.runningMu.RUnlock()
		if !running {
			return
		}
	}
}

func (c *Client) readPump() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg wire.ServerToPeer
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("signaling read error", "error", err)
			}
			return
		}

		if msg.Type == wire.TypeID {
			c.peerIDMu.Lock()
			c.peerID = msg.PeerId
			c.peerIDMu.Unlock()
		}

		select {
		case c.recvChan <- msg:
		default:
			log.Warn("dropping signaling message, consumer too slow", "type", msg.Type)
		}
	}
}

func (c *Client) writePump(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.done:
			return
		case msg := <-c.sendChan:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("signaling write error", "error", err)
				return
			}
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) send(msg wire.PeerToServer) {
	select {
	case c.sendChan <- msg:
	default:
		log.Warn("signaling send queue full, dropping message", "type", msg.Type)
	}
}

func (c *Client) SendOffer(to wire.PeerId, sdp string) {
	c.send(wire.PeerToServer{Type: wire.TypeOffer, PeerId: to, SDP: sdp})
}

func (c *Client) SendAnswer(to wire.PeerId, sdp string) {
	c.send(wire.PeerToServer{Type: wire.TypeAnswer, PeerId: to, SDP: sdp})
}

func (c *Client) SendIceCandidate(to wire.PeerId, candidate string) {
	c.send(wire.PeerToServer{Type: wire.TypeIceCandidate, PeerId: to, Candidate: candidate})
}

func (c *Client) ConnectToPeer(peerID wire.PeerId) {
	c.send(wire.PeerToServer{Type: wire.TypeConnectToPeer, PeerId: peerID})
}

func (c *Client) AcceptConnection(connID wire.ConnectionId) {
	c.send(wire.PeerToServer{Type: wire.TypeAcceptConnection, ConnectionId: connID})
}
