// Package signaling implements the spec §6 signaling server and client:
// a gorilla/websocket hub that assigns PeerIds, relays offers/answers/ICE
// candidates between named peers, and arbitrates connection requests
// through an explicit accept step — grounded on
// n0remac-robot-webrtc/websocket/websocket.go's Hub for the router shape
// and original_source/src/signalling.rs's ConnectionRequestMap for the
// requester/requestee arbitration.
package signaling

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/pkg/wire"
)

var log = logging.L("signaling")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const base32Alphabet = "abcdefghijklmnopqrstuvwxyz234567"

// NewPeerID generates a random 8-character base32 peer identifier, short
// enough for a human to read aloud and type into a peer.
func NewPeerID() wire.PeerId {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = base32Alphabet[int(b)%len(base32Alphabet)]
	}
	return wire.PeerId(out)
}

type serverPeer struct {
	id   wire.PeerId
	conn *websocket.Conn
	send chan wire.ServerToPeer
}

type pendingConnection struct {
	requester wire.PeerId
	requestee wire.PeerId
}

// Server is the signaling hub: one goroutine per connected peer for
// reads, one shared send loop per peer for writes, and a connection
// request map guarded by its own mutex.
type Server struct {
	mu    sync.Mutex
	peers map[wire.PeerId]*serverPeer

	connMu      sync.Mutex
	connections map[wire.ConnectionId]*pendingConnection
}

func NewServer() *Server {
	return &Server{
		peers:       make(map[wire.PeerId]*serverPeer),
		connections: make(map[wire.ConnectionId]*pendingConnection),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := &serverPeer{
		id:   NewPeerID(),
		conn: conn,
		send: make(chan wire.ServerToPeer, 64),
	}

	s.mu.Lock()
	s.peers[p.id] = p
	s.mu.Unlock()

	log.Info("peer connected", "peer_id", p.id)

	done := make(chan struct{})
	go s.writePump(p, done)

	p.send <- wire.ServerToPeer{Type: wire.TypeID, PeerId: p.id}

	s.readPump(p)
	close(done)

	s.mu.Lock()
	delete(s.peers, p.id)
	s.mu.Unlock()
	conn.Close()
	log.Info("peer disconnected", "peer_id", p.id)
}

func (s *Server) writePump(p *serverPeer, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-p.send:
			if err := p.conn.WriteJSON(msg); err != nil {
				log.Warn("write failed", "peer_id", p.id, "error", err)
				return
			}
		}
	}
}

func (s *Server) readPump(p *serverPeer) {
	for {
		var msg wire.PeerToServer
		if err := p.conn.ReadJSON(&msg); err != nil {
			return
		}
		s.handle(p, msg)
	}
}

func (s *Server) peer(id wire.PeerId) *serverPeer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[id]
}

func (s *Server) handle(from *serverPeer, msg wire.PeerToServer) {
	switch msg.Type {
	case wire.TypeIceCandidate:
		s.relay(msg.PeerId, wire.ServerToPeer{Type: wire.TypeIceCandidate, PeerId: from.id, Candidate: msg.Candidate})

	case wire.TypeOffer:
		s.relay(msg.PeerId, wire.ServerToPeer{Type: wire.TypeOffer, PeerId: from.id, SDP: msg.SDP})

	case wire.TypeAnswer:
		s.relay(msg.PeerId, wire.ServerToPeer{Type: wire.TypeAnswer, PeerId: from.id, SDP: msg.SDP})

	case wire.TypeConnectToPeer:
		s.handleConnectToPeer(from, msg.PeerId)

	case wire.TypeAcceptConnection:
		s.handleAcceptConnection(from, msg.ConnectionId)

	default:
		log.Warn("unknown message type from peer", "peer_id", from.id, "type", msg.Type)
	}
}

func (s *Server) relay(to wire.PeerId, msg wire.ServerToPeer) {
	target := s.peer(to)
	if target == nil {
		log.Debug("relay target not connected", "peer_id", to)
		return
	}
	select {
	case target.send <- msg:
	default:
		log.Warn("peer send queue full, dropping relay", "peer_id", to)
	}
}

// handleConnectToPeer mirrors signalling.rs's ConnectToPeer arm: it
// records a pending connection keyed by a fresh ConnectionId and asks
// the requestee to accept, rather than connecting the two immediately.
func (s *Server) handleConnectToPeer(requester *serverPeer, requesteeID wire.PeerId) {
	if requesteeID == requester.id {
		log.Debug("ignoring self-connect", "peer_id", requester.id)
		return
	}
	requestee := s.peer(requesteeID)
	if requestee == nil {
		requester.send <- wire.ServerToPeer{Type: wire.TypeError, Error: fmt.Sprintf("no such peer: %s", requesteeID)}
		return
	}

	connID := wire.ConnectionId(uuid.NewString())

	s.connMu.Lock()
	s.connections[connID] = &pendingConnection{requester: requester.id, requestee: requesteeID}
	s.connMu.Unlock()

	requestee.send <- wire.ServerToPeer{Type: wire.TypeConnectionRequest, PeerId: requester.id, ConnectionId: connID}
}

// handleAcceptConnection completes a pending request only when the
// accepting peer is the recorded requestee — the arbitration step
// signalling.rs's AcceptConnection arm performs before notifying the
// requester.
func (s *Server) handleAcceptConnection(acceptor *serverPeer, connID wire.ConnectionId) {
	s.connMu.Lock()
	pending, ok := s.connections[connID]
	if ok && pending.requestee == acceptor.id {
		delete(s.connections, connID)
	}
	s.connMu.Unlock()

	if !ok {
		log.Debug("accept for unknown connection id", "connection_id", connID)
		return
	}
	if pending.requestee != acceptor.id {
		log.Debug("accept from non-requestee ignored", "peer_id", acceptor.id, "connection_id", connID)
		return
	}

	requester := s.peer(pending.requester)
	if requester == nil {
		log.Debug("requester disappeared before accept could be delivered", "peer_id", pending.requester)
		return
	}
	requester.send <- wire.ServerToPeer{Type: wire.TypeConnectionAccepted, PeerId: pending.requestee, ConnectionId: connID}
}
