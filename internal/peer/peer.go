// Package peer ties signaling, rtcpeer, and the media pipeline together:
// Peer owns this process's identity and its set of RemotePeers; each
// RemotePeer owns one RTC connection and the task set that drives it.
package peer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/deskstream/deskstream/internal/config"
	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/internal/signaling"
	"github.com/deskstream/deskstream/pkg/wire"
)

var log = logging.L("peer")

// AppEventKind enumerates the outbound events a Peer surfaces to a UI
// host (spec §3's "app-event outbound channel").
type AppEventKind int

const (
	AppEventConnectionRequest AppEventKind = iota
	AppEventConnectionAccepted
	AppEventRemoteConnected
	AppEventRemoteDisconnected
	AppEventError
)

type AppEvent struct {
	Kind         AppEventKind
	PeerId       wire.PeerId
	ConnectionId wire.ConnectionId
	Err          error
}

// Peer owns this process's identity, a set of remote peers keyed by
// their identifier, a map from pending connection-request id to
// requester identifier, a signaling-control handle, and an app-event
// outbound channel -- exactly spec §3's "Peer state".
type Peer struct {
	ourID  wire.PeerId
	client *signaling.Client
	cfg    *config.Config

	mu               sync.Mutex
	remotes          map[wire.PeerId]*RemotePeer
	pendingRequester map[wire.ConnectionId]wire.PeerId

	appEvents chan AppEvent

	newRemotePeer func(ctx context.Context, ourID, theirID wire.PeerId, client *signaling.Client, controlling bool, cfg *config.Config) (*RemotePeer, error)
}

// New connects to the signaling server and blocks until the server
// assigns this process a PeerId, mirroring UIPeer::new's documented
// contract in original_source/src/ui.rs. cfg is the single
// environment-derived record read once at startup (spec §6); it is
// threaded through to every RemotePeer this Peer later starts.
func New(ctx context.Context, signalServer string, cfg *config.Config) (*Peer, error) {
	client := signaling.NewClient(signalServer)
	client.Start()

	var ourID wire.PeerId
	for ourID == "" {
		select {
		case <-ctx.Done():
			client.Stop()
			return nil, fmt.Errorf("peer: %w", ctx.Err())
		case msg := <-client.Messages():
			if msg.Type == wire.TypeID {
				ourID = msg.PeerId
			} else {
				log.Warn("discarding event received before id", "type", msg.Type)
			}
		}
	}

	p := &Peer{
		ourID:            ourID,
		client:           client,
		cfg:              cfg,
		remotes:          make(map[wire.PeerId]*RemotePeer),
		pendingRequester: make(map[wire.ConnectionId]wire.PeerId),
		appEvents:        make(chan AppEvent, 16),
		newRemotePeer:    newRemotePeer,
	}
	go p.dispatchLoop(ctx)
	return p, nil
}

func (p *Peer) OurID() wire.PeerId { return p.ourID }

func (p *Peer) AppEvents() <-chan AppEvent { return p.appEvents }

func (p *Peer) emit(ev AppEvent) {
	select {
	case p.appEvents <- ev:
	default:
		log.Warn("dropping app event, consumer too slow", "kind", ev.Kind)
	}
}

// dispatchLoop routes signaling messages to the right RemotePeer's
// control channel, or handles server-arbitrated connection events.
func (p *Peer) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.client.Messages():
			if !ok {
				return
			}
			p.handle(ctx, msg)
		}
	}
}

func (p *Peer) handle(ctx context.Context, msg wire.ServerToPeer) {
	switch msg.Type {
	case wire.TypeConnectionRequest:
		p.mu.Lock()
		p.pendingRequester[msg.ConnectionId] = msg.PeerId
		p.mu.Unlock()
		p.emit(AppEvent{Kind: AppEventConnectionRequest, PeerId: msg.PeerId, ConnectionId: msg.ConnectionId})

	case wire.TypeConnectionAccepted:
		// We sent the original ConnectToPeer request, so we are controlling.
		if _, err := p.ensureRemote(ctx, msg.PeerId, true); err != nil {
			log.Warn("failed to start remote peer after connection accepted", "peer_id", msg.PeerId, "error", err)
			p.emit(AppEvent{Kind: AppEventError, PeerId: msg.PeerId, Err: err})
			return
		}
		p.emit(AppEvent{Kind: AppEventConnectionAccepted, PeerId: msg.PeerId, ConnectionId: msg.ConnectionId})

	case wire.TypeOffer:
		p.forward(msg.PeerId, func(r *RemotePeer) { r.control <- PeerControl{Kind: ControlOffer, SDP: msg.SDP} })

	case wire.TypeAnswer:
		p.forward(msg.PeerId, func(r *RemotePeer) { r.control <- PeerControl{Kind: ControlAnswer, SDP: msg.SDP} })

	case wire.TypeIceCandidate:
		p.forward(msg.PeerId, func(r *RemotePeer) { r.control <- PeerControl{Kind: ControlIceCandidate, Candidate: msg.Candidate} })

	case wire.TypeError:
		log.Warn("signaling server reported an error", "error", msg.Error)
	}
}

func (p *Peer) forward(peerID wire.PeerId, fn func(*RemotePeer)) {
	p.mu.Lock()
	r := p.remotes[peerID]
	p.mu.Unlock()
	if r == nil {
		log.Debug("discarding message for unknown remote peer", "peer_id", peerID)
		return
	}
	fn(r)
}

// ConnectToPeer requests a connection to another peer by id (the
// `connect <peer_id>` stdin command).
func (p *Peer) ConnectToPeer(peerID wire.PeerId) {
	p.client.ConnectToPeer(peerID)
}

// AcceptConnection accepts a pending inbound connection request (the
// `accept [<connection_id>]` stdin command) and, once accepted, starts
// the RemotePeer as the non-controlling side.
func (p *Peer) AcceptConnection(ctx context.Context, connID wire.ConnectionId) error {
	p.mu.Lock()
	requester, ok := p.pendingRequester[connID]
	if ok {
		delete(p.pendingRequester, connID)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("peer: unknown connection id %s", connID)
	}

	if _, err := p.ensureRemote(ctx, requester, false); err != nil {
		return err
	}
	p.client.AcceptConnection(connID)
	return nil
}

func (p *Peer) ensureRemote(ctx context.Context, theirID wire.PeerId, controlling bool) (*RemotePeer, error) {
	p.mu.Lock()
	if r, ok := p.remotes[theirID]; ok {
		p.mu.Unlock()
		return r, nil
	}
	p.mu.Unlock()

	r, err := p.newRemotePeer(ctx, p.ourID, theirID, p.client, controlling, p.cfg)
	if err != nil {
		return nil, fmt.Errorf("peer: starting remote peer %s: %w", theirID, err)
	}

	p.mu.Lock()
	p.remotes[theirID] = r
	p.mu.Unlock()

	go func() {
		_ = r.group.Wait()
		p.mu.Lock()
		delete(p.remotes, theirID)
		p.mu.Unlock()
		p.emit(AppEvent{Kind: AppEventRemoteDisconnected, PeerId: theirID})
	}()

	p.emit(AppEvent{Kind: AppEventRemoteConnected, PeerId: theirID})
	return r, nil
}

// Die tears down every remote peer (the `die` stdin command): it
// cancels each RemotePeer's task-group context, which propagates
// cancellation to every task in the group (spec §3's "dropping the
// remote peer cancels its tasks").
func (p *Peer) Die() {
	p.mu.Lock()
	remotes := make([]*RemotePeer, 0, len(p.remotes))
	for _, r := range p.remotes {
		remotes = append(remotes, r)
	}
	p.mu.Unlock()

	for _, r := range remotes {
		r.Close()
	}
}

// Close tears down the peer entirely (the `quit` stdin command).
func (p *Peer) Close() error {
	p.Die()
	p.client.Stop()
	return nil
}

// ControlKind enumerates what RemotePeer.control carries.
type ControlKind int

const (
	ControlOffer ControlKind = iota
	ControlAnswer
	ControlIceCandidate
	ControlDie
)

type PeerControl struct {
	Kind      ControlKind
	SDP       string
	Candidate string
}

// RemotePeer owns one RTC connection's control channel and the
// errgroup.Group task set driving it. Closing it cancels the group's
// context, which is the idiomatic Go analogue of Rust's
// tokio::task::JoinSet first-error-propagation teardown spec §3 and §5
// describe.
type RemotePeer struct {
	theirID wire.PeerId
	control chan PeerControl
	cancel  context.CancelFunc
	group   *errgroup.Group
	closeOnce sync.Once
}

func (r *RemotePeer) Close() {
	r.closeOnce.Do(func() {
		select {
		case r.control <- PeerControl{Kind: ControlDie}:
		default:
		}
		r.cancel()
	})
}
