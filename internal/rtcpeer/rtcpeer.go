// Package rtcpeer wraps pion/webrtc/v4 behind a small capability set:
// open a data channel, produce an offer, apply a remote description, and
// forward connection-state changes and trickled ICE candidates. It keeps
// the teacher's candidate-queue-before-remote-description pattern from
// the n0remac SFU, generalized to a 1:1 peer topology instead of a room.
package rtcpeer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/internal/transport"
)

var log = logging.L("rtcpeer")

// State mirrors spec's RTC connection state machine.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventStateChange EventKind = iota
	EventChannel
)

// Event is pushed to PeerConnection.Events() whenever the connection
// state changes or a remotely-opened data channel arrives.
type Event struct {
	Kind    EventKind
	State   State
	Label   string
	Channel *transport.DataChannel
}

var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// PeerConnection wraps one pion PeerConnection plus ICE-candidate queueing
// and a channel of higher-level Events.
type PeerConnection struct {
	pc *webrtc.PeerConnection

	high, low uint64

	mu        sync.Mutex
	candQueue []webrtc.ICECandidateInit
	remoteSet bool

	events chan Event
}

const maxQueuedCandidates = 64

// New opens a pion PeerConnection. highWaterMark/lowWaterMark govern the
// buffered-amount backpressure applied to every data channel this
// connection creates or accepts; zero means transport's own defaults.
func New(ctx context.Context, highWaterMark, lowWaterMark uint64) (*PeerConnection, error) {
	api := webrtc.NewAPI()
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: defaultICEServers})
	if err != nil {
		return nil, fmt.Errorf("rtcpeer: NewPeerConnection: %w", err)
	}

	if highWaterMark == 0 {
		highWaterMark = transport.DefaultHighWaterMark
	}
	if lowWaterMark == 0 {
		lowWaterMark = transport.DefaultLowWaterMark
	}

	p := &PeerConnection{
		pc:     pc,
		high:   highWaterMark,
		low:    lowWaterMark,
		events: make(chan Event, 16),
	}
	p.wireEvents()
	return p, nil
}

func (p *PeerConnection) wireEvents() {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		var st State
		switch s {
		case webrtc.PeerConnectionStateNew:
			st = StateNew
		case webrtc.PeerConnectionStateConnecting:
			st = StateConnecting
		case webrtc.PeerConnectionStateConnected:
			st = StateConnected
		case webrtc.PeerConnectionStateDisconnected:
			st = StateDisconnected
		case webrtc.PeerConnectionStateFailed:
			st = StateFailed
		case webrtc.PeerConnectionStateClosed:
			st = StateClosed
		default:
			return
		}
		log.Debug("connection state changed", "state", st)
		p.emit(Event{Kind: EventStateChange, State: st})
	})

	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		wrapped := transport.Wrap(dc, p.high, p.low)
		p.emit(Event{Kind: EventChannel, Label: dc.Label(), Channel: wrapped})
	})
}

func (p *PeerConnection) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		log.Warn("dropping rtcpeer event, consumer too slow", "kind", ev.Kind)
	}
}

func (p *PeerConnection) Events() <-chan Event {
	return p.events
}

// Channel creates a locally-initiated data channel. Video channels are
// unordered with no retransmits (spec §4.6); other channels use pion's
// reliable/ordered defaults.
func (p *PeerConnection) Channel(label string, opts *webrtc.DataChannelInit) (*transport.DataChannel, error) {
	dc, err := p.pc.CreateDataChannel(label, opts)
	if err != nil {
		return nil, fmt.Errorf("rtcpeer: CreateDataChannel(%s): %w", label, err)
	}
	return transport.Wrap(dc, p.high, p.low), nil
}

// VideoChannelInit returns the DataChannelInit spec §4.6 requires for the
// video channel: unordered, zero retransmits (best-effort, deadline-bound
// delivery rather than reliable in-order delivery).
func VideoChannelInit() *webrtc.DataChannelInit {
	ordered := false
	zero := uint16(0)
	return &webrtc.DataChannelInit{Ordered: &ordered, MaxRetransmits: &zero}
}

func (p *PeerConnection) Offer(ctx context.Context) (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("rtcpeer: CreateOffer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("rtcpeer: SetLocalDescription: %w", err)
	}
	return offer, nil
}

func (p *PeerConnection) Answer(ctx context.Context) (webrtc.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("rtcpeer: CreateAnswer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("rtcpeer: SetLocalDescription: %w", err)
	}
	return answer, nil
}

// SetRemoteDescription installs the remote offer/answer and replays any
// ICE candidates that arrived before it — the candQueue/remoteSet pattern
// grounded on the n0remac SFU's sfuPeer.
func (p *PeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("rtcpeer: SetRemoteDescription: %w", err)
	}

	p.mu.Lock()
	queued := p.candQueue
	p.candQueue = nil
	p.remoteSet = true
	p.mu.Unlock()

	for _, c := range queued {
		if err := p.pc.AddICECandidate(c); err != nil {
			log.Warn("replaying queued ICE candidate failed", "error", err)
		}
	}
	return nil
}

// AddICECandidate queues the candidate if the remote description hasn't
// been set yet, otherwise applies it immediately.
func (p *PeerConnection) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if !p.remoteSet {
		if len(p.candQueue) < maxQueuedCandidates {
			p.candQueue = append(p.candQueue, c)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("rtcpeer: AddICECandidate: %w", err)
	}
	return nil
}

func (p *PeerConnection) OnICECandidate(fn func(c *webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

// Stats reports the underlying connection's RTC statistics (bytes
// sent/received, buffered amount, ICE candidate pair). There's no RTP
// track in this data-channel-only design, so no RTCP feedback loop to
// drive keyframe recovery from; that trigger instead rides the logic
// channel (see peer.Pipeline.requestKeyframe).
func (p *PeerConnection) Stats() webrtc.StatsReport {
	return p.pc.GetStats()
}

func (p *PeerConnection) Close() error {
	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("rtcpeer: Close: %w", err)
	}
	return nil
}
