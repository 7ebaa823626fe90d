package rtcpeer

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateNew:          "new",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateDisconnected: "disconnected",
		StateFailed:       "failed",
		StateClosed:       "closed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestAddICECandidateQueuesBeforeRemoteDescriptionSet(t *testing.T) {
	p, err := New(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 1 typ host"}
	if err := p.AddICECandidate(cand); err != nil {
		t.Fatalf("AddICECandidate: %v", err)
	}

	p.mu.Lock()
	queued := len(p.candQueue)
	remoteSet := p.remoteSet
	p.mu.Unlock()

	if remoteSet {
		t.Fatal("remoteSet should still be false before SetRemoteDescription")
	}
	if queued != 1 {
		t.Fatalf("candQueue length = %d, want 1", queued)
	}
}

func TestVideoChannelInitIsUnorderedWithNoRetransmits(t *testing.T) {
	init := VideoChannelInit()
	if init.Ordered == nil || *init.Ordered {
		t.Fatal("expected VideoChannelInit to be unordered")
	}
	if init.MaxRetransmits == nil || *init.MaxRetransmits != 0 {
		t.Fatal("expected VideoChannelInit to set MaxRetransmits = 0")
	}
}

func TestOfferProducesLocalDescription(t *testing.T) {
	p, err := New(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if _, err := p.Channel("video", VideoChannelInit()); err != nil {
		t.Fatalf("Channel: %v", err)
	}

	offer, err := p.Offer(context.Background())
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		t.Fatalf("offer.Type = %v, want SDPTypeOffer", offer.Type)
	}
}
