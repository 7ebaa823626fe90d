package peer

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deskstream/deskstream/internal/config"
	"github.com/deskstream/deskstream/internal/signaling"
	"github.com/deskstream/deskstream/pkg/wire"
)

// fakeNewRemotePeer substitutes for a real RTC connection in tests so Peer's
// bookkeeping (pending requests, remote map, teardown) can be exercised
// without negotiating ICE.
func fakeNewRemotePeer(calls *[]wire.PeerId, controlling *[]bool) func(context.Context, wire.PeerId, wire.PeerId, *signaling.Client, bool, *config.Config) (*RemotePeer, error) {
	return func(ctx context.Context, ourID, theirID wire.PeerId, client *signaling.Client, isControlling bool, cfg *config.Config) (*RemotePeer, error) {
		*calls = append(*calls, theirID)
		*controlling = append(*controlling, isControlling)

		groupCtx, cancel := context.WithCancel(ctx)
		group, groupCtx := errgroup.WithContext(groupCtx)
		group.Go(func() error {
			<-groupCtx.Done()
			return nil
		})
		return &RemotePeer{
			theirID: theirID,
			control: make(chan PeerControl, 4),
			cancel:  cancel,
			group:   group,
		}, nil
	}
}

func newTestPeer(t *testing.T, serverURL string, calls *[]wire.PeerId, controlling *[]bool) *Peer {
	t.Helper()
	ctx := context.Background()
	client := signaling.NewClient(serverURL)
	client.Start()

	var ourID wire.PeerId
	select {
	case msg := <-client.Messages():
		ourID = msg.PeerId
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for assigned peer id")
	}

	p := &Peer{
		ourID:            ourID,
		client:           client,
		cfg:              config.Default(),
		remotes:          make(map[wire.PeerId]*RemotePeer),
		pendingRequester: make(map[wire.ConnectionId]wire.PeerId),
		appEvents:        make(chan AppEvent, 16),
		newRemotePeer:    fakeNewRemotePeer(calls, controlling),
	}
	go p.dispatchLoop(ctx)
	return p
}

func TestAcceptConnectionStartsNonControllingRemotePeer(t *testing.T) {
	var calls []wire.PeerId
	var controlling []bool

	s := signaling.NewServer()
	httpSrv := httptest.NewServer(s)
	defer httpSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")

	p := newTestPeer(t, wsURL, &calls, &controlling)
	defer p.Close()

	requester := wire.PeerId("requester")
	connID := wire.ConnectionId("conn-1")
	p.mu.Lock()
	p.pendingRequester[connID] = requester
	p.mu.Unlock()

	if err := p.AcceptConnection(context.Background(), connID); err != nil {
		t.Fatalf("AcceptConnection: %v", err)
	}

	if len(calls) != 1 || calls[0] != requester {
		t.Fatalf("expected newRemotePeer called once with %q, got %v", requester, calls)
	}
	if len(controlling) != 1 || controlling[0] {
		t.Fatal("expected AcceptConnection to start a non-controlling remote peer")
	}

	p.mu.Lock()
	_, stillPending := p.pendingRequester[connID]
	p.mu.Unlock()
	if stillPending {
		t.Fatal("expected the pending request to be consumed")
	}
}

func TestAcceptConnectionRejectsUnknownConnectionID(t *testing.T) {
	s := signaling.NewServer()
	httpSrv := httptest.NewServer(s)
	defer httpSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")

	var calls []wire.PeerId
	var controlling []bool
	p := newTestPeer(t, wsURL, &calls, &controlling)
	defer p.Close()

	if err := p.AcceptConnection(context.Background(), "nope"); err == nil {
		t.Fatal("expected an error for an unknown connection id")
	}
}

func TestDieClosesAllRemotePeers(t *testing.T) {
	s := signaling.NewServer()
	httpSrv := httptest.NewServer(s)
	defer httpSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")

	var calls []wire.PeerId
	var controlling []bool
	p := newTestPeer(t, wsURL, &calls, &controlling)
	defer p.Close()

	connID := wire.ConnectionId("conn-2")
	p.mu.Lock()
	p.pendingRequester[connID] = wire.PeerId("someone")
	p.mu.Unlock()
	if err := p.AcceptConnection(context.Background(), connID); err != nil {
		t.Fatalf("AcceptConnection: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		p.mu.Lock()
		n := len(p.remotes)
		p.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("remote peer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.Die()

	deadline = time.Now().Add(time.Second)
	for {
		p.mu.Lock()
		n := len(p.remotes)
		p.mu.Unlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("Die() did not tear down remote peers")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
