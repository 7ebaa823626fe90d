package signaling

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deskstream/deskstream/pkg/wire"
)

func TestClientReceivesAssignedPeerID(t *testing.T) {
	s := NewServer()
	httpSrv := httptest.NewServer(s)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	c := NewClient(wsURL)
	c.Start()
	defer c.Stop()

	select {
	case msg := <-c.Messages():
		if msg.Type != wire.TypeID {
			t.Fatalf("first message type = %q, want %q", msg.Type, wire.TypeID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for id message")
	}

	deadline := time.Now().Add(time.Second)
	for c.PeerID() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.PeerID() == "" {
		t.Fatal("expected PeerID() to be populated after the id message")
	}
}

func TestBuildWSURLNormalizesScheme(t *testing.T) {
	c := NewClient("http://127.0.0.1:8080")
	got, err := c.buildWSURL()
	if err != nil {
		t.Fatalf("buildWSURL: %v", err)
	}
	if !strings.HasPrefix(got, "ws://") {
		t.Fatalf("buildWSURL() = %q, want ws:// prefix", got)
	}
}
