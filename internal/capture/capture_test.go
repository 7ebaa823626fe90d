package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deskstream/deskstream/internal/texture"
)

type scriptedGrabber struct {
	steps  []func() (*texture.GpuTexture, error)
	idx    int
	closed bool
}

func (g *scriptedGrabber) Grab() (*texture.GpuTexture, error) {
	if g.idx >= len(g.steps) {
		return &texture.GpuTexture{Width: 1, Height: 1, Format: texture.FormatBGRA, Data: []byte{0, 0, 0, 255}}, nil
	}
	step := g.steps[g.idx]
	g.idx++
	return step()
}

func (g *scriptedGrabber) Close() error { g.closed = true; return nil }

func newTestDesktopSource(t *testing.T, grabber frameGrabber) *DesktopSource {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := &DesktopSource{
		grabber: grabber,
		rebuild: func() (frameGrabber, error) { return grabber, nil },
		out:     make(chan Frame, 2),
		cancel:  cancel,
		done:    make(chan struct{}),
		start:   time.Now(),
	}
	go s.run(ctx)
	return s
}

func TestDesktopSourceSkipsNilFrames(t *testing.T) {
	grabber := &scriptedGrabber{steps: []func() (*texture.GpuTexture, error){
		func() (*texture.GpuTexture, error) { return nil, nil },
		func() (*texture.GpuTexture, error) { return nil, nil },
	}}
	s := newTestDesktopSource(t, grabber)
	defer s.Close()

	select {
	case f := <-s.Frames():
		if f.Texture == nil {
			t.Fatal("expected a non-nil texture once the scripted nils are exhausted")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
}

func TestDesktopSourceStopsOnFatalError(t *testing.T) {
	grabber := &scriptedGrabber{steps: []func() (*texture.GpuTexture, error){
		func() (*texture.GpuTexture, error) { return nil, errors.New("boom") },
	}}
	s := newTestDesktopSource(t, grabber)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.Frames():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("expected Frames() to close after a fatal error")
		}
	}
}

func TestDesktopSourceRebuildsOnAccessLost(t *testing.T) {
	rebuilt := false
	grabber := &scriptedGrabber{steps: []func() (*texture.GpuTexture, error){
		func() (*texture.GpuTexture, error) {
			return nil, &GrabError{Kind: grabErrorAccessLost, Err: errors.New("lost")}
		},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	s := &DesktopSource{
		grabber: grabber,
		rebuild: func() (frameGrabber, error) {
			rebuilt = true
			return &scriptedGrabber{}, nil
		},
		out:    make(chan Frame, 2),
		cancel: cancel,
		done:   make(chan struct{}),
		start:  time.Now(),
	}
	go s.run(ctx)
	defer s.Close()

	select {
	case <-s.Frames():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame from the rebuilt grabber")
	}
	if !rebuilt {
		t.Fatal("expected the grabber to be rebuilt after access-lost")
	}
}

func TestSyntheticGrabberProducesBGRAFrames(t *testing.T) {
	g := &syntheticGrabber{width: 4, height: 4}
	tex, err := g.Grab()
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}
	if tex.Format != texture.FormatBGRA {
		t.Fatalf("Format = %v, want FormatBGRA", tex.Format)
	}
	if len(tex.Data) != 4*4*4 {
		t.Fatalf("len(Data) = %d, want %d", len(tex.Data), 4*4*4)
	}
}
