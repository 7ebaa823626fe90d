// Package capture implements the producer-side first stage: pulling raw
// BGRA frames from either a live desktop (DesktopSource) or a media file
// (FileSource) into the shared Frame shape the convert stage consumes.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/internal/texture"
	"github.com/deskstream/deskstream/internal/timestamp"
)

var log = logging.L("capture")

var ErrNotSupported = errors.New("capture: not supported on this platform")

// Frame is one captured image paired with its capture timestamp.
type Frame struct {
	Texture *texture.GpuTexture
	Time    timestamp.Timestamp
}

// Source is the capture stage's contract: a channel of frames, closed
// when the source is exhausted or fails fatally, and a Close to release
// any underlying OS resources.
type Source interface {
	Frames() <-chan Frame
	Close() error
}

// AudioSource is implemented by a Source that also produces a parallel
// audio track (currently only FileSource, since live desktop audio
// capture isn't wired). A Pipeline checks for this via a type assertion
// before starting the audio send path, per spec §4.1/§6.
type AudioSource interface {
	AudioFrames() <-chan AudioFrame
}

// frameGrabber is the narrow, platform-specific seam DesktopSource polls.
// It mirrors the teacher's ScreenCapturer.Capture() contract: a nil
// texture with a nil error means "no new frame" (mouse-moved-only or
// unchanged since last poll), not an error.
type frameGrabber interface {
	Grab() (tex *texture.GpuTexture, err error)
	Close() error
}

// grabErrorKind classifies a frameGrabber failure the way the teacher's DXGI
// capturer classifies AcquireNextFrame results, so DesktopSource's state
// machine can apply spec §8's documented recovery policy per class.
type grabErrorKind int

const (
	grabErrorFatal grabErrorKind = iota
	grabErrorAccessDenied
	grabErrorAccessLost
	grabErrorTimeout
)

// GrabError lets a frameGrabber report which recovery class a failure
// belongs to; a plain error is treated as grabErrorFatal.
type GrabError struct {
	Kind grabErrorKind
	Err  error
}

func (e *GrabError) Error() string { return e.Err.Error() }
func (e *GrabError) Unwrap() error { return e.Err }

func classify(err error) grabErrorKind {
	var ge *GrabError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return grabErrorFatal
}

const (
	accessDeniedRetryDelay = 1 * time.Second
	pollInterval           = 8 * time.Millisecond
)

// DesktopSource polls a frameGrabber on a fixed interval, applying the
// recovery policy from spec §8: a nil frame (mouse-moved-only) is not a
// new frame and is silently skipped; access-denied retries after 1s;
// access-lost rebuilds the grabber; timeout continues the loop; any other
// error is fatal and closes the Frames channel.
type DesktopSource struct {
	grabber frameGrabber
	rebuild func() (frameGrabber, error)
	out     chan Frame
	cancel  context.CancelFunc
	done    chan struct{}
	start   time.Time
}

func NewDesktopSource(ctx context.Context) (*DesktopSource, error) {
	grabber, err := newPlatformGrabber()
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &DesktopSource{
		grabber: grabber,
		rebuild: newPlatformGrabber,
		out:     make(chan Frame, 2),
		cancel:  cancel,
		done:    make(chan struct{}),
		start:   time.Now(),
	}
	go s.run(runCtx)
	return s, nil
}

func (s *DesktopSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tex, err := s.grabber.Grab()
		if err != nil {
			switch classify(err) {
			case grabErrorAccessDenied:
				log.Warn("capture access denied, retrying", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(accessDeniedRetryDelay):
				}
				continue
			case grabErrorAccessLost:
				log.Warn("capture access lost, rebuilding", "error", err)
				_ = s.grabber.Close()
				newGrabber, rebuildErr := s.rebuild()
				if rebuildErr != nil {
					log.Error("failed to rebuild capture grabber", "error", rebuildErr)
					return
				}
				s.grabber = newGrabber
				continue
			case grabErrorTimeout:
				continue
			default:
				log.Error("fatal capture error", "error", err)
				return
			}
		}
		if tex == nil {
			// mouse-moved-only, or no change since last poll: not a new frame.
			continue
		}

		frame := Frame{Texture: tex, Time: timestamp.FromWallClockDelta(s.start, time.Now())}
		select {
		case s.out <- frame:
		default:
			log.Debug("dropping capture frame, consumer too slow")
		}
	}
}

func (s *DesktopSource) Frames() <-chan Frame {
	return s.out
}

func (s *DesktopSource) Close() error {
	s.cancel()
	<-s.done
	return s.grabber.Close()
}
