package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"gocv.io/x/gocv"

	"github.com/deskstream/deskstream/internal/texture"
	"github.com/deskstream/deskstream/internal/timestamp"
)

// AudioFrame is one chunk of resampled PCM audio from a FileSource.
type AudioFrame struct {
	PCM  []int16
	Time timestamp.Timestamp
}

const (
	fileAudioSampleRate = 44100
	fileAudioChannels   = 2
	audioChunkSamples   = 1024 // per channel, matches a ~23ms chunk at 44.1kHz
)

// FileSource reads a media file's video track via gocv.VideoCaptureFile
// (grounded on n0remac-robot-webrtc/webrtc/client.go's use of the same
// API) and, in parallel, decodes its audio track to raw s16le stereo PCM
// via an ffmpeg subprocess (grounded on the same teacher's
// runFFmpegFileCLI pattern of piping raw samples through ffmpeg's
// stdout). It maintains two logical clocks -- next video timestamp, next
// audio timestamp -- and always produces whichever is due next, per
// spec §4.1.
type FileSource struct {
	path           string
	targetFPS      int
	vc             *gocv.VideoCapture
	ffmpegCmd      *exec.Cmd
	audioReader    *bufio.Reader
	videoOut       chan Frame
	audioOut       chan AudioFrame
	cancel         context.CancelFunc
	done           chan struct{}
	nextVideoTicks time.Duration
	nextAudioTicks time.Duration
}

func NewFileSource(ctx context.Context, path string, targetFPS int) (*FileSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture: opening %s: %w", path, err)
	}

	cmd := exec.Command("ffmpeg",
		"-hide_banner", "-loglevel", "warning",
		"-i", path,
		"-f", "s16le", "-ar", fmt.Sprint(fileAudioSampleRate), "-ac", fmt.Sprint(fileAudioChannels),
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		vc.Close()
		return nil, fmt.Errorf("capture: ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		vc.Close()
		return nil, fmt.Errorf("capture: starting ffmpeg: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &FileSource{
		path:        path,
		targetFPS:   targetFPS,
		vc:          vc,
		ffmpegCmd:   cmd,
		audioReader: bufio.NewReaderSize(stdout, 64*1024),
		videoOut:    make(chan Frame, 2),
		audioOut:    make(chan AudioFrame, 4),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go s.run(runCtx)
	return s, nil
}

func (s *FileSource) Frames() <-chan Frame       { return s.videoOut }
func (s *FileSource) AudioFrames() <-chan AudioFrame { return s.audioOut }

func (s *FileSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.videoOut)
	defer close(s.audioOut)

	frameInterval := time.Second / time.Duration(s.targetFPS)
	audioInterval := time.Duration(audioChunkSamples) * time.Second / fileAudioSampleRate

	mat := gocv.NewMat()
	defer mat.Close()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Sleep until the earlier of the two logical clocks is due on the
		// wall clock.
		due := s.nextVideoTicks
		if s.nextAudioTicks < due {
			due = s.nextAudioTicks
		}
		if wait := time.Until(start.Add(due)); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		// Whichever logical clock is due soonest produces next.
		if s.nextVideoTicks <= s.nextAudioTicks {
			if !s.readVideoFrame(&mat) {
				return
			}
			s.emitVideoFrame(&mat)
			s.nextVideoTicks += frameInterval
		} else {
			if !s.emitAudioChunk() {
				return
			}
			s.nextAudioTicks += audioInterval
		}
	}
}

func (s *FileSource) readVideoFrame(mat *gocv.Mat) bool {
	if ok := s.vc.Read(mat); !ok || mat.Empty() {
		return false
	}
	return true
}

func (s *FileSource) emitVideoFrame(mat *gocv.Mat) {
	data := make([]byte, mat.Cols()*mat.Rows()*4)
	bgr := mat.ToBytes()
	// gocv.Mat from VideoCaptureFile is BGR (3 channels); expand to BGRA.
	for i, j := 0, 0; i+3 <= len(bgr) && j+4 <= len(data); i, j = i+3, j+4 {
		data[j+0] = bgr[i+0]
		data[j+1] = bgr[i+1]
		data[j+2] = bgr[i+2]
		data[j+3] = 255
	}

	tex := &texture.GpuTexture{Width: mat.Cols(), Height: mat.Rows(), Format: texture.FormatBGRA, Data: data}
	frame := Frame{Texture: tex, Time: timestamp.FromWallClockDelta(time.Time{}, time.Time{}.Add(s.nextVideoTicks))}

	select {
	case s.videoOut <- frame:
	default:
		log.Debug("dropping file source video frame, consumer too slow")
	}
}

func (s *FileSource) emitAudioChunk() bool {
	raw := make([]byte, audioChunkSamples*fileAudioChannels*2)
	if _, err := io.ReadFull(s.audioReader, raw); err != nil {
		return false
	}

	pcm := bytesToInt16LE(raw)
	frame := AudioFrame{PCM: pcm, Time: timestamp.FromWallClockDelta(time.Time{}, time.Time{}.Add(s.nextAudioTicks))}

	select {
	case s.audioOut <- frame:
	default:
		log.Debug("dropping file source audio chunk, consumer too slow")
	}
	return true
}

func bytesToInt16LE(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}

func (s *FileSource) Close() error {
	s.cancel()
	<-s.done
	s.vc.Close()
	if s.ffmpegCmd.Process != nil {
		_ = s.ffmpegCmd.Process.Kill()
	}
	_ = s.ffmpegCmd.Wait()
	return nil
}
