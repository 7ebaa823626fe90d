package peer

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deskstream/deskstream/internal/capture"
	"github.com/deskstream/deskstream/internal/config"
	"github.com/deskstream/deskstream/internal/convert"
	"github.com/deskstream/deskstream/internal/decode"
	"github.com/deskstream/deskstream/internal/encode"
	"github.com/deskstream/deskstream/internal/media"
	"github.com/deskstream/deskstream/internal/render"
	"github.com/deskstream/deskstream/internal/texture"
	"github.com/deskstream/deskstream/internal/transport"
)

const capturePoolSize = 4

const metricsLogInterval = 10 * time.Second

// keyframeRequestCooldown rate-limits how often drainAssembler will ask
// the remote producer for a fresh keyframe after a mid-stream join or a
// dropped sequence header (spec §8 scenario 3).
const keyframeRequestCooldown = 1 * time.Second

// logicMessage is the JSON envelope carried on the logic channel, which
// spec §6 reserves for control messages; request_keyframe is its first
// real use.
type logicMessage struct {
	Type string `json:"type"`
}

const logicRequestKeyframe = "request_keyframe"

// Pipeline wires capture -> convert -> encode -> chunk -> send on the
// producer side and receive -> assemble -> decode -> render on the
// consumer side, over the three channels a connection negotiates, per
// spec §2, §4.6 and §5.
type Pipeline struct {
	video *transport.DataChannel
	audio *transport.DataChannel
	logic *transport.DataChannel
	cfg   *config.Config

	source   capture.Source
	sink     render.Sink
	metrics  *StreamMetrics
	audioOut chan capture.AudioFrame
}

// NewPipeline builds a Pipeline bound to the three negotiated data
// channels and the startup configuration (spec §6's single
// environment-derived record). A caller embedding this in a UI host
// replaces sink with one backed by a real Display.
func NewPipeline(video, audio, logic *transport.DataChannel, cfg *config.Config) *Pipeline {
	return &Pipeline{
		video:    video,
		audio:    audio,
		logic:    logic,
		cfg:      cfg,
		sink:     render.NewImageSink(&render.NullDisplay{}),
		metrics:  newStreamMetrics(),
		audioOut: make(chan capture.AudioFrame, 4),
	}
}

// Run drives the pipeline's video producer/consumer, the logic-channel
// listener and the audio consumer, plus the audio producer when the
// active capture source also produces audio, until ctx is cancelled or
// the channels close.
func (p *Pipeline) Run(ctx context.Context) error {
	source, err := p.openSource(ctx)
	if err != nil {
		return err
	}
	p.source = source
	defer source.Close()

	metricsDone := make(chan struct{})
	go logSnapshot(metricsDone, p.metrics, metricsLogInterval)
	defer close(metricsDone)

	forceKeyframe := make(chan struct{}, 1)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return p.runProducer(groupCtx, forceKeyframe) })
	group.Go(func() error { return p.runConsumer(groupCtx, forceKeyframe) })
	group.Go(func() error { return p.runLogicListener(groupCtx, forceKeyframe) })

	if as, ok := p.source.(capture.AudioSource); ok {
		group.Go(func() error { return p.runAudioProducer(groupCtx, as) })
	}
	group.Go(func() error { return p.runAudioConsumer(groupCtx) })

	return group.Wait()
}

// openSource picks the capture source spec §4.1/§6 describe: a
// configured MediaFilename selects the file-backed source, its absence
// means live desktop duplication, mirroring
// original_source/src/ui.rs:744's selection.
func (p *Pipeline) openSource(ctx context.Context) (capture.Source, error) {
	if p.cfg.MediaFilename != "" {
		return capture.NewFileSource(ctx, p.cfg.MediaFilename, p.cfg.Framerate)
	}
	return capture.NewDesktopSource(ctx)
}

// Metrics returns the pipeline's running StreamMetrics.
func (p *Pipeline) Metrics() *StreamMetrics { return p.metrics }

// AudioOut delivers decoded PCM audio frames received from the remote
// peer's audio channel, for a host application to play back.
func (p *Pipeline) AudioOut() <-chan capture.AudioFrame { return p.audioOut }

func (p *Pipeline) runProducer(ctx context.Context, forceKeyframe <-chan struct{}) error {
	conv := convert.NewSoftwareConverter(texture.FormatNV12, 3)
	defer conv.Close()

	enc, err := encode.NewVideoEncoder(encode.Config{
		Quality: encode.QualityAuto,
		Bitrate: p.cfg.Bitrate,
		FPS:     p.cfg.Framerate,
	})
	if err != nil {
		return err
	}
	defer enc.Close()

	chunker := transport.NewChunker(p.cfg.VideoChunkSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-forceKeyframe:
			if err := enc.ForceKeyframe(); err != nil {
				log.Warn("failed to force keyframe", "error", err)
			}
		case frame, ok := <-p.source.Frames():
			if !ok {
				return nil
			}
			p.metrics.RecordCapture()
			if err := p.encodeAndSend(ctx, conv, enc, chunker, frame); err != nil {
				p.metrics.RecordDrop()
				log.Warn("producer dropped a frame", "error", err)
			}
		}
	}
}

func (p *Pipeline) encodeAndSend(ctx context.Context, conv convert.Converter, enc *encode.VideoEncoder, chunker *transport.Chunker, frame capture.Frame) error {
	nv12, err := conv.Convert(ctx, frame.Texture)
	if err != nil {
		return err
	}

	encodeStart := time.Now()
	vb, err := enc.Encode(nv12, frame.Time, 0)
	if err != nil {
		return err
	}
	p.metrics.RecordEncode(time.Since(encodeStart), len(vb.Data))

	deadline := time.Now().Add(time.Duration(p.cfg.VideoChunkDeadlineMs) * time.Millisecond)
	for chunk := range chunker.Chunk(vb, deadline) {
		data := media.EncodeChunk(chunk)
		if err := p.video.Send(data); err != nil {
			return err
		}
		p.metrics.RecordSend(len(data))
	}
	return nil
}

func (p *Pipeline) runConsumer(ctx context.Context, forceKeyframe chan<- struct{}) error {
	pool := texture.NewTexturePool(func() *texture.GpuTexture {
		return &texture.GpuTexture{Format: texture.FormatNV12}
	}, p.cfg.TexturePoolSize)

	dec := decode.NewDecoder(pool)
	defer dec.Close()

	assembler := transport.NewAssembler(time.Duration(p.cfg.AssemblerBudgetMs) * time.Millisecond)
	defer assembler.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return p.feedAssembler(groupCtx, assembler) })
	group.Go(func() error { return p.drainAssembler(groupCtx, dec, assembler, forceKeyframe) })
	return group.Wait()
}

func (p *Pipeline) feedAssembler(ctx context.Context, assembler *transport.Assembler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.video.Events():
			if !ok {
				return nil
			}
			if ev.Kind != transport.EventMessage {
				continue
			}
			chunk, err := media.DecodeChunk(ev.Message)
			if err != nil {
				log.Warn("discarding malformed chunk", "error", err)
				continue
			}
			assembler.Feed(chunk)
		}
	}
}

// drainAssembler decodes assembled video buffers and presents them. A
// buffer discarded for want of a sequence header means we joined the
// stream mid-flight (spec §8 scenario 3); it rate-limits a
// request_keyframe signal back to the remote producer over the logic
// channel rather than silently waiting for the next scheduled keyframe.
func (p *Pipeline) drainAssembler(ctx context.Context, dec *decode.Decoder, assembler *transport.Assembler, forceKeyframe chan<- struct{}) error {
	var lastRequest time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case vb, ok := <-assembler.Out():
			if !ok {
				return nil
			}
			tex, err := dec.Decode(vb)
			if err != nil {
				if err != decode.ErrNoSequenceHeader {
					log.Warn("decode failed", "error", err)
				} else if time.Since(lastRequest) > keyframeRequestCooldown {
					lastRequest = time.Now()
					if reqErr := p.requestKeyframe(); reqErr != nil {
						log.Warn("failed to request keyframe", "error", reqErr)
					}
				}
				continue
			}
			p.metrics.RecordDecode()
			if err := p.sink.Present(tex, vb.Time, vb.Stats); err != nil {
				log.Warn("present failed", "error", err)
			} else {
				p.metrics.RecordPresent()
			}
		}
	}
}

// requestKeyframe sends a request_keyframe control message on the logic
// channel, picked up by the remote side's runLogicListener.
func (p *Pipeline) requestKeyframe() error {
	b, err := json.Marshal(logicMessage{Type: logicRequestKeyframe})
	if err != nil {
		return err
	}
	return p.logic.SendText(string(b))
}

// runLogicListener watches the logic channel for control messages from
// the remote peer and signals forceKeyframe on request_keyframe.
func (p *Pipeline) runLogicListener(ctx context.Context, forceKeyframe chan<- struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.logic.Events():
			if !ok {
				return nil
			}
			if ev.Kind != transport.EventMessage {
				continue
			}
			var msg logicMessage
			if err := json.Unmarshal(ev.Message, &msg); err != nil {
				log.Warn("discarding malformed logic message", "error", err)
				continue
			}
			if msg.Type == logicRequestKeyframe {
				select {
				case forceKeyframe <- struct{}{}:
				default:
				}
			}
		}
	}
}

// runAudioProducer encodes and sends audio frames from the capture
// source's parallel audio track, when one exists (currently only
// FileSource), over the unchunked audio channel (spec §4.6).
func (p *Pipeline) runAudioProducer(ctx context.Context, as capture.AudioSource) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-as.AudioFrames():
			if !ok {
				return nil
			}
			data := media.EncodeAudioChunk(frame.PCM, frame.Time)
			if err := p.audio.Send(data); err != nil {
				log.Warn("audio producer dropped a frame", "error", err)
			}
		}
	}
}

// runAudioConsumer decodes audio chunks from the remote peer's audio
// channel and pushes them to AudioOut, dropping a frame rather than
// blocking if nothing is consuming it.
func (p *Pipeline) runAudioConsumer(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.audio.Events():
			if !ok {
				return nil
			}
			if ev.Kind != transport.EventMessage {
				continue
			}
			samples, ts, err := media.DecodeAudioChunk(ev.Message)
			if err != nil {
				log.Warn("discarding malformed audio chunk", "error", err)
				continue
			}
			select {
			case p.audioOut <- capture.AudioFrame{PCM: samples, Time: ts}:
			default:
				log.Debug("dropping decoded audio frame, consumer too slow")
			}
		}
	}
}
