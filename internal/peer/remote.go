package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/deskstream/deskstream/internal/config"
	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/internal/rtcpeer"
	"github.com/deskstream/deskstream/internal/signaling"
	"github.com/deskstream/deskstream/internal/transport"
	"github.com/deskstream/deskstream/pkg/wire"
)

const statsLogInterval = 30 * time.Second

// newRemotePeer creates the RTC connection to theirID, wires signaling
// control into it, and starts the Pipeline once all three data channels
// (video, audio, logic -- spec §4.6/§6) are open. controlling mirrors
// spec §4.7: the side that requested the connection creates the offer,
// the accepting side waits for one.
func newRemotePeer(ctx context.Context, ourID, theirID wire.PeerId, client *signaling.Client, controlling bool, cfg *config.Config) (*RemotePeer, error) {
	groupCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(groupCtx)

	pc, err := rtcpeer.New(groupCtx, uint64(cfg.DataChannelHighWaterMark), uint64(cfg.DataChannelLowWaterMark))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("peer: %w", err)
	}

	r := &RemotePeer{
		theirID: theirID,
		control: make(chan PeerControl, 16),
		cancel: func() {
			cancel()
			_ = pc.Close()
		},
		group: group,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		client.SendIceCandidate(theirID, c.ToJSON().Candidate)
	})

	videoCh := make(chan *transport.DataChannel, 1)
	audioCh := make(chan *transport.DataChannel, 1)
	logicCh := make(chan *transport.DataChannel, 1)

	if controlling {
		video, err := pc.Channel("video", rtcpeer.VideoChannelInit())
		if err != nil {
			cancel()
			return nil, fmt.Errorf("peer: creating video channel: %w", err)
		}
		videoCh <- video

		audio, err := pc.Channel("audio", nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("peer: creating audio channel: %w", err)
		}
		audioCh <- audio

		logic, err := pc.Channel("logic", nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("peer: creating logic channel: %w", err)
		}
		logicCh <- logic
	}

	group.Go(func() error { return runSignalingBridge(groupCtx, r.control, pc, client, theirID, controlling) })
	group.Go(func() error { return runEventLoop(groupCtx, pc, videoCh, audioCh, logicCh) })
	group.Go(func() error { return runPipelineOnce(groupCtx, cfg, videoCh, audioCh, logicCh) })
	group.Go(func() error { return runStatsLogger(groupCtx, pc, theirID) })

	if controlling {
		offer, err := pc.Offer(groupCtx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("peer: creating offer: %w", err)
		}
		client.SendOffer(theirID, offer.SDP)
	}

	return r, nil
}

// runStatsLogger periodically logs the connection's RTC statistics,
// giving rtcpeer.PeerConnection.Stats a real caller for diagnosing the
// backpressure/high-water-mark scenarios spec §8 describes.
func runStatsLogger(ctx context.Context, pc *rtcpeer.PeerConnection, theirID wire.PeerId) error {
	ticker := time.NewTicker(statsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			log.Debug("rtc stats", "peer_id", theirID, "report_size", len(pc.Stats()))
		}
	}
}

// runSignalingBridge drains RemotePeer.control (offers/answers/ICE
// candidates relayed from the signaling server, plus the terminal Die
// control) and applies them to the RTC peer connection.
func runSignalingBridge(ctx context.Context, control chan PeerControl, pc *rtcpeer.PeerConnection, client *signaling.Client, theirID wire.PeerId, controlling bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ctl := <-control:
			switch ctl.Kind {
			case ControlDie:
				return nil
			case ControlOffer:
				if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: ctl.SDP}); err != nil {
					log.Warn("applying remote offer failed", "peer_id", theirID, "error", err)
					continue
				}
				answer, err := pc.Answer(ctx)
				if err != nil {
					log.Warn("creating answer failed", "peer_id", theirID, "error", err)
					continue
				}
				client.SendAnswer(theirID, answer.SDP)
			case ControlAnswer:
				if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: ctl.SDP}); err != nil {
					log.Warn("applying remote answer failed", "peer_id", theirID, "error", err)
				}
			case ControlIceCandidate:
				if err := pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: ctl.Candidate}); err != nil {
					log.Warn("applying remote ice candidate failed", "peer_id", theirID, "error", err)
				}
			}
		}
	}
}

// runEventLoop delivers each remotely-opened data channel (non-controlling
// side) to the channel matching its label. Local ICE candidates are sent
// to the signaling server by the OnICECandidate handler newRemotePeer
// installs, not by this loop.
func runEventLoop(ctx context.Context, pc *rtcpeer.PeerConnection, videoCh, audioCh, logicCh chan *transport.DataChannel) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-pc.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case rtcpeer.EventChannel:
				var dst chan *transport.DataChannel
				switch ev.Label {
				case "video":
					dst = videoCh
				case "audio":
					dst = audioCh
				case "logic":
					dst = logicCh
				default:
					log.Debug("ignoring data channel with unrecognized label", "label", ev.Label)
					continue
				}
				select {
				case dst <- ev.Channel:
				default:
				}
			case rtcpeer.EventStateChange:
				log.Debug("rtc state changed", "state", ev.State)
			}
		}
	}
}

// runPipelineOnce waits for all three data channels to become available,
// then runs the producer/consumer Pipeline on them until the context is
// cancelled.
func runPipelineOnce(ctx context.Context, cfg *config.Config, videoCh, audioCh, logicCh chan *transport.DataChannel) error {
	var video, audio, logic *transport.DataChannel
	for video == nil || audio == nil || logic == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case video = <-videoCh:
		case audio = <-audioCh:
		case logic = <-logicCh:
		}
	}
	pipeline := NewPipeline(video, audio, logic, cfg)
	return pipeline.Run(ctx)
}
