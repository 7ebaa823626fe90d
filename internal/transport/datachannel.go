package transport

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

const (
	// DefaultLowWaterMark and DefaultHighWaterMark mirror the 512KB/1MB
	// constants the original implementation's data-channel wrapper uses.
	DefaultLowWaterMark  = 512 * 1024
	DefaultHighWaterMark = 1024 * 1024
)

// Event is something that happened on a DataChannel: it opened, closed,
// or delivered a message.
type Event struct {
	Kind    EventKind
	Message []byte
}

type EventKind int

const (
	EventOpen EventKind = iota
	EventClose
	EventMessage
)

// DataChannel wraps a pion RTCDataChannel with the flow-control contract
// the video path depends on: callers Send into a channel that blocks
// once the underlying buffered amount crosses the high water mark, and
// unblocks again once pion's OnBufferedAmountLow callback reports the
// buffered amount has drained below the low water mark.
//
// The low/high water marks and the single-slot "more can be sent" signal
// resolve the race between a send observing a full buffer and the
// buffered-amount-low callback firing: the callback is registered before
// any data is sent, and the notification channel has capacity 1, so a
// signal arriving before the sender parks is retained instead of lost,
// and a sender that parks after the signal already arrived observes it
// immediately rather than blocking forever.
type DataChannel struct {
	dc     *webrtc.DataChannel
	label  string
	high   uint64
	low    uint64
	events chan Event

	moreCanBeSent chan struct{}

	closeOnce sync.Once
}

// Wrap adapts an established *webrtc.DataChannel into a DataChannel,
// registering its open/close/message/bufferedamountlow callbacks. high
// and low are the flow-control water marks in bytes; zero selects the
// package defaults.
func Wrap(dc *webrtc.DataChannel, high, low uint64) *DataChannel {
	if high == 0 {
		high = DefaultHighWaterMark
	}
	if low == 0 {
		low = DefaultLowWaterMark
	}

	w := &DataChannel{
		dc:            dc,
		label:         dc.Label(),
		high:          high,
		low:           low,
		events:        make(chan Event, 16),
		moreCanBeSent: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(low)
	dc.OnBufferedAmountLow(func() {
		select {
		case w.moreCanBeSent <- struct{}{}:
		default:
		}
	})

	dc.OnOpen(func() {
		w.events <- Event{Kind: EventOpen}
	})
	dc.OnClose(func() {
		w.events <- Event{Kind: EventClose}
		w.closeOnce.Do(func() { close(w.events) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		w.events <- Event{Kind: EventMessage, Message: msg.Data}
	})

	return w
}

// Label returns the data channel's negotiated label.
func (w *DataChannel) Label() string { return w.label }

// Events returns the channel of Open/Close/Message events.
func (w *DataChannel) Events() <-chan Event { return w.events }

// Send writes data to the channel, blocking until the buffered amount
// drops back under the low water mark if this send would push it over
// the high water mark.
func (w *DataChannel) Send(data []byte) error {
	if wouldExceedHighWaterMark(w.dc.BufferedAmount(), uint64(len(data)), w.high) {
		<-w.moreCanBeSent
	}
	return w.dc.Send(data)
}

// SendText writes a UTF-8 text message, subject to the same flow control
// as Send.
func (w *DataChannel) SendText(s string) error {
	if wouldExceedHighWaterMark(w.dc.BufferedAmount(), uint64(len(s)), w.high) {
		<-w.moreCanBeSent
	}
	return w.dc.SendText(s)
}

// wouldExceedHighWaterMark is the check Send and SendText perform before
// deciding whether to park on moreCanBeSent. It's split out as a pure
// function so the flow-control decision is unit-testable without a
// negotiated pion DataChannel (which needs a full ICE handshake to
// exercise OnBufferedAmountLow for real; no test in this repository
// exercises that path).
func wouldExceedHighWaterMark(buffered, additional, high uint64) bool {
	return buffered+additional > high
}

// Close closes the underlying data channel.
func (w *DataChannel) Close() error {
	return w.dc.Close()
}

func (w *DataChannel) String() string {
	return fmt.Sprintf("datachannel(%s)", w.label)
}
