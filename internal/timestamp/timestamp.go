// Package timestamp provides a monotonic media timestamp that is carried
// unchanged from the capture source through to the render sink.
package timestamp

import "time"

// Timestamp represents a point on a media pipeline's monotonic clock, in
// units of 100ns ticks (the native resolution of both Windows Media
// Foundation timestamps and the original capture API this system talks
// to, per the pipeline's data model).
type Timestamp struct {
	ticks int64
}

// FromTicks100ns builds a Timestamp from a raw 100ns tick count.
func FromTicks100ns(ticks int64) Timestamp {
	return Timestamp{ticks: ticks}
}

// FromWallClockDelta builds a Timestamp representing the duration between
// start and now, used by capture sources that only have wall-clock times
// available (e.g. the file source, or a software capture fallback).
func FromWallClockDelta(start, now time.Time) Timestamp {
	return Timestamp{ticks: now.Sub(start).Nanoseconds() / 100}
}

// Ticks100ns returns the raw 100ns tick count.
func (t Timestamp) Ticks100ns() int64 {
	return t.ticks
}

// Duration returns the timestamp as a time.Duration since its origin.
func (t Timestamp) Duration() time.Duration {
	return time.Duration(t.ticks) * 100
}

// Before reports whether t occurs before o.
func (t Timestamp) Before(o Timestamp) bool {
	return t.ticks < o.ticks
}

// After reports whether t occurs after o.
func (t Timestamp) After(o Timestamp) bool {
	return t.ticks > o.ticks
}

// Sub returns the duration t-o.
func (t Timestamp) Sub(o Timestamp) time.Duration {
	return time.Duration(t.ticks-o.ticks) * 100
}
