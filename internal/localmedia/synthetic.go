package localmedia

import (
	"context"
	"sync"
	"time"
)

const (
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = 33 * time.Millisecond
)

// vp8Keyframe is a 16x16 VP8 key frame header.
var vp8Keyframe = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00, 0x00, 0x47, 0x08, 0x85, 0x85, 0x88}

// SyntheticSource produces tracks without touching hardware. Each track sends
// silence or a still key frame until stopped. The Deny and Missing fields
// simulate the user refusing a device or the device being absent.
type SyntheticSource struct {
	DenyAudio    bool
	DenyVideo    bool
	MissingAudio bool
	MissingVideo bool

	mu       sync.Mutex
	requests []Constraints
	streams  []*Stream
}

func (s *SyntheticSource) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	s.mu.Lock()
	s.requests = append(s.requests, c)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case c.Video && s.DenyVideo, c.Audio && s.DenyAudio:
		return nil, ErrPermissionDenied
	case c.Video && s.MissingVideo, c.Audio && s.MissingAudio:
		return nil, ErrDeviceNotFound
	}

	stream, err := NewStream(c)
	if err != nil {
		return nil, err
	}
	for _, t := range stream.Tracks() {
		if t.Kind() == KindVideo {
			t.pump(vp8Keyframe, videoFrameInterval)
		} else {
			t.pump(opusSilence, audioFrameInterval)
		}
	}

	s.mu.Lock()
	s.streams = append(s.streams, stream)
	s.mu.Unlock()
	return stream, nil
}

// Requests returns every constraint set Acquire was called with.
func (s *SyntheticSource) Requests() []Constraints {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Constraints, len(s.requests))
	copy(out, s.requests)
	return out
}

// Streams returns the streams handed out so far.
func (s *SyntheticSource) Streams() []*Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Stream, len(s.streams))
	copy(out, s.streams)
	return out
}
