// Package localmedia owns the camera and microphone tracks of one participant.
package localmedia

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var (
	ErrPermissionDenied = errors.New("media permission denied")
	ErrDeviceNotFound   = errors.New("media device not found")
	ErrTrackStopped     = errors.New("track stopped")
	ErrNoTracks         = errors.New("no media requested")
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Constraints selects which devices to open.
type Constraints struct {
	Audio bool
	Video bool
}

// Source opens local devices. Implementations fail the whole request when any
// requested kind is unavailable.
type Source interface {
	Acquire(ctx context.Context, c Constraints) (*Stream, error)
}

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

type Track struct {
	id    string
	kind  Kind
	local *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	enabled bool
	stopped bool

	done     chan struct{}
	stopOnce sync.Once
	written  atomic.Int64
}

func newTrack(kind Kind, streamID string) (*Track, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == KindVideo {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}

	id := string(kind) + "-" + uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}
	return &Track{id: id, kind: kind, local: local, enabled: true, done: make(chan struct{})}, nil
}

func (t *Track) ID() string { return t.id }
func (t *Track) Kind() Kind { return t.kind }

// Local is the pion track to add to a peer connection.
func (t *Track) Local() webrtc.TrackLocal { return t.local }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ErrTrackStopped
	}
	t.enabled = on
	return nil
}

// Stop releases the device. It is safe to call more than once.
func (t *Track) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.enabled = false
	t.mu.Unlock()
	t.stopOnce.Do(func() { close(t.done) })
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// WriteSample sends s to the peer. A disabled audio track sends silence and a
// disabled video track sends nothing.
func (t *Track) WriteSample(s media.Sample) error {
	t.mu.Lock()
	enabled, stopped := t.enabled, t.stopped
	t.mu.Unlock()

	if stopped {
		return ErrTrackStopped
	}
	if !enabled {
		if t.kind == KindVideo {
			return nil
		}
		s.Data = opusSilence
	}
	if err := t.local.WriteSample(s); err != nil {
		return err
	}
	t.written.Add(1)
	return nil
}

// SamplesWritten counts the samples handed to the peer so far.
func (t *Track) SamplesWritten() int64 {
	return t.written.Load()
}

// pump writes frame every interval until the track stops. The returned channel
// closes when the pump exits.
func (t *Track) pump(frame []byte, interval time.Duration) <-chan struct{} {
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				err := t.WriteSample(media.Sample{Data: frame, Duration: interval})
				if errors.Is(err, ErrTrackStopped) {
					return
				}
			}
		}
	}()
	return exited
}

// Stream groups the tracks returned by one Acquire.
type Stream struct {
	ID     string
	tracks []*Track
}

// NewStream opens one track per requested kind.
func NewStream(c Constraints) (*Stream, error) {
	if !c.Audio && !c.Video {
		return nil, ErrNoTracks
	}

	s := &Stream{ID: uuid.NewString()}
	if c.Audio {
		t, err := newTrack(KindAudio, s.ID)
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	if c.Video {
		t, err := newTrack(KindVideo, s.ID)
		if err != nil {
			s.Stop()
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	return s, nil
}

func (s *Stream) Tracks() []*Track {
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Track returns the first track of kind, or nil.
func (s *Stream) Track(kind Kind) *Track {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

func (s *Stream) HasVideo() bool {
	return s.Track(KindVideo) != nil
}

// Stop stops every track.
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}
