package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/localmedia"
	"github.com/hackgods/telecare/internal/signaling"
)

var (
	ErrNoLocalMedia    = errors.New("no local media")
	ErrSessionEnded    = errors.New("call ended")
	ErrSignalingClosed = errors.New("signaling connection closed")
	ErrPeerFailed      = errors.New("peer connection failed")
)

const (
	defaultSampleInterval = 2 * time.Second
	defaultReconnectGrace = 2 * time.Second
)

type Config struct {
	// ConsultationID names the signaling room. Empty disables the session.
	ConsultationID string
	Role           auth.Role

	Media   localmedia.Source
	Dial    Dialer
	NewPeer PeerFactory

	QualityInterval time.Duration
	ReconnectGrace  time.Duration
	Logger          zerolog.Logger
}

// RemoteStream is what the other participant currently sends.
type RemoteStream struct {
	ID    string
	Kinds []string
}

type Snapshot struct {
	State           State
	LocalStream     *localmedia.Stream
	RemoteStream    *RemoteStream
	IsConnected     bool
	Quality         Quality
	IsMicEnabled    bool
	IsCameraEnabled bool
	PermissionError string
	LastError       error
}

// Session is one participant's call. All methods are safe for concurrent use.
type Session struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	snap    Snapshot
	sig     Signaler
	peer    Peer
	joined  bool
	updates chan Snapshot
	closed  bool

	events  chan func()
	done    chan struct{}
	endOnce sync.Once
}

func NewSession(cfg Config) *Session {
	if cfg.QualityInterval <= 0 {
		cfg.QualityInterval = defaultSampleInterval
	}
	if cfg.ReconnectGrace <= 0 {
		cfg.ReconnectGrace = defaultReconnectGrace
	}
	return &Session{
		cfg: cfg,
		log: cfg.Logger.With().Str("consultation_id", cfg.ConsultationID).Logger(),
		snap: Snapshot{
			State:           StateIdle,
			Quality:         QualityUnknown,
			IsMicEnabled:    true,
			IsCameraEnabled: true,
		},
		updates: make(chan Snapshot, 16),
		events:  make(chan func(), 64),
		done:    make(chan struct{}),
	}
}

// Enabled reports whether the session was given a room.
func (s *Session) Enabled() bool {
	return s.cfg.ConsultationID != ""
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Updates yields a snapshot after every change. Slow readers miss
// intermediate snapshots. The channel closes when the call ends.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

// Start acquires media, joins the room and negotiates in the background until
// EndCall or ctx is cancelled. A disabled session returns nil and stays idle.
func (s *Session) Start(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	s.mu.Lock()
	err := s.setStateLocked(StateAcquiringMedia)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	stream, permMsg, err := s.acquire(ctx)
	if err != nil {
		var perr *PermissionError
		if errors.As(err, &perr) {
			s.fail(err, perr.Message)
		} else {
			s.fail(err, "")
		}
		return err
	}

	s.mu.Lock()
	if s.snap.State != StateAcquiringMedia {
		s.mu.Unlock()
		stream.Stop()
		return ErrSessionEnded
	}
	s.snap.LocalStream = stream
	s.snap.PermissionError = permMsg
	s.snap.IsCameraEnabled = stream.HasVideo()
	s.snap.IsMicEnabled = true
	_ = s.setStateLocked(StateSignaling)
	s.mu.Unlock()

	sig, err := s.cfg.Dial(ctx)
	if err != nil {
		err = fmt.Errorf("dial signaling: %w", err)
		s.fail(err, "")
		return err
	}

	s.mu.Lock()
	if s.snap.State != StateSignaling {
		s.mu.Unlock()
		_ = sig.Close()
		return ErrSessionEnded
	}
	s.sig = sig
	s.mu.Unlock()

	if err := sig.Join(s.cfg.ConsultationID, string(s.cfg.Role)); err != nil {
		err = fmt.Errorf("join room: %w", err)
		s.fail(err, "")
		return err
	}

	go s.run(ctx, sig.Messages())
	return nil
}

// acquire asks for audio and video, then falls back to audio only.
func (s *Session) acquire(ctx context.Context) (*localmedia.Stream, string, error) {
	stream, err := s.cfg.Media.Acquire(ctx, localmedia.Constraints{Audio: true, Video: true})
	if err == nil {
		return stream, "", nil
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	s.log.Warn().Err(err).Msg("audio+video unavailable, trying audio only")

	stream, err = s.cfg.Media.Acquire(ctx, localmedia.Constraints{Audio: true})
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", audioFailure(err)
	}
	return stream, MsgAudioOnly, nil
}

func (s *Session) ToggleMic() error {
	return s.toggle(localmedia.KindAudio)
}

func (s *Session) ToggleCamera() error {
	return s.toggle(localmedia.KindVideo)
}

func (s *Session) toggle(kind localmedia.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.snap.State.hasLocalMedia() || s.snap.LocalStream == nil {
		return ErrNoLocalMedia
	}
	t := s.snap.LocalStream.Track(kind)
	if t == nil {
		return fmt.Errorf("%w: no %s track", ErrNoLocalMedia, kind)
	}
	if err := t.SetEnabled(!t.Enabled()); err != nil {
		return err
	}

	if kind == localmedia.KindAudio {
		s.snap.IsMicEnabled = t.Enabled()
	} else {
		s.snap.IsCameraEnabled = t.Enabled()
	}
	s.publishLocked()
	return nil
}

// EndCall leaves the room and releases every resource. Calling it again does nothing.
func (s *Session) EndCall() {
	s.mu.Lock()
	if s.snap.State == StateEnded {
		s.mu.Unlock()
		return
	}
	s.releaseLocked()
	_ = s.setStateLocked(StateEnded)
	s.closed = true
	close(s.updates)
	s.mu.Unlock()

	s.endOnce.Do(func() { close(s.done) })
}

// fail moves to Failed and releases resources.
func (s *Session) fail(err error, permMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State == StateEnded || s.snap.State == StateFailed {
		return
	}
	s.log.Error().Err(err).Str("state", string(s.snap.State)).Msg("call failed")

	s.releaseLocked()
	s.snap.LastError = err
	if permMsg != "" {
		s.snap.PermissionError = permMsg
	}
	_ = s.setStateLocked(StateFailed)
}

func (s *Session) releaseLocked() {
	if s.sig != nil {
		if err := s.sig.Leave(s.cfg.ConsultationID); err != nil {
			s.log.Debug().Err(err).Msg("leave room")
		}
		_ = s.sig.Close()
		s.sig = nil
	}
	if s.peer != nil {
		_ = s.peer.Close()
		s.peer = nil
	}
	if s.snap.LocalStream != nil {
		s.snap.LocalStream.Stop()
		s.snap.LocalStream = nil
	}
	s.joined = false
	s.snap.RemoteStream = nil
	s.snap.IsConnected = false
	s.snap.Quality = QualityUnknown
}

func (s *Session) setStateLocked(to State) error {
	from := s.snap.State
	if err := checkTransition(from, to); err != nil {
		return err
	}
	s.snap.State = to
	if to == StateSignaling {
		s.snap.Quality = QualityUnknown
	}
	s.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("call state")
	s.publishLocked()
	return nil
}

func (s *Session) publishLocked() {
	if s.closed {
		return
	}
	snap := s.snap
	for {
		select {
		case s.updates <- snap:
			return
		default:
		}
		// Drop the oldest snapshot to make room.
		select {
		case <-s.updates:
		default:
		}
	}
}

// post queues fn on the session goroutine.
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

func (s *Session) run(ctx context.Context, msgs <-chan signaling.Message) {
	ticker := time.NewTicker(s.cfg.QualityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.EndCall()
			return
		case <-s.done:
			return
		case fn := <-s.events:
			fn()
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				s.fail(ErrSignalingClosed, "")
				continue
			}
			s.handleMessage(msg)
		case <-ticker.C:
			s.sampleQuality()
		}
	}
}

func (s *Session) handleMessage(msg signaling.Message) {
	switch msg.Type {
	case signaling.TypeRoomJoined:
		var p signaling.RoomJoinedPayload
		_ = json.Unmarshal(msg.Payload, &p)
		s.mu.Lock()
		s.joined = true
		s.mu.Unlock()
		s.log.Info().Int("participants", p.ParticipantCount).Msg("joined room")

	case signaling.TypeUserJoined:
		var p signaling.UserJoinedPayload
		_ = json.Unmarshal(msg.Payload, &p)
		s.log.Info().Str("user_type", p.UserType).Msg("participant joined, sending offer")

		peer, err := s.newPeer()
		if err != nil {
			s.fail(err, "")
			return
		}
		offer, err := peer.CreateOffer(false)
		if err != nil {
			s.log.Error().Err(err).Msg("create offer")
			return
		}
		s.send(signaling.TypeOffer, offer)

	case signaling.TypeOffer:
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(msg.Payload, &offer); err != nil {
			s.log.Warn().Err(err).Msg("bad offer")
			return
		}
		// An offer on a live peer is a renegotiation, such as an ICE restart.
		peer := s.currentPeer()
		if peer == nil || peer.State() == PeerClosed || peer.State() == PeerFailed {
			var err error
			if peer, err = s.newPeer(); err != nil {
				s.fail(err, "")
				return
			}
		}
		answer, err := peer.HandleOffer(offer)
		if err != nil {
			s.log.Error().Err(err).Msg("handle offer")
			return
		}
		s.send(signaling.TypeAnswer, answer)

	case signaling.TypeAnswer:
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(msg.Payload, &answer); err != nil {
			s.log.Warn().Err(err).Msg("bad answer")
			return
		}
		if peer := s.currentPeer(); peer != nil {
			if err := peer.HandleAnswer(answer); err != nil {
				s.log.Error().Err(err).Msg("handle answer")
			}
		}

	case signaling.TypeICECandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Payload, &cand); err != nil {
			s.log.Warn().Err(err).Msg("bad candidate")
			return
		}
		if peer := s.currentPeer(); peer != nil {
			if err := peer.AddICECandidate(cand); err != nil {
				s.log.Warn().Err(err).Msg("add candidate")
			}
		}

	case signaling.TypeUserLeft:
		s.log.Info().Msg("participant left")
		s.mu.Lock()
		if s.peer != nil {
			_ = s.peer.Close()
			s.peer = nil
		}
		s.snap.RemoteStream = nil
		s.snap.IsConnected = false
		s.snap.Quality = QualityUnknown
		if s.snap.State == StateConnected {
			_ = s.setStateLocked(StateSignaling)
		} else {
			s.publishLocked()
		}
		s.mu.Unlock()

	case signaling.TypeError:
		var p signaling.ErrorPayload
		_ = json.Unmarshal(msg.Payload, &p)
		err := fmt.Errorf("signaling: %s", p.Message)

		s.mu.Lock()
		joined := s.joined
		s.mu.Unlock()
		if !joined {
			s.fail(err, "")
			return
		}
		s.log.Warn().Err(err).Msg("relay error")

	default:
		s.log.Debug().Str("type", string(msg.Type)).Msg("ignoring message")
	}
}

func (s *Session) currentPeer() Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// newPeer replaces the current peer with a fresh one carrying the local tracks.
// Replacing a peer drops its remote stream and connection status.
func (s *Session) newPeer() (Peer, error) {
	peer, err := s.cfg.NewPeer()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.peer != nil {
		_ = s.peer.Close()
		s.snap.RemoteStream = nil
		s.snap.IsConnected = false
		s.snap.Quality = QualityUnknown
		if s.snap.State == StateConnected {
			_ = s.setStateLocked(StateSignaling)
		} else {
			s.publishLocked()
		}
	}
	s.peer = peer
	var tracks []*localmedia.Track
	if s.snap.LocalStream != nil {
		tracks = s.snap.LocalStream.Tracks()
	}
	s.mu.Unlock()

	for _, t := range tracks {
		if err := peer.AddTrack(t.Local()); err != nil {
			return nil, err
		}
	}

	peer.OnICECandidate(func(c webrtc.ICECandidateInit) {
		s.post(func() {
			if s.currentPeer() == peer {
				s.send(signaling.TypeICECandidate, c)
			}
		})
	})
	peer.OnStateChange(func(st PeerState) {
		s.post(func() { s.onPeerState(peer, st) })
	})
	peer.OnRemoteTrack(func(rt RemoteTrack) {
		s.post(func() { s.onRemoteTrack(peer, rt) })
	})
	return peer, nil
}

func (s *Session) onPeerState(peer Peer, st PeerState) {
	s.mu.Lock()
	if s.peer != peer {
		s.mu.Unlock()
		return
	}

	switch st {
	case PeerConnected:
		s.snap.IsConnected = true
		s.snap.Quality = QualityExcellent
		if s.snap.State == StateSignaling {
			_ = s.setStateLocked(StateConnected)
		} else {
			s.publishLocked()
		}
		s.mu.Unlock()
		s.sampleQuality()
		return

	case PeerConnecting:
		s.snap.Quality = QualityGood
		s.publishLocked()

	case PeerDisconnected:
		s.snap.IsConnected = false
		s.snap.Quality = QualityPoor
		if s.snap.State == StateConnected {
			_ = s.setStateLocked(StateSignaling)
			s.snap.Quality = QualityPoor
		}
		s.publishLocked()
		time.AfterFunc(s.cfg.ReconnectGrace, func() {
			s.post(func() { s.restartICE(peer) })
		})

	case PeerFailed:
		s.mu.Unlock()
		s.fail(ErrPeerFailed, "")
		return
	}
	s.mu.Unlock()
}

// restartICE renegotiates if peer is still the current, disconnected peer.
func (s *Session) restartICE(peer Peer) {
	if s.currentPeer() != peer || peer.State() != PeerDisconnected {
		return
	}
	s.log.Info().Msg("peer still disconnected, restarting ICE")

	offer, err := peer.CreateOffer(true)
	if err != nil {
		s.log.Error().Err(err).Msg("ice restart offer")
		return
	}
	s.send(signaling.TypeOffer, offer)
}

func (s *Session) onRemoteTrack(peer Peer, rt RemoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer != peer {
		return
	}
	// Snapshots already handed out keep their own copy.
	next := &RemoteStream{ID: rt.StreamID}
	if cur := s.snap.RemoteStream; cur != nil && cur.ID == rt.StreamID {
		next.Kinds = slices.Clone(cur.Kinds)
	}
	next.Kinds = append(next.Kinds, rt.Kind)
	s.snap.RemoteStream = next
	s.publishLocked()
}

func (s *Session) sampleQuality() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State != StateConnected || s.peer == nil {
		return
	}
	rtt, ok := s.peer.RTT()
	if !ok {
		return
	}
	if q := QualityFromRTT(rtt); q != s.snap.Quality {
		s.snap.Quality = q
		s.publishLocked()
	}
}

func (s *Session) send(t signaling.Type, payload any) {
	s.mu.Lock()
	sig := s.sig
	s.mu.Unlock()
	if sig == nil {
		return
	}
	if err := sig.SendPayload(t, s.cfg.ConsultationID, payload); err != nil {
		s.log.Warn().Err(err).Str("type", string(t)).Msg("send signaling message")
	}
}
