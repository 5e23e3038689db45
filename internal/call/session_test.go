package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/localmedia"
	"github.com/hackgods/telecare/internal/signaling"
)

const room = "0b7c5b7e-4a39-4b5e-9c36-2f4c1e0f6a11"

type fakeSignaler struct {
	mu     sync.Mutex
	in     chan signaling.Message
	sent   []signaling.Message
	joined []string
	left   []string
	closed bool
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{in: make(chan signaling.Message, 16)}
}

func (f *fakeSignaler) Join(room, userType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, room+"/"+userType)
	return nil
}

func (f *fakeSignaler) Leave(room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, room)
	return nil
}

func (f *fakeSignaler) SendPayload(t signaling.Type, room string, payload any) error {
	msg, err := signaling.NewMessage(t, room, payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSignaler) Messages() <-chan signaling.Message { return f.in }

func (f *fakeSignaler) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSignaler) deliver(t *testing.T, typ signaling.Type, payload any) {
	t.Helper()
	msg, err := signaling.NewMessage(typ, room, payload)
	require.NoError(t, err)
	f.in <- msg
}

func (f *fakeSignaler) sentOf(typ signaling.Type) []signaling.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []signaling.Message
	for _, m := range f.sent {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSignaler) snapshot() (joined, left []string, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joined...), append([]string(nil), f.left...), f.closed
}

type fakePeer struct {
	mu         sync.Mutex
	tracks     int
	offers     []bool
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	state      PeerState
	rtt        time.Duration
	closed     bool

	onICE   func(webrtc.ICECandidateInit)
	onState func(PeerState)
	onTrack func(RemoteTrack)
}

func (p *fakePeer) AddTrack(webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks++
	return nil
}

func (p *fakePeer) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers = append(p.offers, iceRestart)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (p *fakePeer) HandleOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = append(p.remote, offer)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (p *fakePeer) HandleAnswer(answer webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = append(p.remote, answer)
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) { p.set(func() { p.onICE = fn }) }
func (p *fakePeer) OnStateChange(fn func(PeerState)) { p.set(func() { p.onState = fn }) }
func (p *fakePeer) OnRemoteTrack(fn func(RemoteTrack)) { p.set(func() { p.onTrack = fn }) }

func (p *fakePeer) set(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

func (p *fakePeer) State() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePeer) RTT() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rtt, p.rtt > 0
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.state = PeerClosed
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) emit(st PeerState) {
	p.mu.Lock()
	p.state = st
	fn := p.onState
	p.mu.Unlock()
	fn(st)
}

func (p *fakePeer) track(rt RemoteTrack) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	fn(rt)
}

func (p *fakePeer) remoteDescriptions() []webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.SessionDescription(nil), p.remote...)
}

func (p *fakePeer) setRTT(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rtt = d
}

func (p *fakePeer) offerFlags() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.offers...)
}

type harness struct {
	src     *localmedia.SyntheticSource
	sig     *fakeSignaler
	peers   chan *fakePeer
	sess    *Session
	dialErr error
}

func newHarness(id string, src *localmedia.SyntheticSource) *harness {
	h := &harness{src: src, sig: newFakeSignaler(), peers: make(chan *fakePeer, 8)}
	h.sess = NewSession(Config{
		ConsultationID: id,
		Role:           auth.RoleDoctor,
		Media:          src,
		Dial: func(context.Context) (Signaler, error) {
			if h.dialErr != nil {
				return nil, h.dialErr
			}
			return h.sig, nil
		},
		NewPeer: func() (Peer, error) {
			p := &fakePeer{state: PeerNew}
			h.peers <- p
			return p, nil
		},
		QualityInterval: 10 * time.Millisecond,
		ReconnectGrace:  20 * time.Millisecond,
		Logger:          zerolog.Nop(),
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.sess.Start(context.Background()))
	t.Cleanup(h.sess.EndCall)
}

func (h *harness) nextPeer(t *testing.T) *fakePeer {
	t.Helper()
	select {
	case p := <-h.peers:
		return p
	case <-time.After(time.Second):
		t.Fatal("no peer created")
		return nil
	}
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.sess.Snapshot().State == want },
		time.Second, 5*time.Millisecond, "state never reached %s", want)
}

// connect drives the session to Connected through the offerer path.
func (h *harness) connect(t *testing.T) *fakePeer {
	t.Helper()
	h.sig.deliver(t, signaling.TypeRoomJoined, signaling.RoomJoinedPayload{ConsultationID: room, ParticipantCount: 1})
	h.sig.deliver(t, signaling.TypeUserJoined, signaling.UserJoinedPayload{UserID: "patient-1", UserType: "patient"})
	p := h.nextPeer(t)
	require.Eventually(t, func() bool { return len(h.sig.sentOf(signaling.TypeOffer)) == 1 }, time.Second, 5*time.Millisecond)
	p.emit(PeerConnected)
	h.waitState(t, StateConnected)
	return p
}

func TestStateTable(t *testing.T) {
	assert.True(t, StateIdle.CanTransition(StateAcquiringMedia))
	assert.True(t, StateConnected.CanTransition(StateSignaling))
	assert.True(t, StateFailed.CanTransition(StateEnded))
	assert.False(t, StateEnded.CanTransition(StateIdle))
	assert.False(t, StateIdle.CanTransition(StateConnected))
	assert.ErrorIs(t, checkTransition(StateSignaling, StateAcquiringMedia), ErrIllegalTransition)
}

func TestQualityFromRTT(t *testing.T) {
	assert.Equal(t, QualityExcellent, QualityFromRTT(40*time.Millisecond))
	assert.Equal(t, QualityGood, QualityFromRTT(150*time.Millisecond))
	assert.Equal(t, QualityGood, QualityFromRTT(399*time.Millisecond))
	assert.Equal(t, QualityPoor, QualityFromRTT(time.Second))
}

func TestSession_DisabledStaysIdle(t *testing.T) {
	h := newHarness("", &localmedia.SyntheticSource{})

	require.NoError(t, h.sess.Start(context.Background()))
	assert.False(t, h.sess.Enabled())
	assert.Equal(t, StateIdle, h.sess.Snapshot().State)
	assert.Empty(t, h.src.Requests())
	assert.ErrorIs(t, h.sess.ToggleMic(), ErrNoLocalMedia)
}

func TestSession_ToggleWithoutMedia(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	before := h.sess.Snapshot()

	assert.ErrorIs(t, h.sess.ToggleMic(), ErrNoLocalMedia)
	assert.ErrorIs(t, h.sess.ToggleCamera(), ErrNoLocalMedia)
	assert.Equal(t, before, h.sess.Snapshot())
}

func TestSession_StartJoinsRoom(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)

	snap := h.sess.Snapshot()
	assert.Equal(t, StateSignaling, snap.State)
	assert.Equal(t, QualityUnknown, snap.Quality)
	require.NotNil(t, snap.LocalStream)
	assert.Len(t, snap.LocalStream.Tracks(), 2)
	assert.True(t, snap.IsCameraEnabled)
	assert.Empty(t, snap.PermissionError)

	joined, _, _ := h.sig.snapshot()
	assert.Equal(t, []string{room + "/doctor"}, joined)
	assert.Equal(t, []localmedia.Constraints{{Audio: true, Video: true}}, h.src.Requests())
}

func TestSession_DoubleToggleRestores(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)

	require.NoError(t, h.sess.ToggleMic())
	assert.False(t, h.sess.Snapshot().IsMicEnabled)
	assert.False(t, h.sess.Snapshot().LocalStream.Track(localmedia.KindAudio).Enabled())

	require.NoError(t, h.sess.ToggleMic())
	snap := h.sess.Snapshot()
	assert.True(t, snap.IsMicEnabled)
	assert.Equal(t, StateSignaling, snap.State)

	require.NoError(t, h.sess.ToggleCamera())
	require.NoError(t, h.sess.ToggleCamera())
	assert.True(t, h.sess.Snapshot().IsCameraEnabled)
}

func TestSession_OffererConnects(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)

	p := h.connect(t)
	snap := h.sess.Snapshot()
	assert.True(t, snap.IsConnected)
	assert.Equal(t, QualityExcellent, snap.Quality)
	p.mu.Lock()
	assert.Equal(t, 2, p.tracks)
	p.mu.Unlock()
	assert.Equal(t, []bool{false}, p.offerFlags())

	var offer webrtc.SessionDescription
	require.NoError(t, json.Unmarshal(h.sig.sentOf(signaling.TypeOffer)[0].Payload, &offer))
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)

	p.setRTT(250 * time.Millisecond)
	require.Eventually(t, func() bool { return h.sess.Snapshot().Quality == QualityGood }, time.Second, 5*time.Millisecond)

	p.setRTT(600 * time.Millisecond)
	require.Eventually(t, func() bool { return h.sess.Snapshot().Quality == QualityPoor }, time.Second, 5*time.Millisecond)

	h.sig.deliver(t, signaling.TypeAnswer, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"})
	h.sig.deliver(t, signaling.TypeICECandidate, webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"})
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.remote) == 1 && len(p.candidates) == 1
	}, time.Second, 5*time.Millisecond)

	p.mu.Lock()
	onICE := p.onICE
	onTrack := p.onTrack
	p.mu.Unlock()
	onICE(webrtc.ICECandidateInit{Candidate: "candidate:2 1 udp 1 10.0.0.2 5001 typ host"})
	require.Eventually(t, func() bool { return len(h.sig.sentOf(signaling.TypeICECandidate)) == 1 }, time.Second, 5*time.Millisecond)

	onTrack(RemoteTrack{StreamID: "remote", Kind: "audio"})
	onTrack(RemoteTrack{StreamID: "remote", Kind: "video"})
	require.Eventually(t, func() bool {
		rs := h.sess.Snapshot().RemoteStream
		return rs != nil && len(rs.Kinds) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSession_AnswererAndPeerLeaves(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)

	h.sig.deliver(t, signaling.TypeOffer, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote"})
	p := h.nextPeer(t)
	require.Eventually(t, func() bool { return len(h.sig.sentOf(signaling.TypeAnswer)) == 1 }, time.Second, 5*time.Millisecond)

	p.emit(PeerConnected)
	h.waitState(t, StateConnected)

	h.sig.deliver(t, signaling.TypeUserLeft, signaling.UserLeftPayload{UserID: "patient-1"})
	h.waitState(t, StateSignaling)

	snap := h.sess.Snapshot()
	assert.False(t, snap.IsConnected)
	assert.Nil(t, snap.RemoteStream)
	assert.Equal(t, QualityUnknown, snap.Quality)
	assert.True(t, p.isClosed())
	assert.NotNil(t, snap.LocalStream)
}

func TestSession_RenegotiationKeepsPeer(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)

	h.sig.deliver(t, signaling.TypeOffer, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote"})
	p := h.nextPeer(t)
	require.Eventually(t, func() bool { return len(h.sig.sentOf(signaling.TypeAnswer)) == 1 }, time.Second, 5*time.Millisecond)
	p.emit(PeerConnected)
	p.track(RemoteTrack{StreamID: "remote", Kind: "audio"})
	h.waitState(t, StateConnected)
	require.Eventually(t, func() bool { return h.sess.Snapshot().RemoteStream != nil }, time.Second, 5*time.Millisecond)

	// The remote side restarts ICE on the same connection.
	h.sig.deliver(t, signaling.TypeOffer, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 ice-restart"})
	require.Eventually(t, func() bool { return len(h.sig.sentOf(signaling.TypeAnswer)) == 2 }, time.Second, 5*time.Millisecond)

	assert.Empty(t, h.peers, "renegotiation must not build a new peer")
	assert.False(t, p.isClosed())
	remote := p.remoteDescriptions()
	require.Len(t, remote, 2)
	assert.Equal(t, "v=0 ice-restart", remote[1].SDP)

	snap := h.sess.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.True(t, snap.IsConnected)
	require.NotNil(t, snap.RemoteStream)
	assert.Equal(t, []string{"audio"}, snap.RemoteStream.Kinds)
}

func TestSession_OfferAfterPeerClosedBuildsNewPeer(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)
	p := h.connect(t)

	h.sig.deliver(t, signaling.TypeUserLeft, signaling.UserLeftPayload{UserID: "patient-1"})
	h.waitState(t, StateSignaling)
	require.True(t, p.isClosed())

	h.sig.deliver(t, signaling.TypeOffer, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 rejoin"})
	next := h.nextPeer(t)
	require.Eventually(t, func() bool { return len(next.remoteDescriptions()) == 1 }, time.Second, 5*time.Millisecond)
	assert.NotSame(t, p, next)
}

func TestSession_ReplacedPeerResetsRemoteState(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)
	p := h.connect(t)
	p.track(RemoteTrack{StreamID: "remote", Kind: "video"})
	require.Eventually(t, func() bool { return h.sess.Snapshot().RemoteStream != nil }, time.Second, 5*time.Millisecond)

	// The other participant rejoins without a user-left in between.
	h.sig.deliver(t, signaling.TypeUserJoined, signaling.UserJoinedPayload{UserID: "patient-1", UserType: "patient"})
	next := h.nextPeer(t)
	h.waitState(t, StateSignaling)

	snap := h.sess.Snapshot()
	assert.True(t, p.isClosed())
	assert.False(t, next.isClosed())
	assert.False(t, snap.IsConnected)
	assert.Nil(t, snap.RemoteStream)
	assert.Equal(t, QualityUnknown, snap.Quality)

	// Late events from the replaced peer are ignored.
	p.emit(PeerConnected)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateSignaling, h.sess.Snapshot().State)
}

func TestSession_DisconnectRestartsICE(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)
	p := h.connect(t)

	p.emit(PeerDisconnected)
	h.waitState(t, StateSignaling)
	assert.Equal(t, QualityPoor, h.sess.Snapshot().Quality)

	require.Eventually(t, func() bool {
		flags := p.offerFlags()
		return len(flags) == 2 && flags[1]
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.sig.sentOf(signaling.TypeOffer)) == 2 }, time.Second, 5*time.Millisecond)

	p.emit(PeerConnected)
	h.waitState(t, StateConnected)
}

func TestSession_PeerFailure(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)
	p := h.connect(t)
	stream := h.sess.Snapshot().LocalStream

	p.emit(PeerFailed)
	h.waitState(t, StateFailed)

	snap := h.sess.Snapshot()
	assert.ErrorIs(t, snap.LastError, ErrPeerFailed)
	assert.Nil(t, snap.LocalStream)
	for _, tr := range stream.Tracks() {
		assert.True(t, tr.Stopped())
	}
}

func TestSession_EndCallReleasesEverything(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)
	p := h.connect(t)
	stream := h.sess.Snapshot().LocalStream

	h.sess.EndCall()

	snap := h.sess.Snapshot()
	assert.Equal(t, StateEnded, snap.State)
	assert.Nil(t, snap.LocalStream)
	assert.Nil(t, snap.RemoteStream)
	assert.False(t, snap.IsConnected)
	for _, tr := range stream.Tracks() {
		assert.True(t, tr.Stopped(), "track %s still live", tr.Kind())
	}
	assert.True(t, p.isClosed())

	_, left, closed := h.sig.snapshot()
	assert.Equal(t, []string{room}, left)
	assert.True(t, closed)

	assert.NotPanics(t, h.sess.EndCall)
	assert.ErrorIs(t, h.sess.ToggleMic(), ErrNoLocalMedia)

	var last Snapshot
	for s := range h.sess.Updates() {
		last = s
	}
	assert.Equal(t, StateEnded, last.State)
}

func TestSession_AudioOnlyFallback(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{DenyVideo: true})
	h.start(t)

	snap := h.sess.Snapshot()
	assert.Equal(t, StateSignaling, snap.State)
	assert.Equal(t, MsgAudioOnly, snap.PermissionError)
	assert.False(t, snap.IsCameraEnabled)
	assert.True(t, snap.IsMicEnabled)
	assert.ErrorIs(t, h.sess.ToggleCamera(), ErrNoLocalMedia)
	assert.Len(t, h.src.Requests(), 2)
}

func TestSession_AudioDenied(t *testing.T) {
	for name, tc := range map[string]struct {
		src  *localmedia.SyntheticSource
		want string
	}{
		"denied":    {&localmedia.SyntheticSource{DenyAudio: true}, MsgMicDenied},
		"not found": {&localmedia.SyntheticSource{MissingAudio: true, MissingVideo: true}, MsgMicNotFound},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(room, tc.src)

			err := h.sess.Start(context.Background())
			var perr *PermissionError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tc.want, perr.Message)

			snap := h.sess.Snapshot()
			assert.Equal(t, StateFailed, snap.State)
			assert.Equal(t, tc.want, snap.PermissionError)
			assert.Nil(t, snap.LocalStream)

			h.sess.EndCall()
			assert.Equal(t, StateEnded, h.sess.Snapshot().State)
		})
	}
	assert.Len(t, PermissionRemediation(), 3)
}

func TestSession_DialFailure(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.dialErr = errors.New("connection refused")

	err := h.sess.Start(context.Background())
	require.Error(t, err)

	snap := h.sess.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.ErrorContains(t, snap.LastError, "connection refused")
	for _, s := range h.src.Streams() {
		for _, tr := range s.Tracks() {
			assert.True(t, tr.Stopped())
		}
	}
}

func TestSession_JoinRefused(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)

	h.sig.deliver(t, signaling.TypeError, signaling.ErrorPayload{Message: "consultation room is not open"})
	h.waitState(t, StateFailed)
	assert.ErrorContains(t, h.sess.Snapshot().LastError, "not open")
}

func TestSession_SignalingDrop(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	h.start(t)

	close(h.sig.in)
	h.waitState(t, StateFailed)
	assert.ErrorIs(t, h.sess.Snapshot().LastError, ErrSignalingClosed)
}

func TestSession_ContextCancelEnds(t *testing.T) {
	h := newHarness(room, &localmedia.SyntheticSource{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.sess.Start(ctx))
	stream := h.sess.Snapshot().LocalStream

	cancel()
	h.waitState(t, StateEnded)
	for _, tr := range stream.Tracks() {
		assert.True(t, tr.Stopped())
	}
}
