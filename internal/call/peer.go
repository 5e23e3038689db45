package call

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/hackgods/telecare/internal/signaling"
)

type PeerState string

const (
	PeerNew          PeerState = "new"
	PeerConnecting   PeerState = "connecting"
	PeerConnected    PeerState = "connected"
	PeerDisconnected PeerState = "disconnected"
	PeerFailed       PeerState = "failed"
	PeerClosed       PeerState = "closed"
)

// RemoteTrack describes a track the other participant sends.
type RemoteTrack struct {
	StreamID string
	Kind     string
}

// Peer is the negotiation surface of a peer connection. Callbacks may run on
// any goroutine.
type Peer interface {
	AddTrack(t webrtc.TrackLocal) error
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	HandleOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	HandleAnswer(answer webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnStateChange(fn func(PeerState))
	OnRemoteTrack(fn func(RemoteTrack))
	State() PeerState
	RTT() (time.Duration, bool)
	Close() error
}

type PeerFactory func() (Peer, error)

// Signaler is the participant's connection to the signaling relay.
type Signaler interface {
	Join(room, userType string) error
	Leave(room string) error
	SendPayload(t signaling.Type, room string, payload any) error
	Messages() <-chan signaling.Message
	Close() error
}

type Dialer func(ctx context.Context) (Signaler, error)

// SignalingDialer dials the relay at url with token.
func SignalingDialer(url, token string) Dialer {
	return func(ctx context.Context) (Signaler, error) {
		c, err := signaling.Dial(ctx, url, token)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

// NewPionPeerFactory builds peers that gather candidates against stunURLs.
func NewPionPeerFactory(stunURLs []string) PeerFactory {
	cfg := webrtc.Configuration{}
	if len(stunURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunURLs}}
	}
	return func() (Peer, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}
		return &pionPeer{pc: pc}, nil
	}
}

func (p *pionPeer) AddTrack(t webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(t)
	if err != nil {
		return fmt.Errorf("add %s track: %w", t.Kind(), err)
	}
	// RTCP must be read for interceptors to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *pionPeer) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local offer: %w", err)
	}
	return offer, nil
}

func (p *pionPeer) HandleOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return answer, nil
}

func (p *pionPeer) HandleAnswer(answer webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (p *pionPeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

func (p *pionPeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (p *pionPeer) OnStateChange(fn func(PeerState)) {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		fn(PeerState(s.String()))
	})
}

func (p *pionPeer) OnRemoteTrack(fn func(RemoteTrack)) {
	p.pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(RemoteTrack{StreamID: tr.StreamID(), Kind: tr.Kind().String()})
		go func() {
			for {
				if _, _, err := tr.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})
}

func (p *pionPeer) State() PeerState {
	return PeerState(p.pc.ConnectionState().String())
}

// RTT reads the round-trip time of the nominated candidate pair.
func (p *pionPeer) RTT() (time.Duration, bool) {
	for _, s := range p.pc.GetStats() {
		pair, ok := s.(webrtc.ICECandidatePairStats)
		if !ok || !pair.Nominated || pair.CurrentRoundTripTime <= 0 {
			continue
		}
		return time.Duration(pair.CurrentRoundTripTime * float64(time.Second)), true
	}
	return 0, false
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}
