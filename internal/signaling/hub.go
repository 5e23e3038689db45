package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/auth"
	redisclient "github.com/hackgods/telecare/internal/redis"
)

var (
	ErrNotInRoom      = errors.New("not joined to this consultation room")
	ErrUnknownType    = errors.New("unknown message type")
	ErrMissingRoom    = errors.New("consultationId is required")
	ErrPeerNotRunning = errors.New("peer is not registered")
)

// JoinPolicy decides whether a caller may enter a consultation room.
type JoinPolicy interface {
	Authorize(ctx context.Context, room string, who auth.Principal) error
}

// AllowAll admits everyone. Used by the load simulator and tests.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string, auth.Principal) error { return nil }

// Peer is one WebSocket connection registered with the hub.
type Peer struct {
	ID        string
	Principal auth.Principal
	Send      chan []byte

	// guarded by Hub.mu
	rooms map[string]struct{}
}

func NewPeer(id string, who auth.Principal) *Peer {
	return &Peer{
		ID:        id,
		Principal: who,
		Send:      make(chan []byte, 64),
		rooms:     make(map[string]struct{}),
	}
}

// Hub tracks consultation rooms and the peers in them.
// Rooms are created on first join and deleted when the last peer leaves.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Peer]struct{}
	all   map[*Peer]struct{}

	policy   JoinPolicy
	presence redisclient.Presence
	logger   zerolog.Logger
}

// NewHub creates a hub. presence may be nil when rooms are not mirrored to Redis.
func NewHub(policy JoinPolicy, presence redisclient.Presence, logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:    make(map[string]map[*Peer]struct{}),
		all:      make(map[*Peer]struct{}),
		policy:   policy,
		presence: presence,
		logger:   logger,
	}
}

func (h *Hub) Register(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[p] = struct{}{}
}

// Unregister removes p from every room, tells the others and closes p.Send.
func (h *Hub) Unregister(ctx context.Context, p *Peer) {
	h.mu.Lock()
	if _, ok := h.all[p]; !ok {
		h.mu.Unlock()
		return
	}
	var left []string
	for room := range p.rooms {
		h.leaveLocked(p, room)
		left = append(left, room)
	}
	delete(h.all, p)
	close(p.Send)
	h.mu.Unlock()

	for _, room := range left {
		h.presenceLeave(ctx, room, p.ID)
	}
}

// Handle dispatches one inbound message from p.
func (h *Hub) Handle(ctx context.Context, p *Peer, msg Message) error {
	if msg.ConsultationID == "" {
		return ErrMissingRoom
	}

	switch {
	case msg.Type == TypeJoinRoom:
		var join JoinPayload
		if len(msg.Payload) > 0 {
			if err := msg.Decode(&join); err != nil {
				return err
			}
		}
		if join.UserType == "" {
			join.UserType = string(p.Principal.Role)
		}
		_, err := h.Join(ctx, p, msg.ConsultationID, join.UserType)
		return err
	case msg.Type == TypeLeaveRoom:
		h.Leave(ctx, p, msg.ConsultationID)
		return nil
	case msg.Type.relayed():
		return h.Relay(p, msg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

// Join admits p into room and returns the participant count after joining.
// The joiner gets room-joined; everybody else gets user-joined.
func (h *Hub) Join(ctx context.Context, p *Peer, room, userType string) (int, error) {
	if err := h.policy.Authorize(ctx, room, p.Principal); err != nil {
		return 0, err
	}

	joined, err := NewMessage(TypeUserJoined, room, UserJoinedPayload{UserID: p.ID, UserType: userType})
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	if _, ok := h.all[p]; !ok {
		h.mu.Unlock()
		return 0, ErrPeerNotRunning
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Peer]struct{})
		h.rooms[room] = members
	}
	members[p] = struct{}{}
	p.rooms[room] = struct{}{}
	count := len(members)

	h.broadcastLocked(room, p, joined)
	if ack, err := NewMessage(TypeRoomJoined, room, RoomJoinedPayload{ConsultationID: room, ParticipantCount: count}); err == nil {
		h.deliver(p, ack)
	}
	h.mu.Unlock()

	h.logger.Info().
		Str("room", room).
		Str("peer_id", p.ID).
		Str("user_type", userType).
		Int("participants", count).
		Msg("peer joined room")

	if h.presence != nil {
		if err := h.presence.Join(ctx, room, p.ID); err != nil {
			h.logger.Warn().Err(err).Str("room", room).Msg("presence join failed")
		}
	}

	return count, nil
}

// Relay forwards an offer, answer or candidate to the other peers in the room.
func (h *Hub) Relay(p *Peer, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := p.rooms[msg.ConsultationID]; !ok {
		return ErrNotInRoom
	}
	msg.SenderID = p.ID
	h.broadcastLocked(msg.ConsultationID, p, msg)
	return nil
}

// Leave removes p from room. Leaving a room p is not in is a no-op.
func (h *Hub) Leave(ctx context.Context, p *Peer, room string) {
	h.mu.Lock()
	_, in := p.rooms[room]
	if in {
		h.leaveLocked(p, room)
	}
	h.mu.Unlock()

	if in {
		h.presenceLeave(ctx, room, p.ID)
	}
}

func (h *Hub) leaveLocked(p *Peer, room string) {
	delete(p.rooms, room)

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, p)

	if len(members) == 0 {
		delete(h.rooms, room)
		h.logger.Info().Str("room", room).Msg("room closed")
		return
	}

	left, err := NewMessage(TypeUserLeft, room, UserLeftPayload{UserID: p.ID})
	if err == nil {
		h.broadcastLocked(room, p, left)
	}
}

func (h *Hub) presenceLeave(ctx context.Context, room, peerID string) {
	if h.presence == nil {
		return
	}
	if err := h.presence.Leave(ctx, room, peerID); err != nil {
		h.logger.Warn().Err(err).Str("room", room).Msg("presence leave failed")
	}
}

// broadcastLocked sends msg to every member of room except from. h.mu must be held.
func (h *Hub) broadcastLocked(room string, from *Peer, msg Message) {
	for member := range h.rooms[room] {
		if member == from {
			continue
		}
		h.deliver(member, msg)
	}
}

func (h *Hub) deliver(p *Peer, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to marshal signaling message")
		return
	}
	select {
	case p.Send <- data:
	default:
		h.logger.Warn().Str("peer_id", p.ID).Str("type", string(msg.Type)).Msg("peer send buffer full, dropping message")
	}
}

// SendError reports a failed request back to p only.
func (h *Hub) SendError(p *Peer, room string, err error) {
	msg, mErr := NewMessage(TypeError, room, ErrorPayload{Message: err.Error()})
	if mErr != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[p]; ok {
		h.deliver(p, msg)
	}
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) ParticipantCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}
