// Package signaling relays WebRTC session setup between the two participants
// of a consultation room over WebSocket.
package signaling

import (
	"encoding/json"
	"fmt"
)

type Type string

const (
	TypeJoinRoom     Type = "join-room"
	TypeRoomJoined   Type = "room-joined"
	TypeUserJoined   Type = "user-joined"
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"
	TypeLeaveRoom    Type = "leave-room"
	TypeUserLeft     Type = "user-left"
	TypeError        Type = "error"
)

// Message is the single frame shape on the wire in both directions.
type Message struct {
	Type           Type            `json:"type"`
	ConsultationID string          `json:"consultationId"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	SenderID       string          `json:"senderId,omitempty"`
}

type JoinPayload struct {
	UserType string `json:"userType"`
}

type RoomJoinedPayload struct {
	ConsultationID   string `json:"consultationId"`
	ParticipantCount int    `json:"participantCount"`
}

type UserJoinedPayload struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessage encodes payload into a message for room. A nil payload is omitted.
func NewMessage(t Type, room string, payload any) (Message, error) {
	msg := Message{Type: t, ConsultationID: room}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	msg.Payload = raw
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

func (t Type) relayed() bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	default:
		return false
	}
}
