// Package call runs one participant's side of a video consultation: local
// media, the signaling room and the peer connection.
package call

import (
	"errors"
	"fmt"
	"time"
)

type State string

const (
	StateIdle           State = "idle"
	StateAcquiringMedia State = "acquiring_media"
	StateSignaling      State = "signaling"
	StateConnected      State = "connected"
	StateEnded          State = "ended"
	StateFailed         State = "failed"
)

var ErrIllegalTransition = errors.New("illegal call state transition")

var transitions = map[State][]State{
	StateIdle:           {StateAcquiringMedia, StateEnded},
	StateAcquiringMedia: {StateSignaling, StateFailed, StateEnded},
	StateSignaling:      {StateConnected, StateFailed, StateEnded},
	StateConnected:      {StateSignaling, StateFailed, StateEnded},
	StateFailed:         {StateEnded},
	StateEnded:          nil,
}

func (s State) CanTransition(to State) bool {
	for _, n := range transitions[s] {
		if n == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// hasLocalMedia reports whether tracks exist in s.
func (s State) hasLocalMedia() bool {
	return s == StateSignaling || s == StateConnected
}

type Quality string

const (
	QualityUnknown   Quality = "unknown"
	QualityPoor      Quality = "poor"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// QualityFromRTT grades a round-trip time.
func QualityFromRTT(rtt time.Duration) Quality {
	switch {
	case rtt < 150*time.Millisecond:
		return QualityExcellent
	case rtt < 400*time.Millisecond:
		return QualityGood
	default:
		return QualityPoor
	}
}
