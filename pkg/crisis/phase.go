// Package crisis provides the emergency protocol engine: session phases,
// emergency classification, and the escalation state machine that tracks
// step confirmation progress across an emergency episode.
package crisis

import "encoding/json"

// Phase represents where a session is in its conversation lifecycle.
type Phase int

const (
	PhaseStandby Phase = iota
	PhaseListening
	PhaseProcessing
	PhaseSpeaking
	PhaseEscalating
	PhaseEmergency
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseStandby:
		return "standby"
	case PhaseListening:
		return "listening"
	case PhaseProcessing:
		return "processing"
	case PhaseSpeaking:
		return "speaking"
	case PhaseEscalating:
		return "escalating"
	case PhaseEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Phase) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "standby":
		*p = PhaseStandby
	case "listening":
		*p = PhaseListening
	case "processing":
		*p = PhaseProcessing
	case "speaking":
		*p = PhaseSpeaking
	case "escalating":
		*p = PhaseEscalating
	case "emergency":
		*p = PhaseEmergency
	default:
		*p = PhaseStandby
	}
	return nil
}

// Active reports whether the session has left standby.
func (p Phase) Active() bool {
	return p != PhaseStandby
}

// InEmergency reports whether an emergency pathway owns the session.
func (p Phase) InEmergency() bool {
	return p == PhaseEscalating || p == PhaseEmergency
}
