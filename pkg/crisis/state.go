package crisis

import "time"

// TerminalLevel is the escalation level at which the per-step protocol
// stops and the emergency call pathway takes over. Reaching it is one-way
// for the episode: a later confirmation does not recall the call.
const TerminalLevel = 3

// State tracks one emergency episode within a session. A zero State means
// no protocol is active. State is not safe for concurrent use; the owning
// session serializes access.
type State struct {
	EmergencyType       EmergencyType `json:"emergency_type"`
	CurrentStep         int           `json:"current_step"`
	StepsCompleted      []int         `json:"steps_completed,omitempty"`
	PendingConfirmation bool          `json:"pending_confirmation"`
	ConfirmationTimeout time.Duration `json:"confirmation_timeout"`
	EscalationLevel     int           `json:"escalation_level"`

	// Advisory flags set as the protocol learns about the situation.
	SafetyConfirmed   bool `json:"safety_confirmed"`
	LocationConfirmed bool `json:"location_confirmed"`

	// callTriggered latches once the terminal level has handed the
	// episode to the call orchestrator.
	callTriggered bool
}

// Active reports whether an emergency protocol is in progress.
func (s *State) Active() bool {
	return s.CurrentStep > 0
}

// StartProtocol begins a new emergency episode of the given type.
// All per-episode counters reset; step numbering starts at 1.
func (s *State) StartProtocol(typ EmergencyType) {
	s.EmergencyType = typ
	s.CurrentStep = 1
	s.StepsCompleted = nil
	s.PendingConfirmation = false
	s.ConfirmationTimeout = 0
	s.EscalationLevel = 0
	s.SafetyConfirmed = false
	s.LocationConfirmed = false
	s.callTriggered = false
}

// ConfirmStep records a positive confirmation for the current step and
// advances the protocol.
func (s *State) ConfirmStep() {
	s.StepsCompleted = append(s.StepsCompleted, s.CurrentStep)
	s.CurrentStep++
	s.PendingConfirmation = false
	s.ConfirmationTimeout = 0
}

// AwaitConfirmation marks the current step as pending a confirming reply
// within the given timeout.
func (s *State) AwaitConfirmation(timeout time.Duration) {
	s.PendingConfirmation = true
	s.ConfirmationTimeout = timeout
}

// Escalate raises the escalation level by one and clears any pending
// confirmation. The caller decides whether to re-arm a timer or, at the
// terminal level, hand off to the call orchestrator.
func (s *State) Escalate() {
	s.EscalationLevel++
	s.PendingConfirmation = false
	s.ConfirmationTimeout = 0
}

// Terminal reports whether the episode has reached the terminal
// escalation level.
func (s *State) Terminal() bool {
	return s.EscalationLevel >= TerminalLevel
}

// TriggerCall latches the one-shot emergency call trigger. It returns true
// exactly once per episode, on the first call at or past the terminal
// level.
func (s *State) TriggerCall() bool {
	if !s.Terminal() || s.callTriggered {
		return false
	}
	s.callTriggered = true
	return true
}

// CallTriggered reports whether this episode already invoked the call
// pathway.
func (s *State) CallTriggered() bool {
	return s.callTriggered
}

// Reset clears the episode entirely, e.g. on protocol completion or
// session reset.
func (s *State) Reset() {
	*s = State{}
}
