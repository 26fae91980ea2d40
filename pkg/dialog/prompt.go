package dialog

import (
	"fmt"
	"strings"
)

// PromptKind selects the register of a generated reply.
type PromptKind int

const (
	// KindConversation is a regular, non-emergency turn.
	KindConversation PromptKind = iota

	// KindEmergencyStep asks the protocol question for the current step.
	KindEmergencyStep

	// KindEscalationWarning is the harder follow-up after a step timed
	// out without confirmation.
	KindEscalationWarning

	// KindCheckIn is the proactive monitor's gentle nudge to a silent
	// user.
	KindCheckIn

	// KindCallNotice explains that automatic calling has been triggered.
	KindCallNotice
)

// Prompt is the structured context handed to a Generator. The state
// machine owns the counters; the model owns the wording.
type Prompt struct {
	Kind      PromptKind
	UserInput string
	Session   *SessionContext

	// Script, when set, is the deterministic wording used if the
	// generator fails. The escalation engine fills it from the fixed
	// protocol step tables.
	Script string
}

// System renders the system prompt for the generator.
func (p *Prompt) System() string {
	var sb strings.Builder
	sb.WriteString("You are a crisis response voice assistant that takes complete control of conversations, especially in emergencies.\n")
	sb.WriteString("Rules: be direct and action-oriented; use clear simple language suitable for voice; never use markdown formatting; keep replies under 2 sentences.\n")

	s := p.Session
	if s != nil {
		fmt.Fprintf(&sb, "\nCurrent state: phase=%s emergency=%s step=%d escalation_level=%d silence_count=%d\n",
			s.Phase, s.Emergency, s.Step, s.Level, s.SilenceCount)
		if n := len(s.History); n > 0 {
			sb.WriteString("Recent turns:\n")
			start := 0
			if n > 6 {
				start = n - 6
			}
			for _, ex := range s.History[start:] {
				fmt.Fprintf(&sb, "user: %s\nassistant: %s\n", ex.User, ex.Agent)
			}
		}
	}

	switch p.Kind {
	case KindEmergencyStep:
		sb.WriteString("\nAn emergency is in progress. Ask the single most important safety question for the current protocol step. If the user spoke about someone else, ask about that person's condition; otherwise ask about the user's own safety, breathing, or location as the step requires.")
	case KindEscalationWarning:
		switch {
		case s != nil && s.Level >= 2:
			sb.WriteString("\nThis is the final warning before automatic action. Say that you will call emergency services if there is no response, urgently but calmly.")
		case s != nil && s.Level == 1:
			sb.WriteString("\nThis is a second, more urgent warning. Ask if the user can hear you and say you need an immediate response.")
		default:
			sb.WriteString("\nThe user did not answer in time. Repeat the pending safety question with more urgency.")
		}
	case KindCheckIn:
		sb.WriteString("\nThe user has gone quiet. Generate one short, caring question to check on them. Examples: \"Are you still there?\", \"Is everything okay?\"")
	case KindCallNotice:
		sb.WriteString("\nNo response was detected and automatic emergency protocols are being triggered. Reassure the user that emergency services are being contacted, help is coming, and they should stay calm. Up to 3 sentences.")
	}
	return sb.String()
}

// Fallback returns the deterministic reply for this prompt when the
// generator is unreachable.
func (p *Prompt) Fallback() string {
	if p.Script != "" {
		return p.Script
	}
	switch p.Kind {
	case KindEmergencyStep:
		return "I'm detecting an emergency. What can you tell me about the situation?"
	case KindEscalationWarning:
		if p.Session != nil && p.Session.Level >= 2 {
			return "I will wait a few more seconds. If you don't respond I will trigger an automatic call to emergency services."
		}
		return "Hello, can you hear me? I need you to respond immediately."
	case KindCheckIn:
		return "Are you still there? Is everything okay?"
	case KindCallNotice:
		return "No response detected. I am now triggering automatic emergency protocols. Please stay calm, help is on the way."
	default:
		return FallbackReply
	}
}
