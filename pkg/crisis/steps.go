package crisis

import "time"

// Step is one question/confirmation exchange in an emergency protocol.
// The live system words steps through the language model; these fixed
// scripts are the deterministic fallback used when generation fails, and
// they carry the per-step confirmation timeouts either way.
type Step struct {
	Action     string
	Message    string
	NeedsReply bool
	Timeout    time.Duration

	// Escalation is the harder follow-up sent when the step times out.
	Escalation string
}

// Complete is the pseudo-step returned once a protocol has run out of
// scripted steps.
var Complete = Step{
	Action:  "complete",
	Message: "Emergency protocol complete. Help is on the way. Stay on the line and follow emergency responder instructions.",
}

var fireSteps = []Step{
	{
		Action:     "immediate_safety",
		Message:    "I understand there's a fire. First, are you and everyone else safely out of the building?",
		NeedsReply: true,
		Timeout:    10 * time.Second,
		Escalation: "If you don't respond in 10 seconds, I'll assume you need immediate help and call emergency services.",
	},
	{
		Action:     "location_confirmation",
		Message:    "Good. Now, what's your exact location? I need your address to send help.",
		NeedsReply: true,
		Timeout:    15 * time.Second,
		Escalation: "I need your location to send firefighters. Please provide your address.",
	},
	{
		Action:     "fire_details",
		Message:    "Can you tell me: is the fire contained to one room, or has it spread? Are there any people still inside?",
		NeedsReply: true,
		Timeout:    20 * time.Second,
		Escalation: "This information is critical for emergency responders.",
	},
	{
		Action:     "call_emergency",
		Message:    "I'm calling emergency services now. Stay on the line and follow my instructions.",
		NeedsReply: false,
		Timeout:    5 * time.Second,
		Escalation: "Emergency services are being contacted.",
	},
}

var medicalSteps = []Step{
	{
		Action:     "consciousness_check",
		Message:    "I understand there's a medical emergency. First, is the person conscious and breathing?",
		NeedsReply: true,
		Timeout:    10 * time.Second,
		Escalation: "If you don't respond, I'll call emergency services immediately.",
	},
	{
		Action:     "symptoms_assessment",
		Message:    "What are the main symptoms? Chest pain, difficulty breathing, bleeding, or something else?",
		NeedsReply: true,
		Timeout:    15 * time.Second,
		Escalation: "I need to know the symptoms to provide appropriate help.",
	},
	{
		Action:     "location_confirmation",
		Message:    "What's your exact location? I need your address for emergency services.",
		NeedsReply: true,
		Timeout:    15 * time.Second,
		Escalation: "Location is critical for emergency response.",
	},
	{
		Action:     "call_emergency",
		Message:    "I'm calling emergency services now. Stay with the person and follow my instructions.",
		NeedsReply: false,
		Timeout:    5 * time.Second,
		Escalation: "Emergency services are being contacted.",
	},
}

var dangerSteps = []Step{
	{
		Action:     "immediate_safety",
		Message:    "I understand you feel in danger. Are you in a safe location right now?",
		NeedsReply: true,
		Timeout:    10 * time.Second,
		Escalation: "If you don't respond, I'll assume you need immediate help.",
	},
	{
		Action:     "threat_assessment",
		Message:    "Can you tell me what's happening? Are you alone, or is someone with you?",
		NeedsReply: true,
		Timeout:    15 * time.Second,
		Escalation: "I need to understand the situation to help you.",
	},
	{
		Action:     "location_confirmation",
		Message:    "What's your exact location? I need your address to send help if needed.",
		NeedsReply: true,
		Timeout:    15 * time.Second,
		Escalation: "Location is important for your safety.",
	},
	{
		Action:     "call_emergency",
		Message:    "I'm calling emergency services now. Stay on the line and I'll guide you through this.",
		NeedsReply: false,
		Timeout:    5 * time.Second,
		Escalation: "Emergency services are being contacted.",
	},
}

var generalSteps = []Step{
	{
		Action:     "safety_check",
		Message:    "I understand there's an emergency. Are you safe right now?",
		NeedsReply: true,
		Timeout:    10 * time.Second,
		Escalation: "If you don't respond, I'll call emergency services immediately.",
	},
	{
		Action:     "situation_assessment",
		Message:    "Can you tell me what's happening? I need to understand the situation.",
		NeedsReply: true,
		Timeout:    15 * time.Second,
		Escalation: "I need more information to help you properly.",
	},
	{
		Action:     "location_confirmation",
		Message:    "What's your exact location? I need your address for emergency services.",
		NeedsReply: true,
		Timeout:    15 * time.Second,
		Escalation: "Location is critical for emergency response.",
	},
	{
		Action:     "call_emergency",
		Message:    "I'm calling emergency services now. Stay on the line and follow my instructions.",
		NeedsReply: false,
		Timeout:    5 * time.Second,
		Escalation: "Emergency services are being contacted.",
	},
}

// NextStep returns the scripted step for the episode's current position.
// Past the last scripted step it returns Complete.
func (s *State) NextStep() Step {
	var steps []Step
	switch s.EmergencyType {
	case EmergencyFire:
		steps = fireSteps
	case EmergencyMedical:
		steps = medicalSteps
	case EmergencyDanger:
		steps = dangerSteps
	default:
		steps = generalSteps
	}
	idx := s.CurrentStep - 1
	if idx < 0 || idx >= len(steps) {
		return Complete
	}
	return steps[idx]
}
