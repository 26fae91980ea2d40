package crisis

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDetectEmergency(t *testing.T) {
	tests := []struct {
		text string
		want EmergencyType
		hit  bool
	}{
		{"There's a fire in my kitchen! Help!", EmergencyFire, true},
		{"smoke everywhere", EmergencyFire, true},
		{"he has chest pain and trouble breathing", EmergencyMedical, true},
		{"she is unconscious", EmergencyMedical, true},
		{"someone is following me, I'm scared", EmergencyDanger, true},
		{"help me please", EmergencyDanger, true},
		{"there was a car crash", EmergencyGeneral, true},
		{"what a lovely day", EmergencyNone, false},
		{"", EmergencyNone, false},
	}

	for _, tc := range tests {
		hit, typ := DetectEmergency(tc.text)
		if hit != tc.hit || typ != tc.want {
			t.Errorf("DetectEmergency(%q) = (%v, %v); want (%v, %v)",
				tc.text, hit, typ, tc.hit, tc.want)
		}
	}
}

func TestDetectEmergency_FirstCategoryWins(t *testing.T) {
	// "fire" and "help" both appear; fire keywords are checked first.
	hit, typ := DetectEmergency("fire! help! emergency!")
	if !hit || typ != EmergencyFire {
		t.Errorf("got (%v, %v); want (true, fire)", hit, typ)
	}
}

func TestIsPositiveConfirmation(t *testing.T) {
	positives := []string{"yes", "Yes, we are", "OKAY", "that's right", "sure thing", "confirmed"}
	negatives := []string{"no", "I don't know", "maybe later", ""}

	for _, s := range positives {
		if !IsPositiveConfirmation(s) {
			t.Errorf("IsPositiveConfirmation(%q) = false; want true", s)
		}
	}
	for _, s := range negatives {
		if IsPositiveConfirmation(s) {
			t.Errorf("IsPositiveConfirmation(%q) = true; want false", s)
		}
	}
}

func TestState_Protocol(t *testing.T) {
	var s State
	if s.Active() {
		t.Fatal("zero State should be inactive")
	}

	s.StartProtocol(EmergencyFire)
	if !s.Active() || s.CurrentStep != 1 || s.EscalationLevel != 0 {
		t.Fatalf("after StartProtocol: %+v", s)
	}

	step := s.NextStep()
	if step.Action != "immediate_safety" || !step.NeedsReply {
		t.Errorf("first fire step = %+v", step)
	}

	s.AwaitConfirmation(step.Timeout)
	if !s.PendingConfirmation || s.ConfirmationTimeout != 10*time.Second {
		t.Errorf("after AwaitConfirmation: %+v", s)
	}

	s.ConfirmStep()
	if s.CurrentStep != 2 || s.PendingConfirmation || s.ConfirmationTimeout != 0 {
		t.Errorf("after ConfirmStep: %+v", s)
	}
	if len(s.StepsCompleted) != 1 || s.StepsCompleted[0] != 1 {
		t.Errorf("StepsCompleted = %v; want [1]", s.StepsCompleted)
	}
}

func TestState_Escalate(t *testing.T) {
	var s State
	s.StartProtocol(EmergencyMedical)
	s.AwaitConfirmation(10 * time.Second)

	s.Escalate()
	if s.EscalationLevel != 1 || s.PendingConfirmation {
		t.Errorf("after Escalate: %+v", s)
	}
	if s.Terminal() {
		t.Error("level 1 should not be terminal")
	}

	s.Escalate()
	s.Escalate()
	if !s.Terminal() {
		t.Errorf("level %d should be terminal", s.EscalationLevel)
	}
}

func TestState_TriggerCall_Once(t *testing.T) {
	var s State
	s.StartProtocol(EmergencyDanger)

	if s.TriggerCall() {
		t.Error("TriggerCall before terminal level should be false")
	}

	for range TerminalLevel {
		s.Escalate()
	}
	if !s.TriggerCall() {
		t.Error("first TriggerCall at terminal level should be true")
	}
	if s.TriggerCall() {
		t.Error("second TriggerCall should be false")
	}

	// Further escalation does not re-open the trigger.
	s.Escalate()
	if s.TriggerCall() {
		t.Error("TriggerCall after extra escalation should stay false")
	}

	// A new episode resets the latch.
	s.StartProtocol(EmergencyDanger)
	if s.CallTriggered() {
		t.Error("new episode should clear the call trigger")
	}
}

func TestState_NextStep_Complete(t *testing.T) {
	var s State
	s.StartProtocol(EmergencyGeneral)
	s.CurrentStep = 5
	if got := s.NextStep(); got.Action != "complete" {
		t.Errorf("NextStep past script = %+v; want complete", got)
	}
}

func TestPhase_JSON(t *testing.T) {
	for _, p := range []Phase{PhaseStandby, PhaseListening, PhaseProcessing, PhaseSpeaking, PhaseEscalating, PhaseEmergency} {
		data, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("Marshal Phase(%d): %v", p, err)
		}
		var back Phase
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal Phase: %v", err)
		}
		if back != p {
			t.Errorf("Phase roundtrip: got %v, want %v", back, p)
		}
	}
}
