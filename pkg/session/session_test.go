package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vigil-voice/vigil/pkg/crisis"
	"github.com/vigil-voice/vigil/pkg/dialog"
	"github.com/vigil-voice/vigil/pkg/emergency"
	"github.com/vigil-voice/vigil/pkg/telephony"
	"github.com/vigil-voice/vigil/pkg/wire"
)

type fakeSender struct {
	mu     sync.Mutex
	frames []*wire.Frame
	err    error
}

func (f *fakeSender) Send(fr *wire.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSender) byType(t wire.FrameType) []*wire.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*wire.Frame
	for _, fr := range f.frames {
		if fr.Type == t {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeSender) statuses(status string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.frames {
		if fr.Type == wire.FrameStatus && fr.Status == status {
			n++
		}
	}
	return n
}

type fakeGen struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (g *fakeGen) Generate(_ context.Context, _ *dialog.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	if g.text != "" {
		return g.text, nil
	}
	return fmt.Sprintf("reply %d", g.calls), nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	pipeline := &dialog.Pipeline{Generator: &fakeGen{}, Logger: discard()}
	calls := emergency.New(telephony.NewClient(""), nil, discard(), emergency.Config{
		PollInterval: time.Millisecond,
		MaxPolls:     10,
	})
	return NewManager(pipeline, calls, nil, discard(), Config{
		EscalationTimeout: time.Hour, // fire driven explicitly in tests
		CheckInterval:     time.Hour,
	})
}

func connect(t *testing.T, m *Manager) (*Session, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	s := m.Connect(sender)
	t.Cleanup(func() { m.Disconnect(s.ID) })
	return s, sender
}

func sendText(t *testing.T, s *Session, text string) {
	t.Helper()
	raw, err := (&wire.Frame{Type: wire.FrameText, Text: text}).Encode()
	if err != nil {
		t.Fatal(err)
	}
	s.HandleFrame(context.Background(), raw)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestFireInput_StartsProtocolAndArmsTimer(t *testing.T) {
	m := newTestManager(t)
	s, sender := connect(t, m)

	sendText(t, s, "There's a fire in my kitchen! Help!")

	s.mu.Lock()
	typ := s.escalation.EmergencyType
	pending := s.escalation.PendingConfirmation
	step := s.escalation.CurrentStep
	s.mu.Unlock()

	if typ != crisis.EmergencyFire {
		t.Errorf("emergency type = %s; want fire", typ)
	}
	if !pending || step != 1 {
		t.Errorf("pending = %v, step = %d; want pending step 1", pending, step)
	}
	if !s.timer.Armed() {
		t.Error("confirmation timer not armed")
	}
	if len(sender.byType(wire.FrameResponseText)) == 0 {
		t.Error("no confirmation-bearing reply sent")
	}
}

func TestTimerFire_EscalatesAndRearms(t *testing.T) {
	m := newTestManager(t)
	s, sender := connect(t, m)

	sendText(t, s, "There's a fire in my kitchen! Help!")
	before := len(sender.byType(wire.FrameResponseText))

	s.onTimerFire(s.timer.Gen())

	s.mu.Lock()
	level := s.escalation.EscalationLevel
	pending := s.escalation.PendingConfirmation
	s.mu.Unlock()

	if level != 1 {
		t.Errorf("escalation level = %d; want 1", level)
	}
	if !pending || !s.timer.Armed() {
		t.Error("fire handler did not re-arm")
	}
	if got := len(sender.byType(wire.FrameResponseText)); got != before+1 {
		t.Errorf("replies = %d; want %d (one more urgent warning)", got, before+1)
	}
}

func TestConfirmation_AdvancesStepAndCancelsTimer(t *testing.T) {
	m := newTestManager(t)
	s, _ := connect(t, m)

	sendText(t, s, "There's a fire in my kitchen! Help!")
	sendText(t, s, "yes")

	s.mu.Lock()
	step := s.escalation.CurrentStep
	completed := len(s.escalation.StepsCompleted)
	s.mu.Unlock()

	if step != 2 {
		t.Errorf("current step = %d; want 2", step)
	}
	if completed != 1 {
		t.Errorf("steps completed = %d; want 1", completed)
	}
	// Step 2 needs a reply, so a fresh timer replaces the cancelled one.
	if !s.timer.Armed() {
		t.Error("next step's timer not armed")
	}
}

func TestStaleTimerFire_DroppedAfterConfirmation(t *testing.T) {
	m := newTestManager(t)
	s, _ := connect(t, m)

	sendText(t, s, "There's a fire in my kitchen! Help!")
	stale := s.timer.Gen()

	// The confirming reply cancels the first window and arms step 2's
	// timer, setting PendingConfirmation again. A fire from the first
	// window that passed the scheduling check just before the cancel must
	// not escalate against the new window.
	sendText(t, s, "yes")
	s.onTimerFire(stale)

	s.mu.Lock()
	level := s.escalation.EscalationLevel
	step := s.escalation.CurrentStep
	pending := s.escalation.PendingConfirmation
	s.mu.Unlock()

	if level != 0 {
		t.Errorf("escalation level = %d; want 0 (stale fire dropped)", level)
	}
	if step != 2 || !pending {
		t.Errorf("step = %d pending = %v; want step 2 still pending", step, pending)
	}
	if !s.timer.Armed() {
		t.Error("step 2's timer lost")
	}
}

func TestTerminalEscalation_InitiatesExactlyOnce(t *testing.T) {
	m := newTestManager(t)
	s, sender := connect(t, m)

	sendText(t, s, "There's a fire in my kitchen! Help!")
	for range 3 {
		s.onTimerFire(s.timer.Gen())
	}

	s.mu.Lock()
	level := s.escalation.EscalationLevel
	callID := s.callID
	s.mu.Unlock()

	if level != crisis.TerminalLevel {
		t.Errorf("escalation level = %d; want %d", level, crisis.TerminalLevel)
	}
	if callID == "" {
		t.Fatal("no emergency call initiated")
	}
	if s.Phase() != crisis.PhaseEmergency {
		t.Errorf("phase = %s; want emergency", s.Phase())
	}
	if s.timer.Armed() {
		t.Error("timer re-armed past terminal level")
	}

	// A stray extra fire must not place a second call.
	s.onTimerFire(s.timer.Gen())
	if n := sender.statuses("call_initiated"); n != 1 {
		t.Errorf("call_initiated statuses = %d; want exactly 1", n)
	}
}

func TestTerminalEscalation_SimulatedStatusSequence(t *testing.T) {
	m := newTestManager(t)
	s, sender := connect(t, m)

	sendText(t, s, "There's a fire in my kitchen! Help!")
	for range 3 {
		s.onTimerFire(s.timer.Gen())
	}

	// Unconfigured telephony means the simulated fallback; the session
	// still sees a coherent status sequence, never a bare error.
	waitFor(t, func() bool {
		return sender.statuses(string(telephony.StatusAnswered)) > 0
	})
	if sender.statuses(string(telephony.StatusRinging)) == 0 {
		t.Error("no ringing status reported")
	}
	if got := sender.byType(wire.FrameError); len(got) != 0 {
		t.Errorf("error frames = %d; want 0", len(got))
	}
}

func TestSessions_EscalationIsolated(t *testing.T) {
	m := newTestManager(t)
	s1, _ := connect(t, m)
	s2, _ := connect(t, m)

	sendText(t, s1, "There's a fire in my kitchen! Help!")
	s1.onTimerFire(s1.timer.Gen())

	s2.mu.Lock()
	active := s2.escalation.Active()
	level := s2.escalation.EscalationLevel
	s2.mu.Unlock()

	if active || level != 0 {
		t.Errorf("session 2 escalation = active=%v level=%d; want untouched", active, level)
	}
}

func TestCheckIn_NeverInStandby(t *testing.T) {
	m := newTestManager(t)
	s, sender := connect(t, m)

	s.mu.Lock()
	s.phase = crisis.PhaseStandby
	s.lastActivity = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	before := len(sender.byType(wire.FrameResponseText))
	s.checkIn(context.Background())
	if got := len(sender.byType(wire.FrameResponseText)); got != before {
		t.Errorf("check-in emitted in standby: %d new frames", got-before)
	}
}

func TestCheckIn_SuppressedWhileTimerArmed(t *testing.T) {
	m := newTestManager(t)
	s, sender := connect(t, m)

	sendText(t, s, "There's a fire in my kitchen! Help!")
	if !s.timer.Armed() {
		t.Fatal("expected armed timer")
	}

	s.mu.Lock()
	s.lastActivity = time.Now().Add(-time.Hour)
	level := s.escalation.EscalationLevel
	s.mu.Unlock()

	before := len(sender.byType(wire.FrameResponseText))
	s.checkIn(context.Background())

	s.mu.Lock()
	after := s.escalation.EscalationLevel
	s.mu.Unlock()

	if after != level {
		t.Errorf("check-in escalated from %d to %d while timer armed", level, after)
	}
	if got := len(sender.byType(wire.FrameResponseText)); got != before {
		t.Error("check-in emitted while confirmation timer armed")
	}
}

func TestCheckIn_NudgesIdleSession(t *testing.T) {
	m := newTestManager(t)
	s, sender := connect(t, m)

	// The session has spoken once and then gone quiet.
	sendText(t, s, "hello there")
	s.mu.Lock()
	s.lastActivity = time.Now().Add(-time.Hour)
	s.mu.Unlock()
	before := len(sender.byType(wire.FrameResponseText))

	s.checkIn(context.Background())

	if got := len(sender.byType(wire.FrameResponseText)); got != before+1 {
		t.Errorf("check-in replies = %d; want %d", got, before+1)
	}
	s.mu.Lock()
	count := s.silenceCount
	s.mu.Unlock()
	if count != 1 {
		t.Errorf("silence count = %d; want 1", count)
	}
}

func TestSession_StandbyUntilFirstInput(t *testing.T) {
	m := newTestManager(t)
	s, sender := connect(t, m)

	if got := s.Phase(); got != crisis.PhaseStandby {
		t.Fatalf("phase at connect = %s; want standby", got)
	}

	// However stale the session looks, a client that never spoke is not
	// nudged.
	s.mu.Lock()
	s.lastActivity = time.Now().Add(-time.Hour)
	s.mu.Unlock()
	s.checkIn(context.Background())

	if got := len(sender.byType(wire.FrameResponseText)); got != 0 {
		t.Errorf("check-in replies before first input = %d; want 0", got)
	}
	s.mu.Lock()
	count := s.silenceCount
	s.mu.Unlock()
	if count != 0 {
		t.Errorf("silence count before first input = %d; want 0", count)
	}

	// First non-empty input wakes the session.
	sendText(t, s, "hello there")
	if got := s.Phase(); got != crisis.PhaseListening {
		t.Errorf("phase after first input = %s; want listening", got)
	}
}

func TestCheckIn_SilentEmergencyEscalates(t *testing.T) {
	m := newTestManager(t)
	s, _ := connect(t, m)

	sendText(t, s, "There's a fire in my kitchen! Help!")
	// Outside any confirmation window.
	s.timer.Cancel()
	s.mu.Lock()
	s.escalation.PendingConfirmation = false
	s.lastActivity = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	s.checkIn(context.Background())

	s.mu.Lock()
	level := s.escalation.EscalationLevel
	s.mu.Unlock()
	if level != 1 {
		t.Errorf("escalation level = %d; want 1 after silent emergency", level)
	}
	if !s.timer.Armed() {
		t.Error("silent escalation did not arm a confirmation timer")
	}
}

func TestPingPong(t *testing.T) {
	m := newTestManager(t)
	s, sender := connect(t, m)

	raw, _ := (&wire.Frame{Type: wire.FramePing}).Encode()
	s.HandleFrame(context.Background(), raw)

	if len(sender.byType(wire.FramePong)) != 1 {
		t.Error("ping not answered with pong")
	}
}

func TestHandleFrame_MalformedAndUnknown(t *testing.T) {
	m := newTestManager(t)
	s, sender := connect(t, m)

	s.HandleFrame(context.Background(), []byte("{not json"))
	if len(sender.byType(wire.FrameError)) != 1 {
		t.Error("malformed frame not answered with error frame")
	}

	before := len(sender.frames)
	s.HandleFrame(context.Background(), []byte(`{"type":"bogus"}`))
	if len(sender.frames) != before {
		t.Error("unknown frame type should be dropped silently")
	}
}

func TestSendFailure_TearsDownSession(t *testing.T) {
	m := newTestManager(t)
	sender := &fakeSender{err: errors.New("broken pipe")}
	s := m.Connect(sender)

	waitFor(t, func() bool {
		_, ok := m.Get(s.ID)
		return !ok
	})
}

func TestDisconnect_Idempotent(t *testing.T) {
	m := newTestManager(t)
	s, _ := connect(t, m)

	m.Disconnect(s.ID)
	m.Disconnect(s.ID)
	if m.Count() != 0 {
		t.Errorf("Count() = %d; want 0", m.Count())
	}
}

func TestConversationTurn_RecordsHistory(t *testing.T) {
	m := newTestManager(t)
	s, sender := connect(t, m)

	sendText(t, s, "hello there")

	if len(sender.byType(wire.FrameResponseText)) != 1 {
		t.Fatal("no reply to conversation turn")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) != 1 || s.history[0].User != "hello there" {
		t.Errorf("history = %+v", s.history)
	}
	if s.phase != crisis.PhaseListening {
		t.Errorf("phase = %s; want listening", s.phase)
	}
}

func TestGeneratorFailure_FallbackReplyNotDeadSession(t *testing.T) {
	pipeline := &dialog.Pipeline{
		Generator: &fakeGen{err: errors.New("model down")},
		Logger:    discard(),
	}
	calls := emergency.New(telephony.NewClient(""), nil, discard(), emergency.Config{})
	m := NewManager(pipeline, calls, nil, discard(), Config{
		EscalationTimeout: time.Hour,
		CheckInterval:     time.Hour,
	})
	s, sender := connect(t, m)

	sendText(t, s, "hello there")

	replies := sender.byType(wire.FrameResponseText)
	if len(replies) != 1 {
		t.Fatal("degraded turn produced no reply")
	}
	if !strings.Contains(replies[0].Text, "help") {
		t.Errorf("fallback reply = %q", replies[0].Text)
	}
}
