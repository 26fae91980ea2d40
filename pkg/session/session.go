// Package session owns the per-connection conversation loop: it routes
// inbound frames through the turn pipeline, drives the escalation state
// machine with its single confirmation timer, runs the proactive silence
// monitor, and hands terminal escalations to the emergency call
// orchestrator.
//
// Each Session is single-writer: only handler code running on behalf of
// that session mutates its state, and the session mutex serializes the
// handler chain against the timer and monitor goroutines. Sessions never
// share state with each other.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vigil-voice/vigil/pkg/audio"
	"github.com/vigil-voice/vigil/pkg/crisis"
	"github.com/vigil-voice/vigil/pkg/dialog"
	"github.com/vigil-voice/vigil/pkg/emergency"
	"github.com/vigil-voice/vigil/pkg/telephony"
	"github.com/vigil-voice/vigil/pkg/wire"
)

// Config carries the escalation and monitoring tunables. All fields come
// from the service configuration at construction time.
type Config struct {
	// EscalationTimeout is the re-arm delay after a timed-out step
	// escalates. Per-step timeouts come from the protocol script; this
	// covers escalation warnings.
	EscalationTimeout time.Duration

	// CheckInterval is the proactive monitor's polling period.
	CheckInterval time.Duration

	// MaxSilence is the number of unanswered check-ins after which a
	// non-emergency session drops back to standby.
	MaxSilence int

	// HistoryLimit bounds the retained conversation history.
	HistoryLimit int

	// InputSampleRate and InputStereo describe the PCM format clients
	// send in audio frames. Defaults to 16 kHz mono.
	InputSampleRate int
	InputStereo     bool
}

func (c Config) withDefaults() Config {
	if c.EscalationTimeout <= 0 {
		c.EscalationTimeout = 10 * time.Second
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 15 * time.Second
	}
	if c.MaxSilence <= 0 {
		c.MaxSilence = 3
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = audio.Pipeline16KMono.SampleRate
	}
	return c
}

// Sender delivers outbound frames to one client. Implementations must
// serialize writes; the session may send from its handler, its timer, and
// its monitor goroutine.
type Sender interface {
	Send(f *wire.Frame) error
}

// Session is the state for one live connection.
type Session struct {
	ID string

	mgr    *Manager
	sender Sender
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	timer timerSlot

	mu           sync.Mutex
	phase        crisis.Phase
	escalation   crisis.State
	silenceCount int
	lastInput    string
	lastActivity time.Time
	location     string
	history      []dialog.Exchange
	startedAt    time.Time
	callID       string
	initiating   bool
	closed       bool
}

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() crisis.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// snapshot captures the prompt context for the turn pipeline. Callers hold
// s.mu.
func (s *Session) snapshot() *dialog.SessionContext {
	hist := make([]dialog.Exchange, len(s.history))
	copy(hist, s.history)
	return &dialog.SessionContext{
		Phase:         s.phase,
		Emergency:     s.escalation.EmergencyType,
		Step:          s.escalation.CurrentStep,
		Level:         s.escalation.EscalationLevel,
		SilenceCount:  s.silenceCount,
		LastUserInput: s.lastInput,
		History:       hist,
	}
}

// send delivers one frame. A send failure tears the session down; a dead
// client must not keep its timers and monitor alive.
func (s *Session) send(f *wire.Frame) {
	if err := s.sender.Send(f); err != nil {
		s.logger.Warn("send failed, closing session", "session_id", s.ID, "error", err)
		go s.mgr.Disconnect(s.ID)
	}
}

// sendReply emits a pipeline reply as an audio_response frame, or
// response_text when synthesis was unavailable.
func (s *Session) sendReply(r *dialog.Reply) {
	if len(r.Audio) > 0 {
		s.send(wire.AudioResponse(r.Audio, r.Text))
	} else {
		s.send(wire.ResponseText(r.Text))
	}
}

// recordExchange appends one completed turn to the history, trimming to
// the configured limit. Callers hold s.mu.
func (s *Session) recordExchange(user, agent string) {
	s.history = append(s.history, dialog.Exchange{User: user, Agent: agent})
	if limit := s.mgr.cfg.HistoryLimit; len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
}

// HandleFrame processes one inbound frame. Failures inside the turn never
// close the connection; they surface as error frames or logged drops.
func (s *Session) HandleFrame(ctx context.Context, raw []byte) {
	f, err := wire.Decode(raw)
	if err != nil {
		if errors.Is(err, wire.ErrUnknownType) {
			s.logger.Warn("dropping unknown frame", "session_id", s.ID, "type", string(f.Type))
			return
		}
		s.logger.Warn("malformed frame", "session_id", s.ID, "error", err)
		s.send(wire.Error("invalid message format"))
		return
	}

	switch f.Type {
	case wire.FramePing:
		s.send(wire.Pong())
	case wire.FrameAudio:
		s.handleAudio(ctx, f)
	case wire.FrameText:
		s.handleText(ctx, strings.TrimSpace(f.Text))
	default:
		// Outbound-only types arriving inbound are client bugs; drop.
		s.logger.Warn("dropping outbound-typed frame", "session_id", s.ID, "type", string(f.Type))
	}
}

func (s *Session) handleAudio(ctx context.Context, f *wire.Frame) {
	raw, err := f.AudioBytes()
	if err != nil {
		s.logger.Warn("bad audio payload", "session_id", s.ID, "error", err)
		s.send(wire.Error("invalid audio payload"))
		return
	}

	pcm, err := audio.Normalize(raw, audio.Format{
		SampleRate: s.mgr.cfg.InputSampleRate,
		Stereo:     s.mgr.cfg.InputStereo,
	})
	if err != nil {
		s.logger.Warn("audio normalization failed", "session_id", s.ID, "error", err)
		s.send(wire.Error("invalid audio payload"))
		return
	}

	text := s.mgr.pipeline.Transcribe(ctx, audio.WAV(pcm))
	if text == "" {
		s.mu.Lock()
		s.silenceCount++
		s.mu.Unlock()
		s.send(wire.Error("could not understand audio"))
		return
	}

	s.send(wire.Transcript(text))
	s.handleText(ctx, text)
}

func (s *Session) handleText(ctx context.Context, text string) {
	if text == "" {
		s.send(wire.Error("empty message"))
		return
	}

	s.mu.Lock()
	s.lastInput = text
	s.lastActivity = time.Now()
	s.silenceCount = 0
	s.phase = crisis.PhaseProcessing

	switch {
	case s.escalation.Active() && s.escalation.PendingConfirmation:
		s.handleProtocolReply(ctx, text)
	case s.escalation.Active():
		// Mid-emergency input with no pending question, e.g. after the
		// call pathway took over.
		s.handleEmergencyChatter(ctx, text)
	default:
		if ok, typ := crisis.DetectEmergency(text); ok {
			s.logger.Info("emergency detected",
				"session_id", s.ID, "type", typ.String())
			s.escalation.StartProtocol(typ)
			s.phase = crisis.PhaseEscalating
			s.presentStep(ctx, text)
		} else {
			s.handleConversation(ctx, text)
		}
	}
}

// handleProtocolReply processes user input while a protocol step is
// pending confirmation. Callers hold s.mu; it is released before any
// network or model call and the handler returns with it released.
func (s *Session) handleProtocolReply(ctx context.Context, text string) {
	s.timer.Cancel()

	if crisis.IsPositiveConfirmation(text) {
		s.escalation.ConfirmStep()
		s.presentStep(ctx, text)
		return
	}

	// A substantive (non-affirmation) answer still shows the user is
	// responsive. Capture location answers, keep the step pending, and
	// re-ask with the user's words in context.
	step := s.escalation.NextStep()
	if step.Action == "location_confirmation" {
		s.location = text
		s.escalation.LocationConfirmed = true
	}
	prompt := &dialog.Prompt{
		Kind:      dialog.KindEmergencyStep,
		UserInput: text,
		Session:   s.snapshot(),
		Script:    step.Message,
	}
	level := s.escalation.EscalationLevel
	// Arm before releasing the lock so a concurrent confirming reply
	// always observes (and cancels) this timer.
	s.escalation.AwaitConfirmation(step.Timeout)
	s.timer.Arm(step.Timeout, s.onTimerFire)
	s.phase = crisis.PhaseSpeaking
	s.mu.Unlock()

	reply := s.mgr.pipeline.Respond(ctx, prompt, level)
	s.sendReply(reply)

	s.mu.Lock()
	s.recordExchange(text, reply.Text)
	s.phase = crisis.PhaseEscalating
	s.mu.Unlock()
}

// presentStep sends the current protocol step's question and arms its
// confirmation timer. Callers hold s.mu; released on return.
func (s *Session) presentStep(ctx context.Context, userInput string) {
	step := s.escalation.NextStep()

	if step.Action == crisis.Complete.Action {
		s.phase = crisis.PhaseListening
		finished := s.escalation.EmergencyType
		s.escalation.Reset()
		s.mu.Unlock()

		s.logger.Info("emergency protocol complete",
			"session_id", s.ID, "type", finished.String())
		s.send(wire.Status("protocol_complete", crisis.Complete.Message))
		return
	}

	if step.Action == "call_emergency" {
		// Final scripted step: the protocol itself places the call.
		s.escalation.ConfirmStep()
		s.mu.Unlock()
		s.startEmergencyCall(ctx)
		return
	}

	prompt := &dialog.Prompt{
		Kind:      dialog.KindEmergencyStep,
		UserInput: userInput,
		Session:   s.snapshot(),
		Script:    step.Message,
	}
	level := s.escalation.EscalationLevel
	if step.NeedsReply {
		s.escalation.AwaitConfirmation(step.Timeout)
		s.timer.Arm(step.Timeout, s.onTimerFire)
	}
	s.phase = crisis.PhaseSpeaking
	s.mu.Unlock()

	reply := s.mgr.pipeline.Respond(ctx, prompt, level)
	s.sendReply(reply)

	s.mu.Lock()
	s.recordExchange(userInput, reply.Text)
	s.phase = crisis.PhaseEscalating
	s.mu.Unlock()
}

// handleEmergencyChatter answers mid-emergency input that is not a step
// confirmation. Callers hold s.mu; released on return.
func (s *Session) handleEmergencyChatter(ctx context.Context, text string) {
	prompt := &dialog.Prompt{
		Kind:      dialog.KindEmergencyStep,
		UserInput: text,
		Session:   s.snapshot(),
	}
	level := s.escalation.EscalationLevel
	s.phase = crisis.PhaseSpeaking
	s.mu.Unlock()

	reply := s.mgr.pipeline.Respond(ctx, prompt, level)
	s.sendReply(reply)

	s.mu.Lock()
	s.recordExchange(text, reply.Text)
	if s.escalation.CallTriggered() {
		s.phase = crisis.PhaseEmergency
	} else {
		s.phase = crisis.PhaseEscalating
	}
	s.mu.Unlock()
}

// handleConversation runs a regular non-emergency turn. Callers hold
// s.mu; released on return.
func (s *Session) handleConversation(ctx context.Context, text string) {
	prompt := &dialog.Prompt{
		Kind:      dialog.KindConversation,
		UserInput: text,
		Session:   s.snapshot(),
	}
	s.phase = crisis.PhaseSpeaking
	s.mu.Unlock()

	reply := s.mgr.pipeline.Respond(ctx, prompt, 0)
	s.sendReply(reply)

	s.mu.Lock()
	s.recordExchange(text, reply.Text)
	s.phase = crisis.PhaseListening
	s.mu.Unlock()
}

// onTimerFire runs when a confirmation window expires with no confirming
// input. Every fire either re-arms, enters the emergency call path, or
// finds the episode already resolved; a session is never left without a
// next action.
func (s *Session) onTimerFire(gen uint64) {
	ctx := s.ctx
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	// The fire can block on s.mu while a confirming reply cancels this
	// window and arms the next step's timer. That fire is stale even
	// though PendingConfirmation is set again; only the generation tells
	// the two windows apart.
	if gen != s.timer.Gen() {
		s.mu.Unlock()
		return
	}
	if s.closed || !s.escalation.Active() || !s.escalation.PendingConfirmation {
		s.mu.Unlock()
		return
	}

	s.escalation.Escalate()
	s.phase = crisis.PhaseEscalating
	level := s.escalation.EscalationLevel
	s.logger.Info("confirmation timed out, escalating",
		"session_id", s.ID, "level", level)

	if s.escalation.Terminal() {
		trigger := s.escalation.TriggerCall()
		s.phase = crisis.PhaseEmergency
		s.timer.Cancel()
		s.mu.Unlock()
		if trigger {
			s.startEmergencyCall(ctx)
		}
		return
	}

	step := s.escalation.NextStep()
	prompt := &dialog.Prompt{
		Kind:    dialog.KindEscalationWarning,
		Session: s.snapshot(),
		Script:  step.Escalation,
	}
	timeout := s.mgr.cfg.EscalationTimeout
	s.escalation.AwaitConfirmation(timeout)
	s.timer.Arm(timeout, s.onTimerFire)
	s.mu.Unlock()

	reply := s.mgr.pipeline.Respond(ctx, prompt, level)
	s.sendReply(reply)
}

// startEmergencyCall tells the user automatic calling has been triggered,
// places the call (or its simulation), and starts the status monitor. The
// session-level callID guard makes it idempotent across both the terminal
// escalation path and the scripted protocol path.
func (s *Session) startEmergencyCall(ctx context.Context) {
	s.mu.Lock()
	if s.callID != "" || s.initiating {
		s.mu.Unlock()
		return
	}
	s.initiating = true
	s.phase = crisis.PhaseEmergency
	data := emergency.CallData{
		SessionID: s.ID,
		Type:      s.escalation.EmergencyType,
		Location:  s.location,
		Situation: s.lastInput,
	}
	prompt := &dialog.Prompt{
		Kind:    dialog.KindCallNotice,
		Session: s.snapshot(),
	}
	s.mu.Unlock()

	reply := s.mgr.pipeline.Respond(ctx, prompt, crisis.TerminalLevel)
	s.sendReply(reply)

	callID, simulated := s.mgr.calls.Initiate(ctx, data)

	s.mu.Lock()
	s.callID = callID
	s.initiating = false
	s.mu.Unlock()

	s.logger.Info("emergency call started",
		"session_id", s.ID, "call_id", callID, "simulated", simulated)
	s.send(wire.Status("call_initiated", "Emergency call initiated."))

	go s.mgr.calls.Monitor(s.ctx, callID, func(status telephony.CallStatus, message string) {
		s.send(wire.Status(string(status), message))
	})
}
