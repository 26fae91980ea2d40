package session

import (
	"context"
	"time"

	"github.com/vigil-voice/vigil/pkg/crisis"
	"github.com/vigil-voice/vigil/pkg/dialog"
	"github.com/vigil-voice/vigil/pkg/wire"
)

// monitor is the proactive per-session loop. It nudges a silent user with
// a check-in and, when an emergency is active and the user has gone
// quiet, feeds the escalation pathway directly. It runs until the session
// is torn down.
func (s *Session) monitor(ctx context.Context) {
	ticker := time.NewTicker(s.mgr.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkIn(ctx)
		}
	}
}

func (s *Session) checkIn(ctx context.Context) {
	s.mu.Lock()

	if s.closed || s.phase == crisis.PhaseStandby {
		s.mu.Unlock()
		return
	}
	// While a confirmation timer is armed, the timer path owns
	// escalation; nudging here would double-fire.
	if s.timer.Armed() {
		s.mu.Unlock()
		return
	}
	if time.Since(s.lastActivity) < s.mgr.cfg.CheckInterval {
		s.mu.Unlock()
		return
	}

	if s.escalation.Active() && !s.escalation.CallTriggered() {
		// Silent mid-emergency with no pending question: escalate.
		s.silenceCount++
		s.mu.Unlock()
		s.escalateSilent(ctx)
		return
	}

	if s.escalation.CallTriggered() || s.phase == crisis.PhaseEmergency {
		// The call pathway owns the session; nothing to nudge.
		s.mu.Unlock()
		return
	}

	s.silenceCount++
	count := s.silenceCount

	if count > s.mgr.cfg.MaxSilence {
		s.phase = crisis.PhaseStandby
		s.mu.Unlock()
		s.logger.Info("session idle, entering standby", "session_id", s.ID)
		s.send(wire.Status("standby", "Going quiet. Say something to wake me."))
		return
	}

	prompt := &dialog.Prompt{
		Kind:    dialog.KindCheckIn,
		Session: s.snapshot(),
	}
	s.mu.Unlock()

	s.logger.Debug("proactive check-in", "session_id", s.ID, "silence_count", count)
	reply := s.mgr.pipeline.Respond(ctx, prompt, 0)
	s.sendReply(reply)
}

// escalateSilent drives the escalation level up when the user goes silent
// mid-emergency outside any confirmation window. Terminal handling matches
// the timer path.
func (s *Session) escalateSilent(ctx context.Context) {
	s.mu.Lock()
	if s.closed || !s.escalation.Active() {
		s.mu.Unlock()
		return
	}

	s.escalation.Escalate()
	level := s.escalation.EscalationLevel
	s.logger.Info("silent mid-emergency, escalating",
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
	s.phase = crisis.PhaseEscalating
	s.mu.Unlock()

	reply := s.mgr.pipeline.Respond(ctx, prompt, level)
	s.sendReply(reply)
}
