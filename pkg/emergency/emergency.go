// Package emergency places and tracks outbound emergency calls once a
// session's escalation reaches the terminal level.
//
// The orchestrator talks to the telephony provider when one is configured
// and otherwise falls back to a simulated call, so the caller always sees a
// coherent status sequence. Every call, real or simulated, is written to
// the audit log.
package emergency

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vigil-voice/vigil/pkg/calllog"
	"github.com/vigil-voice/vigil/pkg/crisis"
	"github.com/vigil-voice/vigil/pkg/telephony"
)

// Config carries the orchestrator tunables. All fields come from the
// service configuration; the orchestrator never reads the environment.
type Config struct {
	// DispatchNumber is the E.164 number emergency calls are placed to.
	DispatchNumber string

	// CallerNumber is the account-owned number calls are placed from.
	CallerNumber string

	// PollInterval is the delay between call status polls.
	PollInterval time.Duration

	// MaxPolls bounds the monitor loop; after MaxPolls status checks
	// without a terminal status the monitor gives up with a timeout
	// notice.
	MaxPolls int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = 24
	}
	return c
}

// CallData is the structured payload describing why a call is being placed.
type CallData struct {
	SessionID string
	Type      crisis.EmergencyType
	Location  string
	Situation string

	// TargetPhone overrides Config.DispatchNumber when set.
	TargetPhone string
}

// ReportFunc receives user-visible progress updates for a call. The
// orchestrator invokes it from the monitor goroutine; implementations must
// be safe to call from there.
type ReportFunc func(status telephony.CallStatus, message string)

// StatusTimeout is the synthetic status the monitor reports when the poll
// bound is exhausted before the provider reaches a terminal status. It
// never comes from the provider itself.
const StatusTimeout = telephony.CallStatus("timeout")

// Orchestrator owns the process-wide table of active emergency calls.
type Orchestrator struct {
	client *telephony.Client
	store  *calllog.Store
	logger *slog.Logger
	cfg    Config

	mu   sync.Mutex
	sims map[string]int // simulated call id -> polls served
}

// New creates an Orchestrator. client may be unconfigured (no credentials);
// every initiate then takes the simulated path. logger may be nil.
func New(client *telephony.Client, store *calllog.Store, logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client: client,
		store:  store,
		logger: logger,
		cfg:    cfg.withDefaults(),
		sims:   make(map[string]int),
	}
}

// script renders the spoken announcement for the dispatch callee.
func script(data CallData) string {
	location := data.Location
	if location == "" {
		location = "an unknown location"
	}
	lines := []string{
		"This is an automated emergency alert from the Vigil crisis line.",
		fmt.Sprintf("A %s emergency has been reported at %s.", data.Type, location),
	}
	if s := strings.TrimSpace(data.Situation); s != "" {
		lines = append(lines, "Reported situation: "+s+".")
	}
	lines = append(lines, "Please dispatch responders immediately.")
	return telephony.VoiceDocument(lines...)
}

func (o *Orchestrator) target(data CallData) string {
	if data.TargetPhone != "" {
		return data.TargetPhone
	}
	return o.cfg.DispatchNumber
}

// Initiate places the emergency call and returns the call id. When the
// provider is unconfigured or rejects the call it falls back to a simulated
// call, so a non-empty id always comes back. The simulated flag tells the
// caller which path was taken.
func (o *Orchestrator) Initiate(ctx context.Context, data CallData) (callID string, simulated bool) {
	target := o.target(data)

	if o.client == nil || !o.client.Configured() || target == "" {
		o.logger.Warn("telephony unconfigured, simulating emergency call",
			"session_id", data.SessionID, "type", data.Type.String())
		return o.simulate(ctx, data, target), true
	}

	call, err := o.client.Calls.Create(ctx, &telephony.CallRequest{
		To:     target,
		From:   o.cfg.CallerNumber,
		Script: script(data),
	})
	if err != nil {
		o.logger.Error("emergency call failed, falling back to simulation",
			"session_id", data.SessionID, "error", err)
		return o.simulate(ctx, data, target), true
	}

	o.record(ctx, call.SID, data, target, string(call.Status), false)
	o.logger.Info("emergency call initiated",
		"call_id", call.SID, "session_id", data.SessionID,
		"type", data.Type.String(), "to", target)
	return call.SID, false
}

// simulate synthesizes a call id and seeds the status sequence that
// PollStatus will replay.
func (o *Orchestrator) simulate(ctx context.Context, data CallData, target string) string {
	id := "SIM-" + uuid.NewString()

	o.mu.Lock()
	o.sims[id] = 0
	o.mu.Unlock()

	o.record(ctx, id, data, target, string(telephony.StatusInitiated), true)
	return id
}

// simSequence is the status progression a simulated call walks through,
// one step per poll.
var simSequence = []telephony.CallStatus{
	telephony.StatusRinging,
	telephony.StatusAnswered,
	telephony.StatusCompleted,
}

// PollStatus fetches the current status of a call. Simulated calls advance
// one step per poll until completed.
func (o *Orchestrator) PollStatus(ctx context.Context, callID string) (telephony.CallStatus, error) {
	o.mu.Lock()
	polls, isSim := o.sims[callID]
	if isSim {
		o.sims[callID]++
	}
	o.mu.Unlock()

	if isSim {
		if polls >= len(simSequence) {
			polls = len(simSequence) - 1
		}
		status := simSequence[polls]
		o.update(ctx, callID, status)
		return status, nil
	}

	call, err := o.client.Calls.Get(ctx, callID)
	if err != nil {
		return "", fmt.Errorf("emergency: poll %s: %w", callID, err)
	}
	o.update(ctx, callID, call.Status)
	return call.Status, nil
}

// Monitor polls the call until it reaches a terminal status or the poll
// bound is exhausted, reporting each status change through report. It
// blocks and is meant to run in its own goroutine; cancelling ctx stops it
// silently.
func (o *Orchestrator) Monitor(ctx context.Context, callID string, report ReportFunc) {
	var last telephony.CallStatus
	for i := 0; i < o.cfg.MaxPolls; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.cfg.PollInterval):
		}

		status, err := o.PollStatus(ctx, callID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.logger.Error("call status poll failed", "call_id", callID, "error", err)
			continue
		}
		if status != last {
			last = status
			report(status, statusMessage(status))
		}
		if status.Terminal() {
			o.logger.Info("emergency call reached terminal status",
				"call_id", callID, "status", string(status))
			return
		}
	}
	o.logger.Warn("emergency call monitoring timed out", "call_id", callID)
	report(StatusTimeout, "Emergency call status could not be confirmed. Please call your local emergency number directly if you still need help.")
}

// Hangup ends an in-progress call. Simulated calls are marked completed.
func (o *Orchestrator) Hangup(ctx context.Context, callID string) error {
	o.mu.Lock()
	_, isSim := o.sims[callID]
	if isSim {
		delete(o.sims, callID)
	}
	o.mu.Unlock()

	if isSim {
		o.update(ctx, callID, telephony.StatusCompleted)
		return nil
	}

	call, err := o.client.Calls.Hangup(ctx, callID)
	if err != nil {
		return fmt.Errorf("emergency: hangup %s: %w", callID, err)
	}
	o.update(ctx, callID, call.Status)
	return nil
}

func (o *Orchestrator) record(ctx context.Context, callID string, data CallData, target, status string, simulated bool) {
	if o.store == nil {
		return
	}
	now := time.Now()
	err := o.store.Put(ctx, &calllog.Record{
		CallID:        callID,
		SessionID:     data.SessionID,
		EmergencyType: data.Type,
		Location:      data.Location,
		Situation:     data.Situation,
		TargetPhone:   target,
		Status:        status,
		Simulated:     simulated,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		o.logger.Error("write call record failed", "call_id", callID, "error", err)
	}
}

func (o *Orchestrator) update(ctx context.Context, callID string, status telephony.CallStatus) {
	if o.store == nil {
		return
	}
	rec, err := o.store.Get(ctx, callID)
	if err != nil {
		o.logger.Error("load call record failed", "call_id", callID, "error", err)
		return
	}
	rec.Status = string(status)
	rec.UpdatedAt = time.Now()
	if err := o.store.Put(ctx, rec); err != nil {
		o.logger.Error("update call record failed", "call_id", callID, "error", err)
	}
}

// statusMessage converts a provider status into the sentence spoken back
// to the user.
func statusMessage(status telephony.CallStatus) string {
	switch status {
	case telephony.StatusQueued, telephony.StatusInitiated:
		return "Emergency services are being contacted now. Stay on the line."
	case telephony.StatusRinging:
		return "The emergency line is ringing. Help is being connected."
	case telephony.StatusInProgress, telephony.StatusAnswered:
		return "Emergency services have answered. Help is on the way."
	case telephony.StatusCompleted:
		return "The emergency call is complete. Responders have been notified."
	case telephony.StatusBusy, telephony.StatusNoAnswer:
		return "The emergency line could not be reached. Please call your local emergency number directly."
	case telephony.StatusFailed, telephony.StatusCanceled:
		return "The emergency call could not be completed. Please call your local emergency number directly."
	}
	return "Emergency call status: " + string(status) + "."
}
