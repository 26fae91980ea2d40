package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vigil-voice/vigil/pkg/archive"
	"github.com/vigil-voice/vigil/pkg/crisis"
	"github.com/vigil-voice/vigil/pkg/dialog"
	"github.com/vigil-voice/vigil/pkg/emergency"
	"github.com/vigil-voice/vigil/pkg/wire"
)

// Manager owns the registry of live sessions and creates and tears down
// all per-session tasks atomically.
type Manager struct {
	pipeline *dialog.Pipeline
	calls    *emergency.Orchestrator
	archive  archive.Store
	logger   *slog.Logger
	cfg      Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. archiveStore may be nil to skip
// transcript archival; logger may be nil.
func NewManager(pipeline *dialog.Pipeline, calls *emergency.Orchestrator, archiveStore archive.Store, logger *slog.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pipeline: pipeline,
		calls:    calls,
		archive:  archiveStore,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// Connect registers a new session for a connected client and starts its
// proactive monitor. A session is born in standby; the first non-empty
// input wakes it, and until then the monitor leaves it alone.
func (m *Manager) Connect(sender Sender) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:           uuid.NewString(),
		mgr:          m,
		sender:       sender,
		logger:       m.logger,
		ctx:          ctx,
		cancel:       cancel,
		phase:        crisis.PhaseStandby,
		lastActivity: time.Now(),
		startedAt:    time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("session connected", "session_id", s.ID, "active", count)
	s.send(wire.Status("connected", "Voice agent ready."))

	go s.monitor(ctx)
	return s
}

// Disconnect tears a session down: the monitor and any live timer are
// cancelled, the transcript is archived, and the session is unregistered.
// Idempotent; later calls for the same id are no-ops.
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.timer.Cancel()
	m.archiveSession(s)

	m.logger.Info("session disconnected", "session_id", id)
}

// Get returns the live session with the given id, if any.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown disconnects every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Disconnect(id)
	}
}

// archiveSession saves the finished transcript. Best effort: a failed save
// is logged and never blocks teardown.
func (m *Manager) archiveSession(s *Session) {
	if m.archive == nil {
		return
	}

	s.mu.Lock()
	t := &archive.Transcript{
		SessionID: s.ID,
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
		CallID:    s.callID,
		Exchanges: append([]dialog.Exchange(nil), s.history...),
	}
	if s.escalation.Active() || s.escalation.CallTriggered() {
		t.Emergency = s.escalation.EmergencyType.String()
	}
	s.mu.Unlock()

	if len(t.Exchanges) == 0 && t.Emergency == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.archive.Save(ctx, t); err != nil {
		m.logger.Error("transcript archive failed", "session_id", s.ID, "error", err)
	}
}
