package session

import (
	"context"
	"sync"
	"time"

	"MinoriAI/internal/advisory"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultIdleTTL = 30 * time.Minute

// Manager owns the sessions of clients that call the one-shot REST path,
// keyed by client id. Sessions idle for longer than the TTL are dropped.
type Manager struct {
	cfg     Config
	models  Models
	lookup  advisory.Lookup
	idleTTL time.Duration
	log     *logrus.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg Config, models Models, lookup advisory.Lookup, idleTTL time.Duration, log *logrus.Logger) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Manager{
		cfg:      cfg,
		models:   models,
		lookup:   lookup,
		idleTTL:  idleTTL,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// New builds a session with the manager's defaults without registering it.
func (m *Manager) New(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return New(id, m.cfg, m.models, m.lookup, m.log)
}

// Get returns the session for clientID, creating it on first use. An empty
// id gets a fresh random one.
func (m *Manager) Get(clientID string) *Session {
	if clientID != "" {
		m.mu.RLock()
		s, ok := m.sessions[clientID]
		m.mu.RUnlock()
		if ok {
			s.touch()
			return s
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[clientID]; ok && clientID != "" {
		return s
	}
	s := m.New(clientID)
	m.sessions[s.ID()] = s

	m.log.WithFields(logrus.Fields{
		"session": s.ID(),
	}).Debug("Session created")
	return s
}

func (m *Manager) Lookup(clientID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[clientID]
	return s, ok
}

func (m *Manager) Remove(clientID string) {
	m.mu.Lock()
	delete(m.sessions, clientID)
	m.mu.Unlock()
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions not used since now minus the idle TTL and returns
// how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.log.WithFields(logrus.Fields{
			"removed":   removed,
			"remaining": len(m.sessions),
		}).Info("Expired idle sessions")
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}
