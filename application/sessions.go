package application

import (
	"sync"

	"betslip/domain/services"
	"betslip/infrastructure/observability"
)

// SessionRegistry tracks the live ticket builders so market updates can be
// fanned out to every slip that might hold the moved selection. One builder
// per account; a second Register for the same account replaces the first.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*services.TicketService
}

// NewSessionRegistry creates an empty session registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*services.TicketService),
	}
}

// Register adds a ticket session for the account.
func (sr *SessionRegistry) Register(accountID string, svc *services.TicketService) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if _, exists := sr.sessions[accountID]; !exists {
		observability.GetMetrics().UpdateActiveSessions(1)
	}
	sr.sessions[accountID] = svc
}

// Unregister removes the account's session if one is registered.
func (sr *SessionRegistry) Unregister(accountID string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if _, exists := sr.sessions[accountID]; exists {
		observability.GetMetrics().UpdateActiveSessions(-1)
		delete(sr.sessions, accountID)
	}
}

// Get returns the account's session, nil when none is registered.
func (sr *SessionRegistry) Get(accountID string) *services.TicketService {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return sr.sessions[accountID]
}

// Each calls fn for every registered session. The registry lock is held for
// the duration, so fn must not call back into Register or Unregister.
func (sr *SessionRegistry) Each(fn func(accountID string, svc *services.TicketService)) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	for accountID, svc := range sr.sessions {
		fn(accountID, svc)
	}
}

// Len returns the number of registered sessions.
func (sr *SessionRegistry) Len() int {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return len(sr.sessions)
}
