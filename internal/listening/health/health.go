// Package health reports whether a listening session is serving, over HTTP
// and the standard gRPC health protocol.
package health

import (
	"sync"
	"time"

	"github.com/vietddude/listen/internal/core/domain"
)

// Status represents the serving state of a session.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusServing    Status = "serving"
	StatusNotServing Status = "not_serving"
)

// Report is the body of the /health endpoint.
type Report struct {
	Status  Status         `json:"status"`
	ChainID domain.ChainID `json:"chain_id"`
	Session string         `json:"session,omitempty"`
	Since   time.Time      `json:"since"`
}

// State tracks the current status. Safe for concurrent use.
type State struct {
	mu      sync.RWMutex
	chainID domain.ChainID
	session string
	status  Status
	since   time.Time
}

// NewState creates a state in StatusStarting.
func NewState(chainID domain.ChainID, session string) *State {
	return &State{
		chainID: chainID,
		session: session,
		status:  StatusStarting,
		since:   time.Now(),
	}
}

func (s *State) set(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == status {
		return
	}
	s.status = status
	s.since = time.Now()
}

// Report returns a snapshot of the state.
func (s *State) Report() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Report{
		Status:  s.status,
		ChainID: s.chainID,
		Session: s.session,
		Since:   s.since,
	}
}
