package scanflow

import (
	"errors"
	"fmt"
	"sync"
)

// State of one terminal's scan session. A scan walks
// Idle -> Scanning -> Resolving -> Redeeming -> Result and back to Idle.
// Cancellation is legal only while Scanning; once the pipeline starts
// talking to the network it runs to completion.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateResolving
	StateRedeeming
	StateResult
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateResolving:
		return "resolving"
	case StateRedeeming:
		return "redeeming"
	case StateResult:
		return "result"
	}
	return "unknown"
}

var (
	// ErrScanInProgress means the terminal already has a scan in flight.
	ErrScanInProgress = errors.New("scanflow: scan already in progress")

	// ErrNotCancellable means Cancel was called outside the Scanning state.
	ErrNotCancellable = errors.New("scanflow: scan is past the point of cancellation")
)

// Session serializes scans on a single terminal.
type Session struct {
	mu    sync.Mutex
	state State
}

// Start claims the session for a new scan. Fails unless the session is idle.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("%w (state %s)", ErrScanInProgress, s.state)
	}
	s.state = StateScanning
	return nil
}

// Cancel abandons a scan that has not started resolving yet.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateScanning {
		return fmt.Errorf("%w (state %s)", ErrNotCancellable, s.state)
	}
	s.state = StateIdle
	return nil
}

// Advance moves the session forward one pipeline stage. Transitions only go
// Scanning -> Resolving -> Redeeming -> Result; anything else panics because
// it is a programming error in the pipeline, not an operator condition.
func (s *Session) Advance(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if to != s.state+1 || to == StateScanning || to > StateResult {
		panic(fmt.Sprintf("scanflow: illegal transition %s -> %s", s.state, to))
	}
	s.state = to
}

// Reset returns the session to idle from any state. The pipeline defers it
// so a failed scan frees the terminal.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
}

// State is a snapshot for observers (the UI polls it, nothing more).
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tracker hands out one session per terminal ID.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*Session)}
}

func (t *Tracker) Session(terminalID string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[terminalID]
	if !ok {
		sess = &Session{}
		t.sessions[terminalID] = sess
	}
	return sess
}
