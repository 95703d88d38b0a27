package remote

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/halyard-dev/halyard/pkg/sshutil"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"
)

// Connect timeout ceilings.
const (
	// DefaultConnectTimeout bounds a plain connect attempt.
	DefaultConnectTimeout = 10 * time.Second
	// DeployConnectTimeout bounds connects made during key-deployment flows,
	// which include an extra round of remote writes.
	DeployConnectTimeout = 15 * time.Second
)

// Target identifies the host a session should be opened to. It mirrors the
// fields of a stored connection record that the transport needs.
type Target struct {
	ID   string
	Host string
	Port int
	User string
}

// Addr returns the host:port dial address.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// SessionState describes where a connection id is in its lifecycle.
type SessionState int

const (
	StateAbsent SessionState = iota
	StateConnecting
	StateReady
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "absent"
	}
}

// Session maps a connection id to a live authenticated transport handle.
// Sessions are created and destroyed only by the SessionManager. The execMu
// serializes command execution: the remote channel cannot interleave two
// commands, so at most one Execute runs per session at a time.
type Session struct {
	ConnectionID string
	Strategy     string // credential strategy that authenticated this session

	client sshutil.SSHClient
	execMu sync.Mutex
}

// Client exposes the transport handle for read-only use (probes, liveness).
func (s *Session) Client() sshutil.SSHClient {
	return s.client
}

// Dialer opens an authenticated transport to a target. Swappable for tests.
type Dialer func(ctx context.Context, target Target, cred *Credential, timeout time.Duration) (sshutil.SSHClient, error)

// SessionManager owns the connection-id to session table. It is the only
// component allowed to create or destroy transport handles; everything else
// obtains sessions through Get/Ensure.
//
// Per id the lifecycle is Absent -> Connecting -> Ready -> Closed, with a
// failed connect dropping back to Absent.
type SessionManager struct {
	resolver *AuthResolver
	dial     Dialer
	timeout  time.Duration
	log      zerolog.Logger

	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
	states   map[string]SessionState
}

// ManagerOption tweaks a SessionManager.
type ManagerOption func(*SessionManager)

// WithDialer replaces the transport dialer (used by tests).
func WithDialer(d Dialer) ManagerOption {
	return func(m *SessionManager) { m.dial = d }
}

// WithConnectTimeout overrides the connect timeout ceiling.
func WithConnectTimeout(d time.Duration) ManagerOption {
	return func(m *SessionManager) { m.timeout = d }
}

// NewSessionManager creates a manager that resolves credentials through the
// given resolver and dials over SSH.
func NewSessionManager(resolver *AuthResolver, hostKeyCallback ssh.HostKeyCallback, log zerolog.Logger, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		resolver: resolver,
		timeout:  DefaultConnectTimeout,
		log:      log,
		sessions: make(map[string]*Session),
		states:   make(map[string]SessionState),
	}
	m.dial = func(ctx context.Context, target Target, cred *Credential, timeout time.Duration) (sshutil.SSHClient, error) {
		config := &ssh.ClientConfig{
			User:            target.User,
			Auth:            []ssh.AuthMethod{cred.Method},
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		}
		return sshutil.Dial(target.Addr(), config)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ensure returns the Ready session for the target's connection id, opening
// one if needed. Concurrent calls for the same id while a connect is in
// flight share that attempt instead of dialing twice.
func (m *SessionManager) Ensure(ctx context.Context, target Target) (*Session, error) {
	if sess := m.Get(target.ID); sess != nil {
		return sess, nil
	}

	v, err, _ := m.group.Do(target.ID, func() (interface{}, error) {
		// Re-check under the flight: another caller may have connected
		// between our fast path and joining the group.
		if sess := m.Get(target.ID); sess != nil {
			return sess, nil
		}
		return m.connect(ctx, target)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *SessionManager) connect(ctx context.Context, target Target) (*Session, error) {
	m.setState(target.ID, StateConnecting)

	cred, err := m.resolver.Resolve()
	if err != nil {
		m.setState(target.ID, StateAbsent)
		return nil, err
	}

	start := time.Now()
	client, err := m.dial(ctx, target, cred, m.timeout)
	if err != nil {
		m.setState(target.ID, StateAbsent)
		m.log.Warn().Err(err).Str("connection", target.ID).Str("addr", target.Addr()).Msg("connect failed")
		if errors.IsCode(err, errors.ErrConnect) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrConnect,
			"Couldn't open a session to "+target.Addr(),
			"Check the host is reachable and SSH is running")
	}

	sess := &Session{
		ConnectionID: target.ID,
		Strategy:     cred.Strategy,
		client:       client,
	}

	m.mu.Lock()
	m.sessions[target.ID] = sess
	m.states[target.ID] = StateReady
	m.mu.Unlock()

	m.log.Info().
		Str("connection", target.ID).
		Str("addr", target.Addr()).
		Str("strategy", cred.Strategy).
		Dur("took", time.Since(start)).
		Msg("session ready")

	return sess, nil
}

// Get returns the Ready session for id, or nil. Dead sessions are torn down
// so the next Ensure reconnects.
func (m *SessionManager) Get(id string) *Session {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if !sess.client.IsAlive() {
		m.log.Debug().Str("connection", id).Msg("cached session dead, discarding")
		m.Disconnect(id)
		return nil
	}
	return sess
}

// State reports the lifecycle state for a connection id.
func (m *SessionManager) State(id string) SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.states[id]; ok {
		return state
	}
	return StateAbsent
}

// Disconnect tears down the session for id. Idempotent; unknown ids are a
// no-op. Any in-flight command on the session observes a channel failure.
func (m *SessionManager) Disconnect(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.states[id] = StateClosed
	m.mu.Unlock()

	if ok {
		sess.client.Close() //nolint:errcheck // teardown, error not actionable
		m.log.Info().Str("connection", id).Msg("session closed")
	}
}

// DisconnectAll tears down every tracked session. Used at process shutdown.
func (m *SessionManager) DisconnectAll() {
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

// ActiveSessions returns the ids with a live session, for diagnostics.
func (m *SessionManager) ActiveSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (m *SessionManager) setState(id string, state SessionState) {
	m.mu.Lock()
	m.states[id] = state
	m.mu.Unlock()
}
