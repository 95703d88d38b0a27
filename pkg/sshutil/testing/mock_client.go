// Package testing provides mock implementations of the sshutil interfaces
// for tests that exercise SSH-dependent code without a network.
package testing

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/halyard-dev/halyard/pkg/sshutil"
)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	Status   sshutil.ExitStatus
	Err      error
	Delay    time.Duration // simulated execution time before output appears
}

// MockClient simulates an SSH connection for testing. Commands are matched
// against registered exact strings first, then regex patterns, in
// registration order.
type MockClient struct {
	mu       sync.Mutex
	address  string
	closed   bool
	exact    map[string]CommandResponse
	patterns []patternResponse
	log      []string // commands executed, in order
}

type patternResponse struct {
	re   *regexp.Regexp
	resp CommandResponse
}

// NewMockClient creates a mock client. Unmatched commands return exit 127.
func NewMockClient(address string) *MockClient {
	return &MockClient{
		address: address,
		exact:   make(map[string]CommandResponse),
	}
}

// Respond registers a canned response for an exact command string.
func (m *MockClient) Respond(cmd string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exact[cmd] = resp
}

// RespondPattern registers a canned response for a regex pattern.
func (m *MockClient) RespondPattern(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, patternResponse{re: regexp.MustCompile(pattern), resp: resp})
}

// Commands returns the commands executed so far, in order.
func (m *MockClient) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.log))
	copy(out, m.log)
	return out
}

func (m *MockClient) lookup(cmd string) (CommandResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return CommandResponse{}, errors.New("connection closed")
	}
	m.log = append(m.log, cmd)

	if resp, ok := m.exact[cmd]; ok {
		return resp, nil
	}
	for _, p := range m.patterns {
		if p.re.MatchString(cmd) {
			return p.resp, nil
		}
	}

	// Unknown command behaves like a missing binary.
	return CommandResponse{
		Stderr: []byte("sh: " + cmd + ": command not found\n"),
		Status: sshutil.ExitStatus{Code: 127, Known: true},
	}, nil
}

// OpenExec returns a fake channel that replays the canned response for
// whatever command is started on it.
func (m *MockClient) OpenExec() (sshutil.ExecChannel, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, errors.New("connection closed")
	}
	return &mockChannel{client: m}, nil
}

// Exec runs a command and returns its canned response.
func (m *MockClient) Exec(cmd string) ([]byte, []byte, sshutil.ExitStatus, error) {
	resp, err := m.lookup(cmd)
	if err != nil {
		return nil, nil, sshutil.ExitStatus{}, err
	}
	if resp.Err != nil {
		return nil, nil, sshutil.ExitStatus{}, resp.Err
	}
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	return resp.Stdout, resp.Stderr, resp.Status, nil
}

// Close marks the connection as closed. Subsequent commands fail.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Addr returns the configured address.
func (m *MockClient) Addr() string { return m.address }

// IsAlive reports false once the client has been closed.
func (m *MockClient) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

type mockChannel struct {
	client  *MockClient
	resp    CommandResponse
	stdout  io.Reader
	stderr  io.Reader
	started bool
}

func (c *mockChannel) Start(cmd string) error {
	resp, err := c.client.lookup(cmd)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	c.resp = resp
	c.stdout = delayedReader(resp.Delay, resp.Stdout)
	c.stderr = delayedReader(resp.Delay, resp.Stderr)
	c.started = true
	return nil
}

// delayedReader holds output back until the simulated execution time has
// elapsed, so readers observe the delay the same way a real channel would.
func delayedReader(delay time.Duration, data []byte) io.Reader {
	if delay <= 0 {
		return bytes.NewReader(data)
	}
	return &sleepReader{delay: delay, r: bytes.NewReader(data)}
}

type sleepReader struct {
	delay time.Duration
	once  sync.Once
	r     io.Reader
}

func (s *sleepReader) Read(p []byte) (int, error) {
	s.once.Do(func() { time.Sleep(s.delay) })
	return s.r.Read(p)
}

func (c *mockChannel) Stdout() io.Reader {
	if c.stdout == nil {
		return bytes.NewReader(nil)
	}
	return c.stdout
}

func (c *mockChannel) Stderr() io.Reader {
	if c.stderr == nil {
		return bytes.NewReader(nil)
	}
	return c.stderr
}

func (c *mockChannel) Wait() (sshutil.ExitStatus, error) {
	if !c.started {
		return sshutil.ExitStatus{}, errors.New("Wait called before Start")
	}
	return c.resp.Status, nil
}

func (c *mockChannel) Close() error { return nil }
