package doctor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/halyard-dev/halyard/internal/store"
)

const reachTimeout = 5 * time.Second

// StoreCheck verifies the connection database opens and reports how many
// connections are saved.
type StoreCheck struct {
	Path string
}

func (c *StoreCheck) Name() string     { return "database" }
func (c *StoreCheck) Category() string { return "CONNECTIONS" }

func (c *StoreCheck) Run() CheckResult {
	s, err := store.Open(c.Path)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Cannot open database: %v", err),
			Suggestion: "Check permissions on " + c.Path,
		}
	}
	defer s.Close() //nolint:errcheck // diagnostic probe

	conns, err := s.ListConnections(context.Background())
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusFail,
			Message: fmt.Sprintf("Database unreadable: %v", err),
		}
	}

	if len(conns) == 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "Database open, no connections saved",
			Suggestion: "Add one with 'halyard connection add' or import from ~/.ssh/config",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Database open, %d connections saved", len(conns)),
	}
}

// ReachabilityCheck verifies a saved connection's SSH port accepts TCP.
// It never authenticates; reachability and credentials are separate questions.
type ReachabilityCheck struct {
	Connection store.Connection
}

func (c *ReachabilityCheck) Name() string     { return "reach_" + c.Connection.Name }
func (c *ReachabilityCheck) Category() string { return "CONNECTIONS" }

func (c *ReachabilityCheck) Run() CheckResult {
	addr := net.JoinHostPort(c.Connection.Host, fmt.Sprintf("%d", c.Connection.Port))
	conn, err := net.DialTimeout("tcp", addr, reachTimeout)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: unreachable (%v)", c.Connection.Name, err),
			Suggestion: "Check the host is up and SSH is listening on " + addr,
		}
	}
	conn.Close() //nolint:errcheck // diagnostic probe

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%s: %s reachable", c.Connection.Name, addr),
	}
}

// OracleCheck verifies the translation endpoint answers HTTP, when configured.
type OracleCheck struct {
	Endpoint string
}

func (c *OracleCheck) Name() string     { return "oracle" }
func (c *OracleCheck) Category() string { return "ORACLE" }

func (c *OracleCheck) Run() CheckResult {
	if c.Endpoint == "" {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: "No translation endpoint configured (optional)",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), reachTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.Endpoint, nil)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Invalid oracle endpoint: %v", err),
			Suggestion: "Check oracle.endpoint in the config",
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("Translation endpoint unreachable: %v", err),
			Suggestion: "Translation requests will fail until the endpoint is up",
		}
	}
	resp.Body.Close() //nolint:errcheck // diagnostic probe

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Translation endpoint answered (%d)", resp.StatusCode),
	}
}
