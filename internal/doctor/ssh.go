package doctor

import (
	"fmt"
	"net"
	"os"

	"github.com/halyard-dev/halyard/internal/remote"
	"github.com/halyard-dev/halyard/internal/setup"
	"github.com/halyard-dev/halyard/internal/util"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh/agent"
)

// SSHKeyCheck verifies a local SSH key exists.
type SSHKeyCheck struct{}

func (c *SSHKeyCheck) Name() string     { return "ssh_key" }
func (c *SSHKeyCheck) Category() string { return "SSH" }

func (c *SSHKeyCheck) Run() CheckResult {
	keys := setup.FindLocalKeys()
	if len(keys) == 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "No SSH key found",
			Suggestion: "Generate one with: ssh-keygen -t ed25519",
		}
	}

	var names []string
	for _, k := range keys {
		names = append(names, k.Type)
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("SSH keys found: %s", util.JoinOrNone(names)),
	}
}

// SSHAgentCheck verifies the SSH agent is reachable and holds identities.
type SSHAgentCheck struct{}

func (c *SSHAgentCheck) Name() string     { return "ssh_agent" }
func (c *SSHAgentCheck) Category() string { return "SSH" }

func (c *SSHAgentCheck) Run() CheckResult {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "SSH agent not running",
			Suggestion: "Start one with: eval $(ssh-agent) && ssh-add",
		}
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "SSH agent socket not accessible",
			Suggestion: "Restart it with: eval $(ssh-agent) && ssh-add",
		}
	}
	defer conn.Close() //nolint:errcheck // diagnostic probe

	keys, err := agent.NewClient(conn).List()
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("SSH agent not responding: %v", err),
			Suggestion: "Restart it with: eval $(ssh-agent) && ssh-add",
		}
	}
	if len(keys) == 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "SSH agent running but holds no identities",
			Suggestion: "Load a key with: ssh-add",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("SSH agent running with %d %s", len(keys), util.Pluralize(len(keys), "identity", "identities")),
	}
}

// CredentialCheck runs the same resolution execution uses and reports which
// source, if any, would win.
type CredentialCheck struct {
	Env remote.CredentialEnv
}

func (c *CredentialCheck) Name() string     { return "credentials" }
func (c *CredentialCheck) Category() string { return "SSH" }

func (c *CredentialCheck) Run() CheckResult {
	resolver := remote.NewAuthResolver(c.Env, zerolog.Nop())
	defer resolver.Close()

	cred, err := resolver.Resolve()
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "No usable SSH credential",
			Suggestion: "Set HALYARD_SSH_KEY, run ssh-add, or set HALYARD_SSH_KEY_FILE",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Credential source: " + cred.Strategy,
	}
}

// KnownHostsCheck verifies the known_hosts file exists when strict host key
// checking is on.
type KnownHostsCheck struct {
	Path   string
	Strict bool
}

func (c *KnownHostsCheck) Name() string     { return "known_hosts" }
func (c *KnownHostsCheck) Category() string { return "SSH" }

func (c *KnownHostsCheck) Run() CheckResult {
	if !c.Strict {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "Strict host key checking is disabled",
			Suggestion: "Enable ssh.strict_host_key in the config for production use",
		}
	}

	if _, err := os.Stat(c.Path); err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "known_hosts file not found: " + c.Path,
			Suggestion: "Connect to each host once with ssh to record its key, or adjust ssh.known_hosts",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "known_hosts: " + c.Path,
	}
}
