// Package remote implements the remote execution core: credential
// resolution, session lifecycle, streamed command execution, and the
// coordinator that ties them together.
package remote

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/halyard-dev/halyard/internal/util"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Credential strategy names, in resolution priority order.
const (
	StrategyExplicitKey = "explicit-key"
	StrategyAgent       = "agent"
	StrategyKeyFile     = "key-file"
)

// Credential is a transport-ready authentication method plus the name of
// the strategy that produced it.
type Credential struct {
	Method   ssh.AuthMethod
	Strategy string
}

// CredentialEnv holds the three credential inputs the resolver tries in
// order: explicit private-key material, an agent socket, and a key file path.
// Any of the three may be empty.
type CredentialEnv struct {
	ExplicitKey []byte // PEM private key material, e.g. from a deployment secret
	AgentSocket string // path to a running SSH agent's unix socket
	KeyFilePath string // path to a private key file
}

// EnvCredentials builds a CredentialEnv from the process environment:
// HALYARD_SSH_KEY (PEM content), SSH_AUTH_SOCK, and HALYARD_SSH_KEY_FILE.
// When HALYARD_SSH_KEY_FILE is unset, the first default key file that
// exists (~/.ssh/id_ed25519, id_rsa, id_ecdsa) is used.
func EnvCredentials() CredentialEnv {
	env := CredentialEnv{
		AgentSocket: os.Getenv("SSH_AUTH_SOCK"),
		KeyFilePath: os.Getenv("HALYARD_SSH_KEY_FILE"),
	}
	if key := os.Getenv("HALYARD_SSH_KEY"); key != "" {
		env.ExplicitKey = []byte(key)
	}
	if env.KeyFilePath == "" {
		env.KeyFilePath = firstDefaultKeyFile()
	}
	return env
}

func firstDefaultKeyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// AuthResolver selects a usable credential for a target host. Sources are
// tried in fixed priority order: explicit key, agent, key file. No network
// connection to the target is attempted during resolution.
type AuthResolver struct {
	env CredentialEnv
	log zerolog.Logger

	// dialAgent is swappable for tests.
	dialAgent func(socket string) (agent.Agent, io.Closer, error)

	mu           sync.Mutex
	agentConn    io.Closer
	agentClient  agent.Agent
	lastStrategy string
}

// NewAuthResolver creates a resolver over the given credential environment.
func NewAuthResolver(env CredentialEnv, log zerolog.Logger) *AuthResolver {
	return &AuthResolver{
		env:       env,
		log:       log,
		dialAgent: dialUnixAgent,
	}
}

// Resolve produces a credential or fails with an AUTH error listing the
// attempted sources. The winning strategy is recorded for diagnostics.
func (r *AuthResolver) Resolve() (*Credential, error) {
	var attempted []string

	// 1. Explicit key material: deterministic, no external dependency.
	if len(r.env.ExplicitKey) > 0 {
		attempted = append(attempted, StrategyExplicitKey)
		cred, err := r.explicitKeyCredential()
		if err == nil {
			r.record(StrategyExplicitKey)
			return cred, nil
		}
		r.log.Debug().Err(err).Msg("explicit key unusable, trying next source")
	}

	// 2. Agent: skipped (not retried) when the socket is absent or the
	// agent offers no identities.
	if r.env.AgentSocket != "" {
		attempted = append(attempted, StrategyAgent)
		cred := r.agentCredential()
		if cred != nil {
			r.record(StrategyAgent)
			return cred, nil
		}
	}

	// 3. Key file: last-resort fallback for test/dev environments.
	if r.env.KeyFilePath != "" {
		attempted = append(attempted, StrategyKeyFile)
		cred, err := r.keyFileCredential()
		if err == nil {
			r.record(StrategyKeyFile)
			return cred, nil
		}
		r.log.Debug().Err(err).Str("path", r.env.KeyFilePath).Msg("key file unusable")
	}

	return nil, errors.New(errors.ErrAuth,
		fmt.Sprintf("No usable SSH credential (tried: %s)", util.JoinOrNone(attempted)),
		"Set HALYARD_SSH_KEY, load a key into your agent (ssh-add), or point HALYARD_SSH_KEY_FILE at a private key")
}

// LastStrategy returns the strategy that produced the most recent
// successful credential, or an empty string.
func (r *AuthResolver) LastStrategy() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStrategy
}

// Close releases the cached agent connection, if any.
func (r *AuthResolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.agentConn != nil {
		r.agentConn.Close() //nolint:errcheck // shutdown cleanup
		r.agentConn = nil
		r.agentClient = nil
	}
}

func (r *AuthResolver) record(strategy string) {
	r.mu.Lock()
	r.lastStrategy = strategy
	r.mu.Unlock()
	r.log.Debug().Str("strategy", strategy).Msg("credential source selected")
}

func (r *AuthResolver) explicitKeyCredential() (*Credential, error) {
	signer, err := parsePrivateKey(r.env.ExplicitKey, "explicit key")
	if err != nil {
		return nil, err
	}
	return &Credential{Method: ssh.PublicKeys(signer), Strategy: StrategyExplicitKey}, nil
}

// agentCredential returns an agent-backed credential, or nil when the agent
// is unreachable or holds no identities. The agent connection is cached and
// reused across resolutions.
func (r *AuthResolver) agentCredential() *Credential {
	r.mu.Lock()
	client := r.agentClient
	if client == nil {
		c, closer, err := r.dialAgent(r.env.AgentSocket)
		if err != nil {
			r.mu.Unlock()
			r.log.Debug().Err(err).Str("socket", r.env.AgentSocket).Msg("agent unreachable")
			return nil
		}
		r.agentClient = c
		r.agentConn = closer
		client = c
	}
	r.mu.Unlock()

	// An empty agent causes auth failures when offered to the server,
	// so treat it as no credential at all.
	signers, err := client.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}

	return &Credential{Method: ssh.PublicKeysCallback(client.Signers), Strategy: StrategyAgent}
}

func (r *AuthResolver) keyFileCredential() (*Credential, error) {
	key, err := os.ReadFile(r.env.KeyFilePath)
	if err != nil {
		return nil, err
	}
	signer, err := parsePrivateKey(key, r.env.KeyFilePath)
	if err != nil {
		return nil, err
	}
	return &Credential{Method: ssh.PublicKeys(signer), Strategy: StrategyKeyFile}, nil
}

func dialUnixAgent(socket string) (agent.Agent, io.Closer, error) {
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, nil, err
	}
	return agent.NewClient(conn), conn, nil
}

// EncryptedKeyError is returned when an SSH key requires a passphrase.
type EncryptedKeyError struct {
	Source string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key (%s) is encrypted (passphrase protected)", e.Source)
}

func parsePrivateKey(pem []byte, source string) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		var passErr *ssh.PassphraseMissingError
		if stderrors.As(err, &passErr) || isEncryptedPEM(pem) ||
			strings.Contains(err.Error(), "encrypted") ||
			strings.Contains(err.Error(), "passphrase") {
			return nil, &EncryptedKeyError{Source: source}
		}
		return nil, err
	}
	return signer, nil
}

// isEncryptedPEM checks if PEM data contains encryption markers.
func isEncryptedPEM(data []byte) bool {
	return bytes.Contains(data, []byte("ENCRYPTED")) ||
		bytes.Contains(data, []byte("Proc-Type: 4,ENCRYPTED"))
}
