package sshutil

// SSHClient defines the interface for an authenticated SSH connection.
// Both the real Client and mock implementations satisfy this interface.
//
// This interface enables testing of SSH-dependent code without requiring
// actual SSH connections.
type SSHClient interface {
	// OpenExec opens a channel for a single streamed command.
	OpenExec() (ExecChannel, error)

	// Exec runs a command and returns buffered stdout, stderr, and exit status.
	Exec(cmd string) (stdout, stderr []byte, status ExitStatus, err error)

	// Close closes the SSH connection.
	Close() error

	// Addr returns the host:port address the client dialed.
	Addr() string

	// IsAlive reports whether the connection still responds.
	IsAlive() bool
}
