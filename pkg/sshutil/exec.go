package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/halyard-dev/halyard/internal/errors"
	"golang.org/x/crypto/ssh"
)

// ExitStatus is the outcome of a remote command channel closing.
// Known is false when the channel closed without carrying an exit code;
// callers must not assume success in that case.
type ExitStatus struct {
	Code  int
	Known bool
}

// ExecChannel is a single remote command invocation. One channel runs exactly
// one command: Start, drain Stdout/Stderr, then Wait.
type ExecChannel interface {
	// Start begins executing cmd on the remote side.
	Start(cmd string) error

	// Stdout and Stderr expose the remote streams. Both must be drained
	// before Wait returns a meaningful status.
	Stdout() io.Reader
	Stderr() io.Reader

	// Wait blocks until the channel closes and reports the exit status.
	// A transport failure is returned as an error; a remote non-zero exit
	// is an ordinary ExitStatus, not an error.
	Wait() (ExitStatus, error)

	// Close tears the channel down. Safe after Wait.
	Close() error
}

// OpenExec opens a fresh exec channel on the connection.
func (c *Client) OpenExec() (ExecChannel, error) {
	session, err := c.Client.NewSession()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			"Failed to open command channel",
			"Connection may have been closed. Try reconnecting.")
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrExec, "Failed to attach stdout", "")
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrExec, "Failed to attach stderr", "")
	}

	return &execChannel{session: session, stdout: stdout, stderr: stderr}, nil
}

type execChannel struct {
	session *ssh.Session
	stdout  io.Reader
	stderr  io.Reader
}

func (e *execChannel) Start(cmd string) error {
	if err := e.session.Start(cmd); err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Failed to start command: %s", cmd),
			"Check if the command exists on the remote host.")
	}
	return nil
}

func (e *execChannel) Stdout() io.Reader { return e.stdout }
func (e *execChannel) Stderr() io.Reader { return e.stderr }

func (e *execChannel) Wait() (ExitStatus, error) {
	err := e.session.Wait()
	if err == nil {
		return ExitStatus{Code: 0, Known: true}, nil
	}

	var exitErr *ssh.ExitError
	if stderrors.As(err, &exitErr) {
		return ExitStatus{Code: exitErr.ExitStatus(), Known: true}, nil
	}

	var missingErr *ssh.ExitMissingError
	if stderrors.As(err, &missingErr) {
		// Channel closed without an exit code. Surface it as unknown
		// rather than pretending the command succeeded.
		return ExitStatus{Known: false}, nil
	}

	return ExitStatus{}, errors.WrapWithCode(err, errors.ErrExec,
		"Command channel closed abnormally",
		"The connection may have dropped mid-command.")
}

func (e *execChannel) Close() error {
	return e.session.Close()
}

// Exec runs a command, buffers its output, and returns stdout, stderr, and
// the exit status. Used for short inspection commands where streaming is
// not needed.
func (c *Client) Exec(cmd string) (stdout, stderr []byte, status ExitStatus, err error) {
	ch, err := c.OpenExec()
	if err != nil {
		return nil, nil, ExitStatus{}, err
	}
	defer ch.Close()

	if err := ch.Start(cmd); err != nil {
		return nil, nil, ExitStatus{}, err
	}

	var outBuf, errBuf bytes.Buffer
	done := make(chan error, 2)
	go func() { _, e := io.Copy(&outBuf, ch.Stdout()); done <- e }()
	go func() { _, e := io.Copy(&errBuf, ch.Stderr()); done <- e }()
	for i := 0; i < 2; i++ {
		<-done
	}

	status, err = ch.Wait()
	if err != nil {
		return outBuf.Bytes(), errBuf.Bytes(), ExitStatus{}, err
	}
	return outBuf.Bytes(), errBuf.Bytes(), status, nil
}
