package testing

import (
	"io"
	"testing"
	"time"

	"github.com/halyard-dev/halyard/pkg/sshutil"
)

// Compile-time check that MockClient satisfies the client interface.
var _ sshutil.SSHClient = (*MockClient)(nil)

func TestMockClient_ExactMatch(t *testing.T) {
	m := NewMockClient("test:22")
	m.Respond("uname -s", CommandResponse{
		Stdout: []byte("Linux\n"),
		Status: sshutil.ExitStatus{Code: 0, Known: true},
	})

	stdout, _, status, err := m.Exec("uname -s")
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if string(stdout) != "Linux\n" {
		t.Errorf("stdout = %q", stdout)
	}
	if status.Code != 0 || !status.Known {
		t.Errorf("status = %+v", status)
	}
}

func TestMockClient_PatternMatch(t *testing.T) {
	m := NewMockClient("test:22")
	m.RespondPattern(`^command -v `, CommandResponse{
		Stdout: []byte("/usr/bin/docker\n"),
		Status: sshutil.ExitStatus{Code: 0, Known: true},
	})

	stdout, _, _, err := m.Exec("command -v docker")
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if string(stdout) != "/usr/bin/docker\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestMockClient_UnknownCommandIs127(t *testing.T) {
	m := NewMockClient("test:22")

	_, stderr, status, err := m.Exec("frobnicate")
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if status.Code != 127 {
		t.Errorf("exit code = %d, want 127", status.Code)
	}
	if len(stderr) == 0 {
		t.Error("expected command-not-found stderr")
	}
}

func TestMockClient_ClosedFailsFast(t *testing.T) {
	m := NewMockClient("test:22")
	m.Close()

	if m.IsAlive() {
		t.Error("IsAlive should be false after Close")
	}
	if _, _, _, err := m.Exec("true"); err == nil {
		t.Error("Exec on closed client should fail")
	}
	if _, err := m.OpenExec(); err == nil {
		t.Error("OpenExec on closed client should fail")
	}
}

func TestMockChannel_Streams(t *testing.T) {
	m := NewMockClient("test:22")
	m.Respond("echo hi", CommandResponse{
		Stdout: []byte("hi\n"),
		Stderr: []byte("warn\n"),
		Status: sshutil.ExitStatus{Code: 0, Known: true},
	})

	ch, err := m.OpenExec()
	if err != nil {
		t.Fatalf("OpenExec: %v", err)
	}
	defer ch.Close()

	if err := ch.Start("echo hi"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	out, _ := io.ReadAll(ch.Stdout())
	errOut, _ := io.ReadAll(ch.Stderr())
	status, err := ch.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if string(out) != "hi\n" || string(errOut) != "warn\n" {
		t.Errorf("streams = %q / %q", out, errOut)
	}
	if !status.Known || status.Code != 0 {
		t.Errorf("status = %+v", status)
	}
}

func TestMockChannel_DelayHoldsBackOutput(t *testing.T) {
	const delay = 80 * time.Millisecond

	m := NewMockClient("test:22")
	m.Respond("slow", CommandResponse{
		Stdout: []byte("done\n"),
		Status: sshutil.ExitStatus{Code: 0, Known: true},
		Delay:  delay,
	})

	ch, err := m.OpenExec()
	if err != nil {
		t.Fatalf("OpenExec: %v", err)
	}
	defer ch.Close()

	start := time.Now()
	if err := ch.Start("slow"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	out, _ := io.ReadAll(ch.Stdout())
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("output arrived after %v, want at least %v", elapsed, delay)
	}
	if string(out) != "done\n" {
		t.Errorf("stdout = %q", out)
	}
	if _, err := ch.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestMockClient_RecordsCommands(t *testing.T) {
	m := NewMockClient("test:22")
	m.Exec("first")
	m.Exec("second")

	got := m.Commands()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("Commands() = %v", got)
	}
}
