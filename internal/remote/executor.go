package remote

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/rs/zerolog"
)

// ChunkKind labels which remote stream a chunk came from.
type ChunkKind string

const (
	ChunkStdout ChunkKind = "stdout"
	ChunkStderr ChunkKind = "stderr"
)

// Chunk is one piece of streamed command output.
type Chunk struct {
	Kind ChunkKind
	Data []byte
}

// ChunkSink receives output chunks as they arrive. Sinks must not block:
// delivery happens on the executor's read path and a stalled sink would
// stall the command's output drain.
type ChunkSink func(Chunk)

// ExecutionResult is the outcome of one remote command.
type ExecutionResult struct {
	Output    string        // merged stdout+stderr, in arrival order
	ExitCode  int           // meaningful only when ExitKnown
	ExitKnown bool          // false when the channel closed without a code
	Failed    bool          // ExitKnown && ExitCode != 0
	Aborted   bool          // channel failed mid-command (e.g. disconnect)
	Duration  time.Duration // wall clock from dispatch to channel close
}

const chunkBufSize = 4096

// Executor runs single commands over established sessions. It imposes no
// timeout of its own; cancellation is session-granular via
// SessionManager.Disconnect.
type Executor struct {
	log zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(log zerolog.Logger) *Executor {
	return &Executor{log: log}
}

// Execute runs command on the session, streaming each chunk to sink (when
// non-nil) and collecting everything into the result's merged output.
// Requires a Ready session; never reconnects on its own.
//
// Commands on the same session are serialized in submission order. When the
// channel fails mid-command the partial output captured so far is returned
// alongside the error, with Aborted set.
func (e *Executor) Execute(sess *Session, command string, sink ChunkSink) (*ExecutionResult, error) {
	if sess == nil || sess.client == nil {
		return nil, errors.New(errors.ErrNoSession,
			"No session for this connection",
			"Connect first; execution never implicitly reconnects")
	}

	sess.execMu.Lock()
	defer sess.execMu.Unlock()

	start := time.Now()

	ch, err := sess.client.OpenExec()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	if err := ch.Start(command); err != nil {
		return nil, err
	}

	// stdout and stderr are independent asynchronous streams; both feed the
	// same ordered buffer so the user sees one merged log. The mutex keeps
	// buffer order and sink order identical.
	var out strings.Builder
	var outMu sync.Mutex
	var wg sync.WaitGroup

	drain := func(kind ChunkKind, r io.Reader) {
		defer wg.Done()
		buf := make([]byte, chunkBufSize)
		for {
			n, rerr := r.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])

				outMu.Lock()
				out.Write(data)
				if sink != nil {
					sink(Chunk{Kind: kind, Data: data})
				}
				outMu.Unlock()
			}
			if rerr != nil {
				return
			}
		}
	}

	wg.Add(2)
	go drain(ChunkStdout, ch.Stdout())
	go drain(ChunkStderr, ch.Stderr())
	wg.Wait()

	status, waitErr := ch.Wait()
	duration := time.Since(start)

	if waitErr != nil {
		// Channel failed before producing an exit code. Keep whatever
		// output made it through; it is often the only clue.
		result := &ExecutionResult{
			Output:   out.String(),
			Aborted:  true,
			Duration: duration,
		}
		e.log.Warn().
			Err(waitErr).
			Str("connection", sess.ConnectionID).
			Dur("took", duration).
			Msg("command channel failed")
		return result, waitErr
	}

	result := &ExecutionResult{
		Output:    out.String(),
		ExitCode:  status.Code,
		ExitKnown: status.Known,
		Failed:    status.Known && status.Code != 0,
		Duration:  duration,
	}

	e.log.Debug().
		Str("connection", sess.ConnectionID).
		Int("exit", status.Code).
		Bool("exit_known", status.Known).
		Dur("took", duration).
		Msg("command finished")

	return result, nil
}
