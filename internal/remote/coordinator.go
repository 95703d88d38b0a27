package remote

import (
	"context"

	"github.com/halyard-dev/halyard/internal/conflict"
	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/rs/zerolog"
)

// ExecutionRequest describes one command submission.
type ExecutionRequest struct {
	Target         Target
	Command        string
	CheckConflicts bool      // opt-in: probes cost extra round trips
	Sink           ChunkSink // optional streaming sink
}

// ActivityStore is the slice of the persistence collaborator the
// coordinator needs: marking a connection active deactivates all others.
type ActivityStore interface {
	SetActive(ctx context.Context, connectionID string) error
}

// Coordinator orchestrates a request through its states:
// Resolving -> Connected -> (Checking) -> Executing -> Completed|Failed.
// It never calls the executor before the session manager reports Ready,
// and on any step failure it stops with a typed cause.
type Coordinator struct {
	sessions  *SessionManager
	executor  *Executor
	inspector *conflict.Inspector
	activity  ActivityStore // optional
	log       zerolog.Logger
}

// NewCoordinator wires the execution pipeline together. activity may be nil
// when there is no persistence collaborator (e.g. one-shot CLI use).
func NewCoordinator(sessions *SessionManager, executor *Executor, inspector *conflict.Inspector, activity ActivityStore, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		sessions:  sessions,
		executor:  executor,
		inspector: inspector,
		activity:  activity,
		log:       log,
	}
}

// Sessions exposes the session manager for lifecycle operations
// (disconnects, shutdown).
func (c *Coordinator) Sessions() *SessionManager {
	return c.sessions
}

// Execute runs the request end to end. When a conflict check is requested
// and finds a duplicate, execution is skipped and the verdict is returned
// with a nil result; the caller decides whether to resubmit without the
// check. A probe failure never blocks execution: it degrades to "cannot
// determine", logged and carried on the verdict-less path.
func (c *Coordinator) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, *conflict.Verdict, error) {
	log := c.log.With().Str("connection", req.Target.ID).Logger()

	// Resolving -> Connected
	sess, err := c.sessions.Ensure(ctx, req.Target)
	if err != nil {
		return nil, nil, err
	}

	// The execution target becomes the active connection; all others are
	// deactivated. Best-effort: a store hiccup must not block the command.
	if c.activity != nil {
		if err := c.activity.SetActive(ctx, req.Target.ID); err != nil {
			log.Warn().Err(err).Msg("couldn't mark connection active")
		}
	}

	// Checking (optional)
	var verdict *conflict.Verdict
	if req.CheckConflicts {
		verdict, err = c.inspector.Check(&sessionRunner{executor: c.executor, sess: sess}, req.Command)
		if err != nil {
			// Flaky inspection never blocks legitimate work.
			log.Warn().Err(err).Msg("conflict probe failed, proceeding with execution")
			verdict = nil
		} else if verdict.IsDuplicate {
			log.Info().Str("rule", string(verdict.Rule)).Msg("duplicate detected, skipping execution")
			return nil, verdict, nil
		}
	}

	// Executing -> Completed|Failed
	result, err := c.executor.Execute(sess, req.Command, req.Sink)
	if err != nil {
		// Partial output (if any) rides along inside result.
		return result, verdict, err
	}

	return result, verdict, nil
}

// sessionRunner adapts the executor into the inspector's probe interface.
// Probes go through Execute so they serialize with real commands on the
// same session and never mutate manager state.
type sessionRunner struct {
	executor *Executor
	sess     *Session
}

func (r *sessionRunner) Run(command string) (string, int, error) {
	result, err := r.executor.Execute(r.sess, command, nil)
	if err != nil {
		return "", -1, err
	}
	if !result.ExitKnown {
		// A probe whose exit status vanished can't answer the question.
		return result.Output, -1, errors.New(errors.ErrProbe,
			"Probe finished without an exit code", "")
	}
	return result.Output, result.ExitCode, nil
}
