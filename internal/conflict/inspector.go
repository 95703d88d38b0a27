package conflict

import (
	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/rs/zerolog"
)

// Verdict is the outcome of a duplicate check.
type Verdict struct {
	IsDuplicate bool     `json:"isDuplicate"`
	Rule        Kind     `json:"rule,omitempty"`    // the rule that matched, if any
	Message     string   `json:"message,omitempty"` // human explanation when duplicate
	Suggestions []string `json:"suggestions,omitempty"`
}

// Runner executes a probe command on the target session and reports its
// exit code. Probes run through the same serialized execution path as real
// commands, so a probe never interleaves with another command's output.
type Runner interface {
	Run(command string) (output string, exitCode int, err error)
}

// Inspector evaluates the rule table against candidate commands.
type Inspector struct {
	log zerolog.Logger
}

// NewInspector creates an inspector.
func NewInspector(log zerolog.Logger) *Inspector {
	return &Inspector{log: log}
}

// Check decides whether the candidate command's effect already exists on
// the remote host. Rules are evaluated in fixed priority order and only the
// first matching rule runs its probe.
//
// A probe that exits non-zero is an ordinary "not present" answer. A probe
// that fails to execute at all returns a PROBE error; callers should treat
// that as "cannot determine" and proceed rather than block the user.
func (ins *Inspector) Check(r Runner, command string) (*Verdict, error) {
	for i := range rules {
		rule := &rules[i]
		params := rule.matchParams(command)
		if params == nil {
			continue
		}

		probe := rule.probe(params)
		ins.log.Debug().
			Str("rule", string(rule.kind)).
			Str("probe", probe).
			Msg("running conflict probe")

		_, exitCode, err := r.Run(probe)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrProbe,
				"Conflict probe failed to run",
				"Treating the command as not a duplicate")
		}

		if exitCode != 0 {
			// Negative result: the effect does not exist yet.
			return &Verdict{Rule: rule.kind}, nil
		}

		message, suggestions := rule.describe(params)
		return &Verdict{
			IsDuplicate: true,
			Rule:        rule.kind,
			Message:     message,
			Suggestions: suggestions,
		}, nil
	}

	// No rule matched: nothing to check.
	return &Verdict{}, nil
}
