package remote

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/halyard-dev/halyard/internal/errors"
)

// commandNotFoundPatterns are regex patterns to detect "command not found"
// errors from various shells. These require exit code 127.
var commandNotFoundPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bash: (\S+): command not found`),
	regexp.MustCompile(`(?i)zsh: command not found: (\S+)`),
	regexp.MustCompile(`(?i)sh: \d+: (\S+): not found`),
	regexp.MustCompile(`(?i)-bash: (\S+): No such file or directory`),
	regexp.MustCompile(`(?i)(\S+): not found`),
	regexp.MustCompile(`(?i)(\S+): command not found`),
}

// IsCommandNotFound checks if the merged output indicates a missing command.
// Returns the command name (if extractable) and whether it's a
// command-not-found error.
func IsCommandNotFound(output string, exitCode int) (string, bool) {
	// Exit code 127 is the standard for command not found.
	if exitCode != 127 {
		return "", false
	}

	for _, pattern := range commandNotFoundPatterns {
		if matches := pattern.FindStringSubmatch(output); len(matches) > 1 {
			return matches[1], true
		}
	}

	// Exit code is 127 but couldn't extract the command name.
	return "", true
}

// DiagnoseResult inspects a finished execution and returns a structured
// error with a remediation hint when the failure has a recognizable cause,
// or nil otherwise. A non-zero exit on its own is not diagnosed; the output
// usually explains it better than we can.
func DiagnoseResult(command string, result *ExecutionResult) error {
	if result == nil || !result.Failed {
		return nil
	}

	cmdName, notFound := IsCommandNotFound(result.Output, result.ExitCode)
	if !notFound {
		return nil
	}

	displayCmd := cmdName
	if displayCmd == "" {
		if parts := strings.Fields(command); len(parts) > 0 {
			displayCmd = parts[0]
		} else {
			displayCmd = "command"
		}
	}

	suggestion := fmt.Sprintf(`'%s' wasn't found in the remote shell's PATH.

This can happen if:
- The tool isn't installed on the remote
- The tool is installed but not in the login shell's PATH

Fixes:

1. Install '%s' on the remote machine

2. If installed, verify it's in your PATH:
   ssh your-remote "which %s"`, displayCmd, displayCmd, displayCmd)

	return errors.New(errors.ErrExec,
		fmt.Sprintf("'%s' not found in PATH on remote", displayCmd),
		suggestion)
}
