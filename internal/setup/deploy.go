package setup

import (
	"fmt"
	"strings"

	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/halyard-dev/halyard/internal/util"
	"github.com/halyard-dev/halyard/pkg/sshutil"
)

// DeployAuthorizedKey appends a public key to the remote user's
// authorized_keys over an established session. Idempotent: a key already
// present is not appended again.
func DeployAuthorizedKey(client sshutil.SSHClient, publicKey string) error {
	key := strings.TrimSpace(publicKey)
	if key == "" {
		return errors.New(errors.ErrAuth,
			"Public key is empty",
			"Pass the contents of a .pub file")
	}
	if strings.ContainsAny(key, "\n\r") {
		return errors.New(errors.ErrAuth,
			"Public key must be a single line",
			"Pass exactly one key from a .pub file")
	}

	quoted := util.ShellQuote(key)
	command := fmt.Sprintf(
		"mkdir -p ~/.ssh && chmod 700 ~/.ssh && touch ~/.ssh/authorized_keys && chmod 600 ~/.ssh/authorized_keys && { grep -qxF %s ~/.ssh/authorized_keys || echo %s >> ~/.ssh/authorized_keys; }",
		quoted, quoted)

	stdout, stderr, status, err := client.Exec(command)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrAuth,
			"Couldn't deploy key to "+client.Addr(),
			"Check the session is alive and the remote shell is POSIX")
	}
	if status.Known && status.Code != 0 {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = strings.TrimSpace(string(stdout))
		}
		return errors.New(errors.ErrAuth,
			fmt.Sprintf("Key deployment failed on %s (exit %d): %s", client.Addr(), status.Code, detail),
			"Check the remote home directory is writable")
	}
	return nil
}

// VerifyAccess checks that the session can run commands at all.
func VerifyAccess(client sshutil.SSHClient) error {
	stdout, _, status, err := client.Exec("echo ok")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrAuth,
			"Couldn't run a test command on "+client.Addr(), "")
	}
	if !status.Known || status.Code != 0 || strings.TrimSpace(string(stdout)) != "ok" {
		return errors.New(errors.ErrAuth,
			"Test command on "+client.Addr()+" did not succeed",
			"Check the remote shell and account restrictions")
	}
	return nil
}
