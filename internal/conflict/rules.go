// Package conflict implements the pre-execution duplicate check: before a
// mutating command runs, small read-only probes inspect the remote host to
// see whether the command's effect already exists.
package conflict

import (
	"fmt"
	"regexp"

	"github.com/halyard-dev/halyard/internal/util"
)

// Kind identifies which rule category matched a command.
type Kind string

const (
	KindPackageInstall Kind = "package-install"
	KindImageBuild     Kind = "image-build"
	KindContainerRun   Kind = "container-run"
	KindServiceStart   Kind = "service-start"
	KindRepoInit       Kind = "repo-init"
)

// rule is one entry in the ordered rule table. matcher decides whether the
// rule applies and extracts parameters via named capture groups; probe
// builds the read-only inspection command; describe builds the
// human-facing verdict when the probe finds the effect already present.
//
// Probes must be idempotent, read-only shell expressions. A probe exiting 0
// means "effect exists"; any non-zero exit is an ordinary negative result.
type rule struct {
	kind     Kind
	matcher  *regexp.Regexp
	required []string // named groups that must be non-empty, else the rule is skipped
	probe    func(params map[string]string) string
	describe func(params map[string]string) (message string, suggestions []string)
}

// rules is evaluated in order; only the first match is checked. A command
// matching two categories gets exactly one probe, by design.
var rules = []rule{
	{
		kind: KindPackageInstall,
		matcher: regexp.MustCompile(
			`^\s*(?:sudo\s+)?(?:apt-get|apt|yum|dnf|brew)\s+(?:-\S+\s+)*install\s+(?:-\S+\s+)*(?P<pkg>[A-Za-z0-9][\w.+-]*)`),
		required: []string{"pkg"},
		probe: func(p map[string]string) string {
			pkg := util.ShellQuote(p["pkg"])
			// Try the generic lookup first, then the package databases;
			// first success wins.
			return fmt.Sprintf(
				"command -v %s >/dev/null 2>&1 || dpkg -s %s >/dev/null 2>&1 || rpm -q %s >/dev/null 2>&1 || brew list %s >/dev/null 2>&1",
				pkg, pkg, pkg, pkg)
		},
		describe: func(p map[string]string) (string, []string) {
			pkg := p["pkg"]
			return fmt.Sprintf("%s appears to be installed already", pkg), []string{
				fmt.Sprintf("%s --version", pkg),
				fmt.Sprintf("sudo apt install --reinstall %s", pkg),
				fmt.Sprintf("sudo apt update && sudo apt install --only-upgrade %s", pkg),
			}
		},
	},
	{
		kind: KindImageBuild,
		matcher: regexp.MustCompile(
			`^\s*(?:sudo\s+)?docker\s+(?:buildx\s+build|build)\s+.*?(?:-t|--tag)[=\s]+(?P<tag>\S+)`),
		required: []string{"tag"},
		probe: func(p map[string]string) string {
			return fmt.Sprintf("docker image inspect %s >/dev/null 2>&1", util.ShellQuote(p["tag"]))
		},
		describe: func(p map[string]string) (string, []string) {
			tag := p["tag"]
			return fmt.Sprintf("an image tagged %s already exists", tag), []string{
				fmt.Sprintf("docker rmi %s", tag),
				fmt.Sprintf("docker build -t %s:v2 .", baseImageName(tag)),
				"docker images",
			}
		},
	},
	{
		kind: KindContainerRun,
		matcher: regexp.MustCompile(
			`^\s*(?:sudo\s+)?docker\s+run\s+.*?--name[=\s]+(?P<name>\S+)`),
		required: []string{"name"},
		probe: func(p map[string]string) string {
			return fmt.Sprintf("docker ps --format '{{.Names}}' | grep -Fxq %s", util.ShellQuote(p["name"]))
		},
		describe: func(p map[string]string) (string, []string) {
			name := p["name"]
			return fmt.Sprintf("a container named %s is already running", name), []string{
				fmt.Sprintf("docker logs %s", name),
				fmt.Sprintf("docker rm -f %s", name),
				"docker ps",
			}
		},
	},
	{
		kind: KindServiceStart,
		matcher: regexp.MustCompile(
			`^\s*(?:sudo\s+)?(?:systemctl|service)\s+start\s+(?P<svc>[\w@.-]+)`),
		required: []string{"svc"},
		probe: func(p map[string]string) string {
			return fmt.Sprintf("systemctl is-active --quiet %s", util.ShellQuote(p["svc"]))
		},
		describe: func(p map[string]string) (string, []string) {
			svc := p["svc"]
			return fmt.Sprintf("service %s is already active", svc), []string{
				fmt.Sprintf("systemctl status %s", svc),
				fmt.Sprintf("sudo systemctl restart %s", svc),
			}
		},
	},
	{
		kind:    KindRepoInit,
		matcher: regexp.MustCompile(`^\s*git\s+init(?:\s+(?P<dir>[^\s-]\S*))?\s*$`),
		// dir is optional: no required groups.
		probe: func(p map[string]string) string {
			if dir := p["dir"]; dir != "" {
				return fmt.Sprintf("test -d %s/.git", util.ShellQuote(dir))
			}
			return "test -d .git"
		},
		describe: func(p map[string]string) (string, []string) {
			where := "the current directory"
			if dir := p["dir"]; dir != "" {
				where = dir
			}
			return fmt.Sprintf("a git repository already exists in %s", where), []string{
				"git status",
				"git remote -v",
			}
		},
	},
}

// matchParams runs the rule's matcher and extracts named groups.
// Returns nil when the command doesn't match or a required group is empty
// (failed extraction skips the rule, it is not an error).
func (r *rule) matchParams(command string) map[string]string {
	m := r.matcher.FindStringSubmatch(command)
	if m == nil {
		return nil
	}
	params := make(map[string]string)
	for i, name := range r.matcher.SubexpNames() {
		if name != "" && i < len(m) {
			params[name] = m[i]
		}
	}
	for _, name := range r.required {
		if params[name] == "" {
			return nil
		}
	}
	return params
}

// baseImageName strips a :tag suffix from an image reference.
func baseImageName(ref string) string {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == ':' {
			return ref[:i]
		}
		if ref[i] == '/' {
			break
		}
	}
	return ref
}
