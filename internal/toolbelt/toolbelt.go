// Package toolbelt wraps the local command-line tools the deploy flow consults:
// git for the current revision and the platform remote, and the platform CLI
// for an API token.
package toolbelt

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExecCommand is a variable that can be mocked in tests
var ExecCommand = exec.Command

// RemoteName is the git remote that points at the platform
const RemoteName = "heroku"

func output(dir, name string, args ...string) (string, error) {
	cmd := ExecCommand(name, args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Revision returns the commit HEAD points at in the repository containing dir,
// or "" when it cannot be resolved.
func Revision(dir string) string {
	rev, err := output(dir, "git", "rev-parse", "--verify", "HEAD")
	if err != nil {
		return ""
	}
	return rev
}

// AppName infers the application name from the URL of the platform git remote
func AppName(dir string) (string, error) {
	url, err := output(dir, "git", "config", "--get", "remote."+RemoteName+".url")
	if err != nil {
		return "", fmt.Errorf("no %q git remote: %w", RemoteName, err)
	}
	name, ok := ParseRemoteURL(url)
	if !ok {
		return "", fmt.Errorf("git remote %q is not a platform remote: %s", RemoteName, url)
	}
	return name, nil
}

// ParseRemoteURL extracts the app name from a platform git URL. Both
// https://git.heroku.com/<app>.git and git@heroku.com:<app>.git are accepted.
func ParseRemoteURL(url string) (string, bool) {
	var rest string
	switch {
	case strings.HasPrefix(url, "https://git.heroku.com/"):
		rest = strings.TrimPrefix(url, "https://git.heroku.com/")
	case strings.HasPrefix(url, "git@heroku.com:"):
		rest = strings.TrimPrefix(url, "git@heroku.com:")
	default:
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimSuffix(rest, "/"), ".git")
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// APIToken asks the platform CLI for the logged-in user's token
func APIToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return output("", "heroku", "auth:token")
}
