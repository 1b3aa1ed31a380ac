//go:build !production
// +build !production

package toolbelt

import (
	"os"
	"os/exec"
)

// MockExecCommandHelper creates a command that re-enters the test binary's
// TestHelperProcess instead of running the real tool. Extra environment
// entries steer the fake tool's answers.
func MockExecCommandHelper(env ...string) func(command string, args ...string) *exec.Cmd {
	return func(command string, args ...string) *exec.Cmd {
		cs := []string{"-test.run=TestHelperProcess", "--", command}
		cs = append(cs, args...)
		cmd := exec.Command(os.Args[0], cs...) // #nosec G204 - test mock code only
		cmd.Env = append([]string{"GO_WANT_HELPER_PROCESS=1"}, env...)
		return cmd
	}
}
