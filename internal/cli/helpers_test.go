package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastertools/slugship/internal/auth"
)

// cliOutput holds what a command wrote to each stream
type cliOutput struct {
	Data     *bytes.Buffer
	Messages *bytes.Buffer
	Errors   *bytes.Buffer
}

// captureOutput redirects the package writers for the duration of the test
func captureOutput(t *testing.T) *cliOutput {
	t.Helper()

	out := &cliOutput{
		Data:     &bytes.Buffer{},
		Messages: &bytes.Buffer{},
		Errors:   &bytes.Buffer{},
	}

	oldData, oldColor, oldErr := dataOutput, colorOutput, errOutput
	dataOutput, colorOutput, errOutput = out.Data, out.Messages, out.Errors
	t.Cleanup(func() {
		dataOutput, colorOutput, errOutput = oldData, oldColor, oldErr
	})
	return out
}

// executeRoot runs a fresh root command with args and a clean viper
func executeRoot(t *testing.T, args ...string) error {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

// useTokenEnv makes the CLI read its API token from a test-only variable
func useTokenEnv(t *testing.T, token string) {
	t.Helper()

	t.Setenv("SLUGSHIP_TEST_TOKEN", token)
	old := newTokenResolver
	newTokenResolver = func() *auth.Resolver {
		return &auth.Resolver{Sources: []auth.TokenSource{auth.EnvSource{Var: "SLUGSHIP_TEST_TOKEN"}}}
	}
	t.Cleanup(func() { newTokenResolver = old })
}

// mockSurveyAskOne answers every prompt with response
func mockSurveyAskOne(t *testing.T, response bool) {
	t.Helper()

	old := surveyAskOne
	surveyAskOne = func(p survey.Prompt, resp interface{}, opts ...survey.AskOpt) error {
		if v, ok := resp.(*bool); ok {
			*v = response
		}
		return nil
	}
	t.Cleanup(func() { surveyAskOne = old })
}

// createJarProject lays out a project root with a built jar
func createJarProject(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "target"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "target", "app.jar"), []byte("jar"), 0600))
	return root
}

func hasSubcommand(cmd *cobra.Command, name string) bool {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return true
		}
	}
	return false
}

func assertFlag(t *testing.T, cmd *cobra.Command, name, defValue string) {
	t.Helper()

	f := cmd.Flags().Lookup(name)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(name)
	}
	if assert.NotNil(t, f, "flag --%s not found", name) {
		assert.Equal(t, defValue, f.DefValue)
	}
}
