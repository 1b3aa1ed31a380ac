package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastertools/slugship/internal/auth"
)

// newTokenResolver is swapped in tests
var newTokenResolver = auth.NewResolver

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect platform authentication",
		Long: `Inspect platform authentication.

slugship never stores credentials. The API token is read from the
HEROKU_API_KEY environment variable, then the OS keyring entry of the
platform CLI, then 'heroku auth:token'.`,
	}

	cmd.AddCommand(newAuthTokenCmd())
	return cmd
}

func newAuthTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show which source provides the API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			token, source, err := newTokenResolver().Lookup(ctx)
			if err != nil {
				Error("No API token found")
				return fmt.Errorf("set %s or log in with 'heroku login': %w", auth.DefaultEnvVar, err)
			}

			return NewKeyValueBuilder("API token:").
				Add("Source", source).
				Add("Token", maskToken(token)).
				Write(NewDataWriter(dataOutput, outputFormat))
		},
	}
}

// maskToken keeps the last four characters of a token
func maskToken(token string) string {
	const visible = 4
	if len(token) <= visible {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-visible) + token[len(token)-visible:]
}
