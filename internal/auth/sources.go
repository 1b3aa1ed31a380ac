package auth

import (
	"context"
	"errors"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/fastertools/slugship/internal/toolbelt"
)

const (
	// KeyringService is the keyring entry the platform CLI stores tokens under
	KeyringService = "heroku-cli"
	// KeyringUsername is the account name of that entry
	KeyringUsername = "api-token"
)

// EnvSource reads the token verbatim from an environment variable
type EnvSource struct {
	Var string
}

// Name implements TokenSource
func (s EnvSource) Name() string { return "env:" + s.Var }

// Token implements TokenSource
func (s EnvSource) Token(ctx context.Context) (string, error) {
	return os.Getenv(s.Var), nil
}

// KeyringSource reads a token the platform CLI left in the OS keyring
type KeyringSource struct {
	Service  string
	Username string
}

// Name implements TokenSource
func (s KeyringSource) Name() string { return "keyring" }

// Token implements TokenSource
func (s KeyringSource) Token(ctx context.Context) (string, error) {
	service, user := s.Service, s.Username
	if service == "" {
		service = KeyringService
	}
	if user == "" {
		user = KeyringUsername
	}

	token, err := keyring.Get(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return token, err
}

// CommandSource asks the platform CLI for the logged-in user's token
type CommandSource struct{}

// Name implements TokenSource
func (CommandSource) Name() string { return "heroku auth:token" }

// Token implements TokenSource
func (CommandSource) Token(ctx context.Context) (string, error) {
	return toolbelt.APIToken(ctx)
}
