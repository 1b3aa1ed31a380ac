package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// staticSource is a TokenSource returning fixed answers
type staticSource struct {
	name  string
	token string
	err   error
	calls int
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Token(ctx context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func TestEncode(t *testing.T) {
	cred := Encode("secret")

	decoded, err := base64.StdEncoding.DecodeString(cred.Encoded())
	require.NoError(t, err)
	assert.Equal(t, ":secret", string(decoded))
	assert.Equal(t, "Basic "+cred.Encoded(), cred.Header())
	assert.False(t, cred.IsZero())
	assert.True(t, Credential{}.IsZero())
}

func TestResolverOrder(t *testing.T) {
	env := &staticSource{name: "env"}
	ring := &staticSource{name: "keyring", token: "from-keyring"}
	cmd := &staticSource{name: "cmd", token: "from-cmd"}

	r := &Resolver{Sources: []TokenSource{env, ring, cmd}}
	token, source, err := r.Lookup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", token)
	assert.Equal(t, "keyring", source)
	assert.Equal(t, 1, env.calls)
	assert.Equal(t, 0, cmd.calls, "later sources must not be consulted")
}

func TestResolverSkipsFailingSource(t *testing.T) {
	r := &Resolver{Sources: []TokenSource{
		&staticSource{name: "broken", err: errors.New("boom")},
		&staticSource{name: "cmd", token: "tok"},
	}}

	cred, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Encode("tok"), cred)
}

func TestResolverNoToken(t *testing.T) {
	r := &Resolver{Sources: []TokenSource{
		&staticSource{name: "env"},
		&staticSource{name: "cmd", err: errors.New("heroku: command not found")},
	}}

	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoToken))
	assert.Contains(t, err.Error(), "command not found")
}

func TestEnvSource(t *testing.T) {
	t.Setenv("SLUGSHIP_TEST_TOKEN", "env-token")

	token, err := EnvSource{Var: "SLUGSHIP_TEST_TOKEN"}.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-token", token)
}

func TestResolverKeepsEnvTokenVerbatim(t *testing.T) {
	t.Setenv("SLUGSHIP_TEST_TOKEN", " padded-token\n")

	r := &Resolver{Sources: []TokenSource{EnvSource{Var: "SLUGSHIP_TEST_TOKEN"}}}
	token, source, err := r.Lookup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, " padded-token\n", token)
	assert.Equal(t, "env:SLUGSHIP_TEST_TOKEN", source)

	cred, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Encode(" padded-token\n"), cred)
}

func TestKeyringSource(t *testing.T) {
	keyring.MockInit()

	token, err := KeyringSource{}.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token, "missing entry is not an error")

	require.NoError(t, keyring.Set(KeyringService, KeyringUsername, "ring-token"))
	token, err = KeyringSource{}.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ring-token", token)
}

func TestNewResolverPrefersEnv(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set(KeyringService, KeyringUsername, "ring-token"))
	t.Setenv(DefaultEnvVar, "env-token")

	token, source, err := NewResolver().Lookup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-token", token)
	assert.Equal(t, "env:"+DefaultEnvVar, source)
}
