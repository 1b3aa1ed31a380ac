package oci

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"github.com/fastertools/slugship/internal/auth"
	"github.com/fastertools/slugship/internal/deploy"
)

const (
	// DefaultTag is used when a release has no commit
	DefaultTag = "latest"

	// ProcessLabelPrefix prefixes the label recording each process type
	ProcessLabelPrefix = "io.slugship.process."

	appWorkingDir = "/app"
)

// SlugPusher releases a slug by pushing it as an image to a registry
type SlugPusher struct {
	registry string
	auth     authn.Authenticator
	insecure bool
	platform v1.Platform
}

// PusherOption configures a SlugPusher
type PusherOption func(*SlugPusher)

// WithBasicAuth authenticates with a username and password instead of the
// default keychain
func WithBasicAuth(username, password string) PusherOption {
	return func(p *SlugPusher) {
		p.auth = authn.FromConfig(authn.AuthConfig{Username: username, Password: password})
	}
}

// WithInsecure allows plain http registries
func WithInsecure() PusherOption {
	return func(p *SlugPusher) {
		p.insecure = true
	}
}

// NewSlugPusher creates a pusher for registry, e.g. "ghcr.io/acme"
func NewSlugPusher(registry string, opts ...PusherOption) *SlugPusher {
	p := &SlugPusher{
		registry: strings.TrimRight(registry, "/"),
		platform: v1.Platform{OS: "linux", Architecture: "amd64"},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseAuthToken decodes a base64 "username:password" registry token
func ParseAuthToken(token string) (username, password string, err error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode registry token: %w", err)
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok || user == "" {
		return "", "", fmt.Errorf("invalid registry token format")
	}
	return user, pass, nil
}

// Reference returns the image reference a release of app at commit is pushed to
func (p *SlugPusher) Reference(app, commit string) (name.Reference, error) {
	tag := commit
	if tag == "" {
		tag = DefaultTag
	}
	ref := fmt.Sprintf("%s/%s:%s", p.registry, app, tag)

	var opts []name.Option
	if p.insecure {
		opts = append(opts, name.Insecure)
	}
	parsed, err := name.ParseReference(ref, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid reference %s: %w", ref, err)
	}
	return parsed, nil
}

// Release implements deploy.Releaser. The platform credential is not used;
// registry auth comes from the pusher's options or the default keychain.
func (p *SlugPusher) Release(ctx context.Context, _ auth.Credential, req deploy.ReleaseRequest) (*deploy.Release, error) {
	ref, err := p.Reference(req.App, req.Commit)
	if err != nil {
		return nil, deploy.NewConfigurationError("%v", err)
	}

	img, err := p.Image(req.SlugPath, req.ProcessTypes, req.Description)
	if err != nil {
		return nil, deploy.NewPackagingError(err)
	}

	if err := remote.Write(ref, img, p.remoteOptions(ctx)...); err != nil {
		return nil, deploy.NewTransportError("push image", 0, err)
	}

	digest, err := img.Digest()
	if err != nil {
		return nil, deploy.NewPackagingError(err)
	}

	return &deploy.Release{
		ID:  digest.String(),
		Ref: ref.Context().Digest(digest.String()).String(),
	}, nil
}

// Image builds the image for the slug archive at slugPath
func (p *SlugPusher) Image(slugPath string, procTypes deploy.ProcessTypes, description string) (v1.Image, error) {
	layer, err := tarball.LayerFromFile(filepath.Clean(slugPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read slug: %w", err)
	}

	img, err := mutate.AppendLayers(empty.Image, layer)
	if err != nil {
		return nil, fmt.Errorf("failed to append slug layer: %w", err)
	}

	cf, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to read image config: %w", err)
	}
	cf = cf.DeepCopy()
	cf.OS = p.platform.OS
	cf.Architecture = p.platform.Architecture
	cf.Created = v1.Time{Time: time.Now().UTC()}
	cf.Config = imageConfig(procTypes, description)

	return mutate.ConfigFile(img, cf)
}

func imageConfig(procTypes deploy.ProcessTypes, description string) v1.Config {
	cfg := v1.Config{
		WorkingDir: appWorkingDir,
		Env:        []string{"HOME=" + appWorkingDir},
		Labels:     map[string]string{},
	}
	for proc, cmd := range procTypes {
		cfg.Labels[ProcessLabelPrefix+proc] = cmd
	}
	if description != "" {
		cfg.Labels["org.opencontainers.image.description"] = description
	}

	if web, ok := procTypes["web"]; ok {
		cfg.Cmd = []string{"/bin/sh", "-c", web}
	} else if names := procTypes.Names(); len(names) > 0 {
		cfg.Cmd = []string{"/bin/sh", "-c", procTypes[names[0]]}
	}
	return cfg
}

func (p *SlugPusher) remoteOptions(ctx context.Context) []remote.Option {
	opts := []remote.Option{remote.WithContext(ctx)}
	if p.auth != nil {
		return append(opts, remote.WithAuth(p.auth))
	}
	return append(opts, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}
