// Package deploy turns a locally built application into a slug and releases
// it: config vars are merged into the platform's state, the runtime is
// vendored, the staging root is packaged and the archive is handed to a
// releaser.
package deploy

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fastertools/slugship/internal/auth"
	"github.com/fastertools/slugship/internal/config"
)

const (
	// DefaultClient identifies the build client in the slug metadata
	DefaultClient = "slugship"
	// DefaultSlugFilename names the archive written to the work dir
	DefaultSlugFilename = "slug.tgz"
)

// ConfigVarsClient merges desired config vars into the platform's live set.
// Vars absent from the map are left untouched remotely.
type ConfigVarsClient interface {
	MergeConfigVars(ctx context.Context, cred auth.Credential, app string, vars map[string]string) error
}

// ReleaseRequest is everything a releaser needs to publish a slug
type ReleaseRequest struct {
	App          string
	SlugPath     string
	ProcessTypes ProcessTypes
	Stack        string
	Commit       string
	Description  string
}

// Release describes the published release
type Release struct {
	ID      string `json:"id" yaml:"id"`
	Version int    `json:"version,omitempty" yaml:"version,omitempty"`
	SlugID  string `json:"slug_id,omitempty" yaml:"slug_id,omitempty"`
	// Ref is the pushed image reference for registry based releasers
	Ref string `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// Releaser publishes a slug on the platform
type Releaser interface {
	Release(ctx context.Context, cred auth.Credential, req ReleaseRequest) (*Release, error)
}

// CredentialResolver produces the platform credential
type CredentialResolver interface {
	Resolve(ctx context.Context) (auth.Credential, error)
}

// AppNameResolver infers the application name for a project root
type AppNameResolver func(rootDir string) (string, error)

// RevisionResolver returns the current source revision, or "" if unknown
type RevisionResolver func(rootDir string) string

// Options configures a Deployer
type Options struct {
	Client    string
	AppName   string
	RootDir   string
	TargetDir string
	Target    Target

	ConfigVars  ConfigVarsClient
	Vendor      RuntimeVendor
	Builder     SlugBuilder
	Releaser    Releaser
	Credentials CredentialResolver

	AppNameResolver  AppNameResolver
	RevisionResolver RevisionResolver

	Logger logrus.FieldLogger
}

// Request carries the per-invocation deploy inputs
type Request struct {
	Includes       []string
	ConfigVars     map[string]string
	ProcessTypes   ProcessTypes
	RuntimeVersion string
	Stack          string
	SlugFilename   string
	Commit         string
	Description    string
}

// Result summarizes a successful deploy
type Result struct {
	App            string       `json:"app" yaml:"app"`
	Target         string       `json:"target" yaml:"target"`
	Stack          string       `json:"stack" yaml:"stack"`
	RuntimeVersion string       `json:"runtime_version" yaml:"runtime_version"`
	SlugPath       string       `json:"slug" yaml:"slug"`
	ProcessTypes   ProcessTypes `json:"process_types" yaml:"process_types"`
	Release        *Release     `json:"release" yaml:"release"`
}

// Plan is the resolved input of a deploy
type Plan struct {
	App            string       `json:"app" yaml:"app"`
	Target         string       `json:"target" yaml:"target"`
	Stack          string       `json:"stack" yaml:"stack"`
	RuntimeVersion string       `json:"runtime_version" yaml:"runtime_version"`
	Includes       []string     `json:"includes" yaml:"includes"`
	ProcessTypes   ProcessTypes `json:"process_types" yaml:"process_types"`
	SlugFilename   string       `json:"slug_file" yaml:"slug_file"`
	Commit         string       `json:"commit,omitempty" yaml:"commit,omitempty"`
	AppDir         string       `json:"app_dir" yaml:"app_dir"`
}

// Deployer owns one staging root and runs the deploy sequence against it.
// It is not safe for concurrent use, and no two Deployers may share a target
// directory.
type Deployer struct {
	client  string
	name    string
	staging *StagingRoot
	target  Target

	configVars ConfigVarsClient
	vendor     RuntimeVendor
	builder    SlugBuilder
	releaser   Releaser
	creds      CredentialResolver
	revision   RevisionResolver

	credential *auth.Credential
	state      State
	log        logrus.FieldLogger
}

// New creates a Deployer and resets its staging root. The app name comes from
// heroku.properties, then opts.AppName, then opts.AppNameResolver.
func New(opts Options) (*Deployer, error) {
	log := orStandard(opts.Logger)

	if opts.ConfigVars == nil || opts.Releaser == nil || opts.Credentials == nil {
		return nil, NewConfigurationError("deployer requires a config vars client, a releaser and a credential resolver")
	}

	staging, err := NewStagingRoot(opts.RootDir, opts.TargetDir)
	if err != nil {
		return nil, NewConfigurationError("%v", err)
	}

	name, err := resolveAppName(staging.RootDir(), opts, log)
	if err != nil {
		return nil, err
	}

	d := &Deployer{
		client:     opts.Client,
		name:       name,
		staging:    staging,
		target:     opts.Target,
		configVars: opts.ConfigVars,
		vendor:     opts.Vendor,
		builder:    opts.Builder,
		releaser:   opts.Releaser,
		creds:      opts.Credentials,
		revision:   opts.RevisionResolver,
		log:        log.WithField("app", name),
	}
	if d.client == "" {
		d.client = DefaultClient
	}
	if d.target == nil {
		d.target = FilesTarget{}
	}
	if d.vendor == nil {
		d.vendor = NoopVendor{Log: log}
	}
	if d.builder == nil {
		d.builder = TarGzBuilder{}
	}

	if err := d.staging.Reset(d.log); err != nil {
		return nil, NewPackagingError(err)
	}
	d.state = StateInitialized

	return d, nil
}

func resolveAppName(rootDir string, opts Options, log logrus.FieldLogger) (string, error) {
	if name := config.AppNameOverride(rootDir, log); name != "" {
		return name, nil
	}
	if opts.AppName != "" {
		return opts.AppName, nil
	}
	if opts.AppNameResolver != nil {
		name, err := opts.AppNameResolver(rootDir)
		if err == nil && name != "" {
			return name, nil
		}
		if err != nil {
			return "", NewConfigurationError("could not find app name: %v", err)
		}
	}
	return "", NewConfigurationError("could not find app name: set %s in %s or pass the app explicitly",
		config.AppNameKey, config.ProjectPropertiesFile)
}

// Name returns the application being deployed
func (d *Deployer) Name() string { return d.name }

// Client returns the build client identity stamped into the slug
func (d *Deployer) Client() string { return d.client }

// State returns the position of the last Deploy in the deploy sequence
func (d *Deployer) State() State { return d.state }

// Staging returns the staging root owned by d
func (d *Deployer) Staging() *StagingRoot { return d.staging }

// Deploy runs the full sequence: reset staging, merge config vars, vendor the
// runtime, package the slug and release it. Any failure stops the sequence;
// config vars already merged are not rolled back.
func (d *Deployer) Deploy(ctx context.Context, req Request) (*Result, error) {
	res, err := d.deploy(ctx, req)
	if err != nil {
		d.transition(StateFailed)
		return nil, err
	}
	return res, nil
}

func (d *Deployer) deploy(ctx context.Context, req Request) (*Result, error) {
	if err := d.staging.Reset(d.log); err != nil {
		return nil, NewPackagingError(err)
	}
	d.transition(StateInitialized)

	plan, err := d.Plan(req)
	if err != nil {
		return nil, err
	}

	cred, err := d.resolveCredential(ctx)
	if err != nil {
		return nil, err
	}

	if err := d.mergeConfigVars(ctx, cred, req.ConfigVars); err != nil {
		return nil, err
	}
	d.transition(StateConfigMerged)

	err = d.vendor.Vendor(ctx, VendorRequest{
		Version: plan.RuntimeVersion,
		Stack:   plan.Stack,
		AppDir:  d.staging.AppDir(),
		WorkDir: d.staging.WorkDir(),
	})
	if err != nil {
		return nil, packagingUnlessTyped(err)
	}
	d.transition(StateRuntimeVendored)

	if err := d.Prepare(plan.Includes); err != nil {
		return nil, err
	}

	slugPath, err := d.builder.BuildSlug(d.staging.WorkDir(), plan.SlugFilename)
	if err != nil {
		return nil, packagingUnlessTyped(err)
	}
	d.transition(StatePackaged)

	d.log.WithField("stack", plan.Stack).Info("releasing slug")
	release, err := d.releaser.Release(ctx, cred, ReleaseRequest{
		App:          d.name,
		SlugPath:     slugPath,
		ProcessTypes: plan.ProcessTypes,
		Stack:        plan.Stack,
		Commit:       plan.Commit,
		Description:  req.Description,
	})
	if err != nil {
		if IsAppNotFound(err) || IsTransport(err) {
			return nil, err
		}
		return nil, NewTransportError("release", 0, err)
	}
	d.transition(StateReleased)
	d.log.Info("done")

	return &Result{
		App:            d.name,
		Target:         d.target.Kind(),
		Stack:          plan.Stack,
		RuntimeVersion: plan.RuntimeVersion,
		SlugPath:       slugPath,
		ProcessTypes:   plan.ProcessTypes,
		Release:        release,
	}, nil
}

// Plan resolves what Deploy would do with req without touching the network or
// the staging root: artifacts are checked and process types, runtime version,
// include set and commit are resolved.
func (d *Deployer) Plan(req Request) (*Plan, error) {
	if err := checkArtifacts(d.target, d.staging.Resolve); err != nil {
		return nil, err
	}
	procTypes, err := resolveProcessTypes(d.target, req.ProcessTypes,
		ReadProcfile(filepath.Join(d.staging.RootDir(), ProcfileName), d.log), d.staging.Relativize)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		App:            d.name,
		Target:         d.target.Kind(),
		Stack:          req.Stack,
		RuntimeVersion: req.RuntimeVersion,
		Includes:       append(append([]string{}, req.Includes...), d.target.Artifacts()...),
		ProcessTypes:   procTypes,
		SlugFilename:   req.SlugFilename,
		Commit:         req.Commit,
		AppDir:         d.staging.AppDir(),
	}
	if plan.RuntimeVersion == "" {
		plan.RuntimeVersion = ResolveRuntimeVersion(d.staging.RootDir(), d.log)
	}
	if plan.SlugFilename == "" {
		plan.SlugFilename = DefaultSlugFilename
	}
	if plan.Commit == "" && d.revision != nil {
		plan.Commit = d.revision(d.staging.RootDir())
	}
	return plan, nil
}

// Prepare copies includes into the app dir, drops any nested copy of the work
// dir and stamps the metadata file. Running it twice yields the same tree.
func (d *Deployer) Prepare(includes []string) error {
	appDir := d.staging.AppDir()
	d.log.Info("packaging application")

	for _, include := range includes {
		rel := d.staging.Relativize(include)
		d.log.WithField("path", rel).Info("including")
		if err := CopyTree(d.staging.Resolve(include), filepath.Join(appDir, filepath.FromSlash(rel)), appDir); err != nil {
			return NewPackagingError(errors.Wrapf(err, "failed to copy %s", include))
		}
	}

	// keeps old slugs and cached runtimes out of the new slug
	removeAll(filepath.Join(appDir, filepath.FromSlash(d.staging.Relativize(d.staging.WorkDir()))), d.log)

	if err := StampMetadata(appDir, d.client); err != nil {
		return NewPackagingError(errors.Wrap(err, "failed to write metadata"))
	}
	return nil
}

func (d *Deployer) resolveCredential(ctx context.Context) (auth.Credential, error) {
	if d.credential != nil {
		return *d.credential, nil
	}
	cred, err := d.creds.Resolve(ctx)
	if err != nil {
		return auth.Credential{}, &ConfigurationError{Reason: err.Error()}
	}
	d.credential = &cred
	return cred, nil
}

func (d *Deployer) mergeConfigVars(ctx context.Context, cred auth.Credential, vars map[string]string) error {
	if vars == nil {
		vars = map[string]string{}
	}
	d.log.WithField("count", len(vars)).Debug("merging config vars")

	err := d.configVars.MergeConfigVars(ctx, cred, d.name, vars)
	switch {
	case err == nil:
		return nil
	case IsAppNotFound(err):
		d.log.Errorf("! Could not find app: %s", d.name)
		return err
	case IsTransport(err):
		return err
	default:
		return NewTransportError("merge config vars", 0, err)
	}
}

func (d *Deployer) transition(to State) {
	d.log.WithFields(logrus.Fields{"from": d.state.String(), "to": to.String()}).Debug("deploy state")
	d.state = to
}

// packagingUnlessTyped keeps errors that already belong to the taxonomy and
// wraps everything else as a PackagingError.
func packagingUnlessTyped(err error) error {
	if IsTransport(err) || IsConfiguration(err) || IsPackaging(err) || IsAppNotFound(err) {
		return err
	}
	return NewPackagingError(err)
}

func orStandard(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}
