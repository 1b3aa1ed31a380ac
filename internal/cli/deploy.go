package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/briandowns/spinner"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fastertools/slugship/internal/api"
	"github.com/fastertools/slugship/internal/config"
	"github.com/fastertools/slugship/internal/deploy"
	"github.com/fastertools/slugship/internal/toolbelt"
	"github.com/fastertools/slugship/pkg/oci"
)

// DeployOptions holds options for the deploy commands
type DeployOptions struct {
	App          string
	Jar          string
	JarOpts      string
	War          string
	WebappRunner string
	Includes     []string
	Vars         []string
	Processes    []string
	Yes          bool
	DryRun       bool
}

// surveyAskOne is swapped in tests
var surveyAskOne = survey.AskOne

func newDeployCmd() *cobra.Command {
	opts := &DeployOptions{}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the application as a slug",
		Long: `Deploy the application as a slug.

This command:
1. Merges config vars into the app (vars not named are left untouched)
2. Optionally vendors a JDK into the slug
3. Copies the artifact and included files into target/heroku/app
4. Packages the slug and releases it, or pushes it to an OCI registry

Paths are relative to the project root. Process types come from --process,
then the Procfile, then the default command of the target.

Example:
  slugship deploy jar --jar target/app.jar
  slugship deploy war --war target/app.war --webapp-runner target/dependency/webapp-runner.jar
  slugship deploy files --include bin --include lib --process web="bin/start"
  slugship deploy jar --jar target/app.jar --var JAVA_TOOL_OPTIONS=-Xmx300m --dry-run`,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.App, "app", "a", "", "App name (defaults to heroku.properties or the heroku git remote)")
	pf.StringSliceVarP(&opts.Includes, "include", "i", nil, "File or directory to include in the slug (repeatable)")
	pf.StringArrayVar(&opts.Vars, "var", nil, "Config var KEY=VALUE to merge into the app (repeatable)")
	pf.StringArrayVar(&opts.Processes, "process", nil, "Process type NAME=COMMAND (repeatable)")
	pf.String("stack", "", "Stack to build the slug for (default heroku-24)")
	pf.String("jdk-version", "", "JDK version (defaults to java.runtime.version in system.properties)")
	pf.Bool("vendor-jdk", false, "Download the JDK into the slug")
	pf.String("registry", "", "Push the slug as an image to this OCI registry instead of releasing it")
	pf.String("root", "", "Project root directory")
	pf.String("target-dir", "", "Build output directory (default <root>/target)")
	pf.BoolVarP(&opts.Yes, "yes", "y", false, "Skip confirmation prompt")
	pf.BoolVar(&opts.DryRun, "dry-run", false, "Resolve and print the deploy plan without deploying")

	_ = viper.BindPFlag("app", pf.Lookup("app"))
	_ = viper.BindPFlag("include", pf.Lookup("include"))
	_ = viper.BindPFlag("stack", pf.Lookup("stack"))
	_ = viper.BindPFlag("jdk-version", pf.Lookup("jdk-version"))
	_ = viper.BindPFlag("vendor-jdk", pf.Lookup("vendor-jdk"))
	_ = viper.BindPFlag("registry", pf.Lookup("registry"))
	_ = viper.BindPFlag("root", pf.Lookup("root"))
	_ = viper.BindPFlag("target", pf.Lookup("target-dir"))

	cmd.AddCommand(
		newDeployJarCmd(opts),
		newDeployWarCmd(opts),
		newDeployFilesCmd(opts),
	)

	return cmd
}

func newDeployJarCmd(opts *DeployOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jar",
		Short: "Deploy an executable jar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd.Context(), "jar", opts)
		},
	}
	cmd.Flags().StringVar(&opts.Jar, "jar", "", "Path to the executable jar")
	cmd.Flags().StringVar(&opts.JarOpts, "jar-opts", "", "Arguments appended to the default java -jar command")
	_ = cmd.MarkFlagRequired("jar")
	return cmd
}

func newDeployWarCmd(opts *DeployOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "war",
		Short: "Deploy a war with a runner jar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd.Context(), "war", opts)
		},
	}
	cmd.Flags().StringVar(&opts.War, "war", "", "Path to the war file")
	cmd.Flags().StringVar(&opts.WebappRunner, "webapp-runner", "", "Path to the runner jar that serves the war")
	_ = cmd.MarkFlagRequired("war")
	_ = cmd.MarkFlagRequired("webapp-runner")
	return cmd
}

func newDeployFilesCmd(opts *DeployOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "Deploy the included files as they are",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd.Context(), "files", opts)
		},
	}
}

// buildTarget maps the deploy subcommand and its flags to a target
func buildTarget(kind string, opts *DeployOptions) (deploy.Target, error) {
	switch kind {
	case "jar":
		return deploy.JarTarget{Jar: opts.Jar, Opts: opts.JarOpts}, nil
	case "war":
		return deploy.WarTarget{War: opts.War, Runner: opts.WebappRunner}, nil
	case "files":
		return deploy.FilesTarget{}, nil
	default:
		return nil, fmt.Errorf("unknown deploy target: %s", kind)
	}
}

// parseAssignments parses repeated NAME=VALUE flag values
func parseAssignments(flag string, values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected NAME=VALUE", flag, v)
		}
		out[key] = value
	}
	return out, nil
}

// overlay returns base with every entry of top applied over it
func overlay(base, top map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out
}

// deployRequest builds the deploy request from settings and flags
func deployRequest(s *config.Settings, opts *DeployOptions) (deploy.Request, error) {
	vars, err := parseAssignments("var", opts.Vars)
	if err != nil {
		return deploy.Request{}, err
	}
	procs, err := parseAssignments("process", opts.Processes)
	if err != nil {
		return deploy.Request{}, err
	}

	description := "Deployed with slugship " + version
	if s.BuildVersion != "" {
		description = fmt.Sprintf("Deployed %s with slugship %s", s.BuildVersion, version)
	}

	return deploy.Request{
		Includes:       s.Includes,
		ConfigVars:     overlay(s.ConfigVars, vars),
		ProcessTypes:   overlay(s.ProcessTypes, procs),
		RuntimeVersion: s.JDKVersion,
		Stack:          s.Stack,
		SlugFilename:   s.SlugFile,
		Commit:         s.BuildVersion,
		Description:    description,
	}, nil
}

// newDeployer wires the platform client, releaser and runtime vendor
func newDeployer(s *config.Settings, target deploy.Target, log *logrus.Logger) (*deploy.Deployer, error) {
	client, err := api.NewClient(s.APIURL, api.WithUserAgent("slugship/"+version))
	if err != nil {
		return nil, err
	}

	var releaser deploy.Releaser = client
	if s.Registry != "" {
		pusher, err := newSlugPusher(s)
		if err != nil {
			return nil, err
		}
		releaser = pusher
	}

	var vendor deploy.RuntimeVendor = deploy.NoopVendor{Log: log}
	if s.VendorJDK {
		vendor = deploy.NewArchiveVendor(s.JDKURL, log)
	}

	targetDir := s.TargetDir
	if !filepath.IsAbs(targetDir) {
		targetDir = filepath.Join(s.RootDir, targetDir)
	}

	return deploy.New(deploy.Options{
		Client:           s.Client,
		AppName:          s.App,
		RootDir:          s.RootDir,
		TargetDir:        targetDir,
		Target:           target,
		ConfigVars:       client,
		Vendor:           vendor,
		Releaser:         releaser,
		Credentials:      newTokenResolver(),
		AppNameResolver:  toolbelt.AppName,
		RevisionResolver: toolbelt.Revision,
		Logger:           log,
	})
}

func newSlugPusher(s *config.Settings) (*oci.SlugPusher, error) {
	var opts []oci.PusherOption
	if s.RegistryToken != "" {
		user, pass, err := oci.ParseAuthToken(s.RegistryToken)
		if err != nil {
			return nil, err
		}
		opts = append(opts, oci.WithBasicAuth(user, pass))
	}
	return oci.NewSlugPusher(s.Registry, opts...), nil
}

func runDeploy(ctx context.Context, kind string, opts *DeployOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	target, err := buildTarget(kind, opts)
	if err != nil {
		return err
	}

	req, err := deployRequest(settings, opts)
	if err != nil {
		return err
	}

	log := newLogger()
	deployer, err := newDeployer(settings, target, log)
	if err != nil {
		return err
	}

	plan, err := deployer.Plan(req)
	if err != nil {
		return err
	}

	dw := NewDataWriter(dataOutput, outputFormat)

	if opts.DryRun {
		return displayDryRunSummary(dw, plan, settings)
	}

	if !opts.Yes {
		Info("Deploying %s %s to '%s'", plan.Target, describeDestination(settings), plan.App)
		if !promptConfirm("Continue?", true) {
			return fmt.Errorf("deployment cancelled")
		}
	}

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Writer = errOutput
	sp.Suffix = fmt.Sprintf(" Deploying %s...", plan.App)
	// log lines and the spinner share stderr
	if !IsVerbose() {
		sp.Start()
	}

	res, err := deployer.Deploy(ctx, req)
	sp.Stop()
	if err != nil {
		return fmt.Errorf("deployment failed: %w", err)
	}

	Success("Deployed %s", res.App)
	return displayDeployResult(dw, res)
}

func describeDestination(s *config.Settings) string {
	if s.Registry != "" {
		return "via registry " + s.Registry
	}
	return "on " + s.Stack
}

func displayDryRunSummary(dw *DataWriter, plan *deploy.Plan, s *config.Settings) error {
	if dw.Format() != OutputFormatTable {
		return dw.WriteStruct(plan)
	}

	Info("DRY RUN MODE - No changes will be made")
	err := NewKeyValueBuilder("Deploy plan:").
		Add("App", plan.App).
		Add("Target", plan.Target).
		Add("Stack", plan.Stack).
		Add("Runtime", plan.RuntimeVersion).
		Add("Commit", plan.Commit).
		Add("Slug", plan.SlugFilename).
		AddIf(s.Registry != "", "Image", s.Registry+"/"+plan.App).
		AddIf(s.VendorJDK, "JDK", "vendored from "+s.JDKURL).
		Write(dw)
	if err != nil {
		return err
	}

	includes := NewTableBuilder("INCLUDE", "SLUG PATH")
	for _, inc := range plan.Includes {
		includes.AddRow(inc, "app/"+relativeToRoot(s.RootDir, inc))
	}
	if err := includes.Write(dw); err != nil {
		return err
	}
	return processTable(plan.ProcessTypes).Write(dw)
}

func displayDeployResult(dw *DataWriter, res *deploy.Result) error {
	if dw.Format() != OutputFormatTable {
		return dw.WriteStruct(res)
	}

	kv := NewKeyValueBuilder("Deployment:").
		Add("App", res.App).
		Add("Target", res.Target).
		Add("Stack", res.Stack).
		Add("Runtime", res.RuntimeVersion).
		Add("Slug", res.SlugPath)
	if res.Release != nil {
		kv.Add("Release", res.Release.ID).
			AddIf(res.Release.Version > 0, "Version", fmt.Sprintf("v%d", res.Release.Version)).
			AddIf(res.Release.Ref != "", "Image", res.Release.Ref)
	}
	if err := kv.Write(dw); err != nil {
		return err
	}
	return processTable(res.ProcessTypes).Write(dw)
}

func processTable(procTypes deploy.ProcessTypes) *TableBuilder {
	tb := NewTableBuilder("TYPE", "COMMAND")
	for _, name := range procTypes.Names() {
		tb.AddRow(name, procTypes[name])
	}
	return tb
}

func relativeToRoot(root, path string) string {
	staging, err := deploy.NewStagingRoot(root, root)
	if err != nil {
		return filepath.Base(path)
	}
	return staging.Relativize(path)
}

// promptConfirm asks a yes/no question. Any prompt failure counts as no.
func promptConfirm(message string, defaultYes bool) bool {
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultYes,
	}

	var result bool
	if err := surveyAskOne(prompt, &result); err != nil {
		return false
	}

	return result
}
