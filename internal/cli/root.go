package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fastertools/slugship/internal/config"
)

var (
	// Version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Configuration
	cfgFile      string
	verbose      bool
	noColor      bool
	outputFormat string

	// Colors
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)

	// For testing - allows redirecting output
	colorOutput io.Writer = os.Stdout
	errOutput   io.Writer = os.Stderr
	dataOutput  io.Writer = os.Stdout
)

// rootCmd represents the base command
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slugship",
		Short: "slugship - package JVM apps as slugs and release them",
		Long: `slugship packages a locally built JVM application (an executable jar, a war
or an arbitrary file set) into a slug, merges config vars into the app and
releases the slug on the platform or pushes it to an OCI registry.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true
			}
			_, err := ParseOutputFormat(outputFormat)
			return err
		},
		SilenceUsage: true,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is ./slugship.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")

	_ = viper.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("no-color", cmd.PersistentFlags().Lookup("no-color"))

	cmd.AddCommand(
		newDeployCmd(),
		newAuthCmd(),
		newSlugCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version information
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate)
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig points viper at an explicit settings file. Without one,
// config.Load looks for slugship.yaml in the project root.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		Debug("Using settings file: %s", cfgFile)
	}
}

// loadSettings resolves settings from flags, environment and settings file
func loadSettings() (*config.Settings, error) {
	s, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if s.File != "" {
		Debug("Using settings file: %s", s.File)
	}
	return s, nil
}

// newLogger builds the logger handed to the deploy core. Core progress goes to
// stderr so structured output on stdout stays parseable.
func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(errOutput)
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    noColor,
	})
	if IsVerbose() {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// Helper functions for consistent output

// messageOutput is stdout unless stdout carries a json or yaml document
func messageOutput() io.Writer {
	if f, _ := ParseOutputFormat(outputFormat); f != OutputFormatTable {
		return errOutput
	}
	return colorOutput
}

// Success prints a success message
func Success(format string, args ...interface{}) {
	_, _ = fmt.Fprintln(messageOutput(), successColor.Sprintf("✓ "+format, args...))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	_, _ = fmt.Fprintln(errOutput, errorColor.Sprintf("✗ "+format, args...))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	_, _ = fmt.Fprintln(messageOutput(), infoColor.Sprintf("ℹ "+format, args...))
}

// Warn prints a warning message
func Warn(format string, args ...interface{}) {
	_, _ = fmt.Fprintln(errOutput, warnColor.Sprintf("⚠ "+format, args...))
}

// Debug prints a debug message if verbose mode is enabled
func Debug(format string, args ...interface{}) {
	if IsVerbose() {
		_, _ = fmt.Fprintln(errOutput, color.New(color.FgMagenta).Sprintf("» "+format, args...))
	}
}

// IsVerbose returns true if verbose mode is enabled
func IsVerbose() bool {
	return verbose || viper.GetBool("verbose")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "slugship %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}
