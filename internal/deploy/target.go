package deploy

import (
	"os"
	"strings"
)

// Target is the kind of application being deployed. The set is closed:
// JarTarget, WarTarget and FilesTarget.
type Target interface {
	// Kind names the target for logs and summaries
	Kind() string
	// Artifacts lists the files the target adds to the staged include set
	Artifacts() []string
	// DefaultProcessTypes synthesizes the start command used when neither the
	// caller nor a Procfile declares any process type. relativize maps an
	// artifact to its path inside the slug.
	DefaultProcessTypes(relativize func(string) string) ProcessTypes

	sealed()
}

// JarTarget deploys a single executable jar
type JarTarget struct {
	Jar  string
	Opts string
}

// Kind implements Target
func (JarTarget) Kind() string { return "jar" }

// Artifacts implements Target
func (t JarTarget) Artifacts() []string { return []string{t.Jar} }

// DefaultProcessTypes runs the jar directly
func (t JarTarget) DefaultProcessTypes(relativize func(string) string) ProcessTypes {
	return ProcessTypes{"web": command("java", "$JAVA_OPTS", "-jar", relativize(t.Jar), t.Opts, "$JAR_OPTS")}
}

func (JarTarget) sealed() {}

// WarTarget deploys a war through a runner jar such as webapp-runner
type WarTarget struct {
	War    string
	Runner string
}

// Kind implements Target
func (WarTarget) Kind() string { return "war" }

// Artifacts implements Target
func (t WarTarget) Artifacts() []string { return []string{t.Runner, t.War} }

// DefaultProcessTypes starts the runner on $PORT with the war
func (t WarTarget) DefaultProcessTypes(relativize func(string) string) ProcessTypes {
	return ProcessTypes{"web": command("java", "$JAVA_OPTS", "-jar", relativize(t.Runner),
		"$WEBAPP_RUNNER_OPTS", "--port", "$PORT", relativize(t.War))}
}

func (WarTarget) sealed() {}

// FilesTarget deploys an arbitrary file set. It has no default start command,
// so process types must come from the caller or a Procfile.
type FilesTarget struct{}

// Kind implements Target
func (FilesTarget) Kind() string { return "files" }

// Artifacts implements Target
func (FilesTarget) Artifacts() []string { return nil }

// DefaultProcessTypes implements Target
func (FilesTarget) DefaultProcessTypes(func(string) string) ProcessTypes { return ProcessTypes{} }

func (FilesTarget) sealed() {}

// checkArtifacts fails with a ConfigurationError when a required artifact is
// missing on disk. resolve maps artifact paths to absolute ones.
func checkArtifacts(t Target, resolve func(string) string) error {
	for _, a := range t.Artifacts() {
		if a == "" {
			return NewConfigurationError("path to the %s artifact must be provided", t.Kind())
		}
		if _, err := os.Stat(resolve(a)); err != nil {
			return NewConfigurationError("required %s artifact not found: %s", t.Kind(), a)
		}
	}
	return nil
}

// resolveProcessTypes picks explicit process types over the Procfile and the
// Procfile over the target's default.
func resolveProcessTypes(t Target, explicit, procfile ProcessTypes, relativize func(string) string) (ProcessTypes, error) {
	var resolved ProcessTypes
	switch {
	case len(explicit) > 0:
		resolved = explicit.Clone()
	case len(procfile) > 0:
		resolved = procfile.Clone()
	default:
		resolved = t.DefaultProcessTypes(relativize)
	}
	if len(resolved) == 0 {
		return nil, NewConfigurationError("no process types defined: add a Procfile or pass process types explicitly")
	}
	return resolved, nil
}

func command(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
