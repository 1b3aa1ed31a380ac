package cli

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fastertools/slugship/internal/config"
	"github.com/fastertools/slugship/internal/deploy"
)

func TestDeployCommand(t *testing.T) {
	cmd := newDeployCmd()
	assert.Equal(t, "deploy", cmd.Use)
	assert.Contains(t, cmd.Short, "Deploy")

	for _, sub := range []string{"jar", "war", "files"} {
		t.Run("has_"+sub, func(t *testing.T) {
			assert.True(t, hasSubcommand(cmd, sub), "Subcommand %s not found", sub)
		})
	}

	assertFlag(t, cmd, "app", "")
	assertFlag(t, cmd, "yes", "false")
	assertFlag(t, cmd, "dry-run", "false")
	assertFlag(t, cmd, "vendor-jdk", "false")
	assertFlag(t, cmd, "registry", "")
	assert.NotNil(t, cmd.PersistentFlags().ShorthandLookup("a"))
	assert.NotNil(t, cmd.PersistentFlags().ShorthandLookup("i"))
}

func TestDeployJarRequiresJar(t *testing.T) {
	captureOutput(t)

	err := executeRoot(t, "deploy", "jar", "--root", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"jar" not set`)
}

func TestDeployWarRequiresRunner(t *testing.T) {
	captureOutput(t)

	err := executeRoot(t, "deploy", "war", "--war", "app.war", "--root", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webapp-runner")
}

func TestBuildTarget(t *testing.T) {
	tests := []struct {
		kind string
		opts DeployOptions
		want deploy.Target
	}{
		{"jar", DeployOptions{Jar: "target/app.jar", JarOpts: "--port 80"}, deploy.JarTarget{Jar: "target/app.jar", Opts: "--port 80"}},
		{"war", DeployOptions{War: "app.war", WebappRunner: "runner.jar"}, deploy.WarTarget{War: "app.war", Runner: "runner.jar"}},
		{"files", DeployOptions{Jar: "ignored.jar"}, deploy.FilesTarget{}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			got, err := buildTarget(tt.kind, &tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := buildTarget("ear", &DeployOptions{})
	assert.Error(t, err)
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments("var", []string{
		"JAVA_OPTS=-Xmx300m -Dfoo=a,b",
		" EMPTY =",
		"URL=postgres://u:p@host/db?sslmode=require",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"JAVA_OPTS": "-Xmx300m -Dfoo=a,b",
		"EMPTY":     "",
		"URL":       "postgres://u:p@host/db?sslmode=require",
	}, got)

	for _, bad := range []string{"NOVALUE", "=value"} {
		_, err := parseAssignments("process", []string{bad})
		require.Error(t, err, bad)
		assert.Contains(t, err.Error(), "--process")
	}
}

func TestOverlay(t *testing.T) {
	base := map[string]string{"A": "1", "B": "2"}
	got := overlay(base, map[string]string{"B": "3", "C": "4"})

	assert.Equal(t, map[string]string{"A": "1", "B": "3", "C": "4"}, got)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, base)
	assert.Empty(t, overlay(nil, nil))
}

func TestDeployRequest(t *testing.T) {
	s := &config.Settings{
		Stack:        "heroku-22",
		SlugFile:     "my.tgz",
		JDKVersion:   "17",
		BuildVersion: "1.4.2",
		Includes:     []string{"conf"},
		ConfigVars:   map[string]string{"FROM_FILE": "x", "SHARED": "file"},
		ProcessTypes: map[string]string{"worker": "java -cp app.jar Worker"},
	}
	opts := &DeployOptions{
		Vars:      []string{"SHARED=flag"},
		Processes: []string{"web=java -jar app.jar"},
	}

	req, err := deployRequest(s, opts)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"FROM_FILE": "x", "SHARED": "flag"}, req.ConfigVars)
	assert.Equal(t, deploy.ProcessTypes{
		"worker": "java -cp app.jar Worker",
		"web":    "java -jar app.jar",
	}, req.ProcessTypes)
	assert.Equal(t, "heroku-22", req.Stack)
	assert.Equal(t, "my.tgz", req.SlugFilename)
	assert.Equal(t, "17", req.RuntimeVersion)
	assert.Equal(t, []string{"conf"}, req.Includes)
	assert.Contains(t, req.Description, "Deployed 1.4.2 with slugship")
	assert.Equal(t, "1.4.2", req.Commit)
}

func TestDeployRequestWithoutBuildVersion(t *testing.T) {
	req, err := deployRequest(&config.Settings{}, &DeployOptions{})
	require.NoError(t, err)

	// left empty so the deployer falls back to the git revision
	assert.Empty(t, req.Commit)
	assert.Equal(t, "Deployed with slugship "+version, req.Description)
}

func TestPromptConfirm(t *testing.T) {
	mockSurveyAskOne(t, false)
	assert.False(t, promptConfirm("Continue?", true))

	mockSurveyAskOne(t, true)
	assert.True(t, promptConfirm("Continue?", false))

	surveyAskOne = func(p survey.Prompt, resp interface{}, opts ...survey.AskOpt) error {
		return errors.New("not a terminal")
	}
	assert.False(t, promptConfirm("Continue?", true))
}

func TestDeployCancelled(t *testing.T) {
	captureOutput(t)
	useTokenEnv(t, "secret")
	mockSurveyAskOne(t, false)

	root := createJarProject(t)
	err := executeRoot(t, "deploy", "jar", "--root", root, "--app", "my-app", "--jar", "target/app.jar")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestDeployDryRunJSON(t *testing.T) {
	out := captureOutput(t)

	root := createJarProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "system.properties"), []byte("java.runtime.version=21\n"), 0600))

	err := executeRoot(t, "deploy", "jar",
		"--root", root,
		"--app", "my-app",
		"--jar", "target/app.jar",
		"--process", "worker=java -cp target/app.jar Worker",
		"--dry-run", "-o", "json")
	require.NoError(t, err)

	var plan deploy.Plan
	require.NoError(t, json.Unmarshal(out.Data.Bytes(), &plan), out.Data.String())
	assert.Equal(t, "my-app", plan.App)
	assert.Equal(t, "jar", plan.Target)
	assert.Equal(t, "heroku-24", plan.Stack)
	assert.Equal(t, "21", plan.RuntimeVersion)
	assert.Equal(t, "slug.tgz", plan.SlugFilename)
	assert.Contains(t, plan.ProcessTypes, "worker")

	// nothing human readable on the data stream, and nothing packaged
	assert.Empty(t, out.Messages.String())
	assert.NoFileExists(t, filepath.Join(root, "target", "heroku", "slug.tgz"))
}

func TestDeployDryRunTable(t *testing.T) {
	out := captureOutput(t)

	root := createJarProject(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "conf"), 0750))

	err := executeRoot(t, "deploy", "jar",
		"--root", root,
		"--app", "my-app",
		"--jar", "target/app.jar",
		"--include", "conf",
		"--dry-run")
	require.NoError(t, err)

	assert.Contains(t, out.Messages.String(), "DRY RUN")
	data := out.Data.String()
	assert.Contains(t, data, "Deploy plan:")
	assert.Contains(t, data, "my-app")
	assert.Contains(t, data, "app/conf")
	assert.Contains(t, data, "web")
}

// fakePlatform serves the config var, slug, blob and release endpoints
type fakePlatform struct {
	mu         sync.Mutex
	srv        *httptest.Server
	configVars map[string]string
	slug       []byte
	slugReq    map[string]interface{}
	release    map[string]interface{}
	authHeader string
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()

	p := &fakePlatform{configVars: map[string]string{"DATABASE_URL": "postgres://db"}}
	slugID := uuid.NewString()

	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /apps/my-app/config-vars", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.authHeader = r.Header.Get("Authorization")

		var vars map[string]string
		if err := json.NewDecoder(r.Body).Decode(&vars); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for k, v := range vars {
			p.configVars[k] = v
		}
		_ = json.NewEncoder(w).Encode(p.configVars)
	})
	mux.HandleFunc("POST /apps/my-app/slugs", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&p.slugReq)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":   slugID,
			"blob": map[string]string{"method": "put", "url": p.srv.URL + "/blobs/" + slugID},
		})
	})
	mux.HandleFunc("PUT /blobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.slug = data
		p.mu.Unlock()
	})
	mux.HandleFunc("POST /apps/my-app/releases", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&p.release)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      uuid.NewString(),
			"version": 12,
			"status":  "succeeded",
		})
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	t.Setenv("SLUGSHIP_API_URL", p.srv.URL)
	return p
}

func slugEntries(t *testing.T, data []byte) []string {
	t.Helper()

	gz, err := gzip.NewReader(strings.NewReader(string(data)))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	return names
}

func TestDeployJarEndToEnd(t *testing.T) {
	out := captureOutput(t)
	useTokenEnv(t, "secret")
	platform := newFakePlatform(t)
	t.Setenv("SLUGSHIP_BUILD_VERSION", "1.4.2")

	root := createJarProject(t)

	err := executeRoot(t, "deploy", "jar",
		"--root", root,
		"--app", "my-app",
		"--jar", "target/app.jar",
		"--var", "JAVA_TOOL_OPTIONS=-Xmx300m",
		"--yes")
	require.NoError(t, err)

	platform.mu.Lock()
	defer platform.mu.Unlock()

	assert.Equal(t, map[string]string{
		"DATABASE_URL":      "postgres://db",
		"JAVA_TOOL_OPTIONS": "-Xmx300m",
	}, platform.configVars)
	assert.True(t, strings.HasPrefix(platform.authHeader, "Basic "))

	require.NotEmpty(t, platform.slug)
	assert.Contains(t, slugEntries(t, platform.slug), "./app/target/app.jar")
	assert.Equal(t, "heroku-24", platform.slugReq["stack"])
	assert.Equal(t, "1.4.2", platform.slugReq["commit"])
	assert.Contains(t, platform.release["description"], "with slugship")

	assert.Contains(t, out.Messages.String(), "Deployed my-app")
	assert.Contains(t, out.Data.String(), "v12")
}

func TestDeployYAMLResult(t *testing.T) {
	out := captureOutput(t)
	useTokenEnv(t, "secret")
	newFakePlatform(t)

	root := createJarProject(t)

	err := executeRoot(t, "deploy", "jar",
		"--root", root,
		"--app", "my-app",
		"--jar", "target/app.jar",
		"--yes", "-o", "yaml")
	require.NoError(t, err)

	var res deploy.Result
	require.NoError(t, yaml.Unmarshal(out.Data.Bytes(), &res), out.Data.String())
	assert.Equal(t, "my-app", res.App)
	require.NotNil(t, res.Release)
	assert.Equal(t, 12, res.Release.Version)
	assert.Empty(t, out.Messages.String())
}

func TestDeployAppNotFound(t *testing.T) {
	captureOutput(t)
	useTokenEnv(t, "secret")
	newFakePlatform(t)

	root := createJarProject(t)

	err := executeRoot(t, "deploy", "jar",
		"--root", root,
		"--app", "ghost",
		"--jar", "target/app.jar",
		"--yes")
	require.Error(t, err)
	assert.True(t, deploy.IsAppNotFound(err))
	assert.NoFileExists(t, filepath.Join(root, "target", "heroku", "slug.tgz"))
}

func TestDeployInvalidVar(t *testing.T) {
	captureOutput(t)

	err := executeRoot(t, "deploy", "jar",
		"--root", createJarProject(t),
		"--app", "my-app",
		"--jar", "target/app.jar",
		"--var", "NOEQUALS",
		"--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NAME=VALUE")
}
