package deploy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(p string) string { return p }

func TestJarTarget_DefaultProcessTypes(t *testing.T) {
	tests := []struct {
		name string
		opts string
		want string
	}{
		{"no opts", "", "java $JAVA_OPTS -jar target/app.jar $JAR_OPTS"},
		{"with opts", "--spring.profiles.active=prod", "java $JAVA_OPTS -jar target/app.jar --spring.profiles.active=prod $JAR_OPTS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := JarTarget{Jar: "target/app.jar", Opts: tt.opts}
			assert.Equal(t, ProcessTypes{"web": tt.want}, target.DefaultProcessTypes(identity))
		})
	}
}

func TestWarTarget_DefaultProcessTypes(t *testing.T) {
	target := WarTarget{War: "target/app.war", Runner: "/opt/webapp-runner.jar"}
	relativize := func(p string) string { return filepath.Base(p) }

	assert.Equal(t, ProcessTypes{
		"web": "java $JAVA_OPTS -jar webapp-runner.jar $WEBAPP_RUNNER_OPTS --port $PORT app.war",
	}, target.DefaultProcessTypes(relativize))
	assert.Equal(t, []string{"/opt/webapp-runner.jar", "target/app.war"}, target.Artifacts())
}

func TestFilesTarget(t *testing.T) {
	var target Target = FilesTarget{}
	assert.Equal(t, "files", target.Kind())
	assert.Empty(t, target.Artifacts())
	assert.Empty(t, target.DefaultProcessTypes(identity))
}

func TestResolveProcessTypes_Precedence(t *testing.T) {
	target := JarTarget{Jar: "app.jar"}
	explicit := ProcessTypes{"web": "explicit"}
	procfile := ProcessTypes{"web": "procfile"}

	got, err := resolveProcessTypes(target, explicit, procfile, identity)
	require.NoError(t, err)
	assert.Equal(t, "explicit", got["web"])

	got, err = resolveProcessTypes(target, nil, procfile, identity)
	require.NoError(t, err)
	assert.Equal(t, "procfile", got["web"])

	got, err = resolveProcessTypes(target, nil, nil, identity)
	require.NoError(t, err)
	assert.Equal(t, "java $JAVA_OPTS -jar app.jar $JAR_OPTS", got["web"])
}

func TestResolveProcessTypes_DoesNotMutateCaller(t *testing.T) {
	explicit := ProcessTypes{"worker": "run"}
	got, err := resolveProcessTypes(JarTarget{Jar: "app.jar"}, explicit, nil, identity)
	require.NoError(t, err)
	got["web"] = "added"
	assert.Len(t, explicit, 1)
}

func TestResolveProcessTypes_FilesWithoutAnyIsConfigurationError(t *testing.T) {
	_, err := resolveProcessTypes(FilesTarget{}, nil, nil, identity)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestCheckArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.jar"), "jar")
	resolve := func(p string) string { return filepath.Join(dir, p) }

	assert.NoError(t, checkArtifacts(JarTarget{Jar: "app.jar"}, resolve))
	assert.NoError(t, checkArtifacts(FilesTarget{}, resolve))

	err := checkArtifacts(JarTarget{Jar: "missing.jar"}, resolve)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), "missing.jar")

	err = checkArtifacts(WarTarget{War: "app.jar"}, resolve)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}
