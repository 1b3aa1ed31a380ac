package deploy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadProcfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProcfileName)
	writeFile(t, path, "web:  java -jar app.jar --url=http://x:8080  \n"+
		"\n"+
		"no colon here\n"+
		" worker : bin/worker\n")

	procTypes := ReadProcfile(path, quietLogger())

	assert.Equal(t, ProcessTypes{
		"web":    "java -jar app.jar --url=http://x:8080",
		"worker": "bin/worker",
	}, procTypes)
	assert.Equal(t, []string{"web", "worker"}, procTypes.Names())
}

func TestReadProcfile_Missing(t *testing.T) {
	procTypes := ReadProcfile(filepath.Join(t.TempDir(), ProcfileName), quietLogger())
	assert.NotNil(t, procTypes)
	assert.Empty(t, procTypes)
}

func TestProcessTypes_Clone(t *testing.T) {
	var nilTypes ProcessTypes
	assert.NotNil(t, nilTypes.Clone())

	orig := ProcessTypes{"web": "a"}
	clone := orig.Clone()
	clone["web"] = "b"
	assert.Equal(t, "a", orig["web"])
}
