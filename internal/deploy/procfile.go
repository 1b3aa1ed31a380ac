package deploy

import (
	"bufio"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// ProcfileName is the well-known manifest that declares process types
const ProcfileName = "Procfile"

// ProcessTypes maps a process type name (e.g. "web") to its shell command
type ProcessTypes map[string]string

// Names returns the process type names in sorted order
func (p ProcessTypes) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of p that is never nil
func (p ProcessTypes) Clone() ProcessTypes {
	out := make(ProcessTypes, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ReadProcfile parses a `name: command` manifest. Lines without a colon are
// skipped. A missing or unreadable file yields an empty map.
func ReadProcfile(path string, log logrus.FieldLogger) ProcessTypes {
	procTypes := make(ProcessTypes)

	f, err := os.Open(path) // #nosec G304 - manifest path is derived from the project root
	if err != nil {
		log.WithField("path", path).WithError(err).Debug("no Procfile")
		return procTypes
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		procTypes[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		log.WithField("path", path).WithError(err).Debug("failed to read Procfile")
	}

	return procTypes
}
