package deploy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	workDirName = "heroku"
	appDirName  = "app"
)

// StagingRoot is the scratch area one Deployer assembles a slug in.
//
// Layout:
//
//	<target>/heroku        work dir: runtime cache, produced slug
//	<target>/heroku/app    app dir: everything that ends up in the slug
type StagingRoot struct {
	rootDir   string
	targetDir string
}

// NewStagingRoot creates a staging root for the project at rootDir whose build
// output lives in targetDir. Both paths are made absolute.
func NewStagingRoot(rootDir, targetDir string) (*StagingRoot, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve root dir")
	}
	target, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve target dir")
	}
	return &StagingRoot{rootDir: root, targetDir: target}, nil
}

// RootDir returns the project root
func (s *StagingRoot) RootDir() string { return s.rootDir }

// WorkDir returns the platform working directory
func (s *StagingRoot) WorkDir() string { return filepath.Join(s.targetDir, workDirName) }

// AppDir returns the directory whose content becomes the slug
func (s *StagingRoot) AppDir() string { return filepath.Join(s.WorkDir(), appDirName) }

// Reset force-deletes the app dir and recreates it. The work dir is kept.
func (s *StagingRoot) Reset(log logrus.FieldLogger) error {
	removeAll(s.AppDir(), log)
	if err := os.MkdirAll(s.AppDir(), 0750); err != nil {
		return errors.Wrap(err, "failed to create staging directory")
	}
	return nil
}

// Resolve makes path absolute, taking relative paths relative to the root
func (s *StagingRoot) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.rootDir, path)
}

// Relativize maps path to its destination inside the app dir. Paths inside the
// root become root-relative; absolute paths outside it collapse to their base
// name. Relative paths are taken relative to the root.
func (s *StagingRoot) Relativize(path string) string {
	rel, err := filepath.Rel(s.rootDir, s.Resolve(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// removeAll deletes path, logging instead of failing. A path that does not
// exist is not an error.
func removeAll(path string, log logrus.FieldLogger) {
	if _, err := os.Lstat(path); err != nil {
		log.WithField("path", path).WithError(err).Debug("nothing to remove")
		return
	}
	if err := os.RemoveAll(path); err != nil {
		log.WithField("path", path).WithError(err).Debug("failed to remove path")
	}
}
