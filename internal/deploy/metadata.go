package deploy

import (
	"os"
	"path/filepath"
)

// MetadataFileName is written at the top of every staged app dir
const MetadataFileName = ".heroku-deploy"

// StampMetadata records the build client in appDir. An existing metadata file
// is left untouched.
func StampMetadata(appDir, client string) error {
	path := filepath.Join(appDir, MetadataFileName)

	if _, err := os.Lstat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	return os.WriteFile(path, []byte("client="+client+"\n"), 0644) // #nosec G306 - slug content is world readable on the dyno
}
