package deploy

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// SlugBuilder packages a populated staging root into the platform's archive
// format and returns the path of the produced file.
type SlugBuilder interface {
	BuildSlug(workDir, name string) (string, error)
}

// TarGzBuilder produces the gzip'd tarball format Heroku-style slugs use:
// every entry lives under ./app/.
type TarGzBuilder struct{}

// BuildSlug archives workDir/app into workDir/name. Entries are written in
// lexical order with owner information stripped, so identical trees produce
// identical archives.
func (TarGzBuilder) BuildSlug(workDir, name string) (string, error) {
	slugPath := filepath.Join(workDir, name)
	tmp := slugPath + ".tmp"

	f, err := os.Create(tmp) // #nosec G304 - inside the work dir
	if err != nil {
		return "", err
	}

	if err := writeSlug(f, workDir); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, slugPath); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return slugPath, nil
}

func writeSlug(w io.Writer, workDir string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(filepath.Join(workDir, appDirName), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		} else if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			return err
		}
		hdr.Name = "./" + filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "", ""
		hdr.ModTime = hdr.ModTime.Truncate(time.Second)
		hdr.AccessTime, hdr.ChangeTime = time.Time{}, time.Time{}
		hdr.Format = tar.FormatPAX

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		src, err := os.Open(path) // #nosec G304
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()
		_, err = io.Copy(tw, src)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
