package deploy

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyTree copies src to dst. Directories are copied recursively, symbolic
// links are recreated as links with the same target string, and regular files
// keep their permission bits and modification time.
//
// Any directory that resolves to dst or to one of the exclude paths is skipped
// with its whole subtree, so an include that contains the staging area is never
// copied into itself. Entries already present at the destination are replaced.
func CopyTree(src, dst string, exclude ...string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return copyDir(src, dst, exclude)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return err
	}
	return copyEntry(src, dst, info)
}

func copyDir(src, dst string, exclude []string) error {
	skip := make(map[string]struct{}, len(exclude)+1)
	for _, p := range append([]string{dst}, exclude...) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		skip[abs] = struct{}{}
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			if _, ok := skip[abs]; ok {
				return filepath.SkipDir
			}
			if existing, err := os.Lstat(target); err == nil && !existing.IsDir() {
				if err := os.Remove(target); err != nil {
					return err
				}
			}
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		}

		return copyEntry(path, target, info)
	})
}

// copyEntry copies a single non-directory entry described by info (as
// returned by Lstat).
func copyEntry(src, dst string, info fs.FileInfo) error {
	if err := clearDestination(dst); err != nil {
		return err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		link, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(link, dst)
	case info.Mode().IsRegular():
		return copyFile(src, dst, info)
	default:
		// sockets, devices and pipes have no place in a slug
		return nil
	}
}

func clearDestination(dst string) error {
	existing, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if existing.IsDir() {
		return os.RemoveAll(dst)
	}
	return os.Remove(dst)
}

func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src) // #nosec G304 - src comes from the caller's include list
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()) // #nosec G304
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
