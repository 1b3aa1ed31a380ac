package deploy

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fastertools/slugship/internal/config"
)

// ResolveRuntimeVersion returns the runtime version declared in the project's
// system.properties, falling back to the default version.
func ResolveRuntimeVersion(rootDir string, log logrus.FieldLogger) string {
	return config.RuntimeVersion(rootDir, log)
}

// VendorRequest describes the runtime to stage for one deploy
type VendorRequest struct {
	Version string
	Stack   string
	AppDir  string
	WorkDir string
}

// RuntimeVendor makes the runtime available to the deployed artifact
type RuntimeVendor interface {
	Vendor(ctx context.Context, req VendorRequest) error
}

// NoopVendor is used when the target platform provides the runtime natively
type NoopVendor struct {
	Log logrus.FieldLogger
}

// Vendor logs the requested version and stages nothing
func (v NoopVendor) Vendor(ctx context.Context, req VendorRequest) error {
	orStandard(v.Log).WithFields(logrus.Fields{"version": req.Version, "stack": req.Stack}).
		Debug("runtime provided by platform")
	return nil
}

// ArchiveVendor downloads a runtime tarball for the stack and unpacks it into
// the app dir as .jdk. Downloads are cached in the work dir, which survives
// staging resets.
type ArchiveVendor struct {
	BaseURL    string
	HTTPClient *http.Client
	Log        logrus.FieldLogger
}

// NewArchiveVendor creates an ArchiveVendor downloading from baseURL
func NewArchiveVendor(baseURL string, log logrus.FieldLogger) *ArchiveVendor {
	return &ArchiveVendor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		Log: log,
	}
}

// URL returns the download location of the runtime for stack and version
func (v *ArchiveVendor) URL(stack, version string) string {
	return fmt.Sprintf("%s/%s/openjdk%s.tar.gz", strings.TrimRight(v.BaseURL, "/"), stack, version)
}

// Vendor stages the runtime archive into req.AppDir/.jdk
func (v *ArchiveVendor) Vendor(ctx context.Context, req VendorRequest) error {
	if !isPathSegment(req.Stack) || !isPathSegment(req.Version) {
		return NewConfigurationError("invalid runtime stack %q or version %q", req.Stack, req.Version)
	}
	cache := filepath.Join(req.WorkDir, fmt.Sprintf("jdk-%s-%s.tar.gz", req.Stack, req.Version))
	log := orStandard(v.Log).WithFields(logrus.Fields{"version": req.Version, "stack": req.Stack})

	if _, err := os.Stat(cache); err != nil {
		log.Info("downloading runtime")
		if err := v.download(ctx, v.URL(req.Stack, req.Version), cache); err != nil {
			return err
		}
	} else {
		log.Debug("using cached runtime")
	}

	jdkDir := filepath.Join(req.AppDir, ".jdk")
	if err := os.MkdirAll(jdkDir, 0750); err != nil {
		return err
	}
	if err := extractTarGz(cache, jdkDir); err != nil {
		return errors.Wrap(err, "failed to extract runtime")
	}

	profileDir := filepath.Join(req.AppDir, ".profile.d")
	if err := os.MkdirAll(profileDir, 0750); err != nil {
		return err
	}
	profile := "export JAVA_HOME=\"$HOME/.jdk\"\nexport PATH=\"$HOME/.jdk/bin:$PATH\"\n"
	return os.WriteFile(filepath.Join(profileDir, "jdk.sh"), []byte(profile), 0644) // #nosec G306
}

func (v *ArchiveVendor) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := v.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return NewTransportError("download runtime", 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return NewTransportError("download runtime", resp.StatusCode, fmt.Errorf("GET %s", url))
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp) // #nosec G304 - dest is inside the work dir
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return NewTransportError("download runtime", resp.StatusCode, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// extractTarGz unpacks archive into dest, refusing entries that escape it
func extractTarGz(archive, dest string) error {
	f, err := os.Open(archive) // #nosec G304
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.Clean("/" + hdr.Name))
		if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
			return fmt.Errorf("archive entry %q escapes %s", hdr.Name, dest)
		}
		if err := checkParents(dest, target); err != nil {
			return fmt.Errorf("archive entry %q: %w", hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0700); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
				return err
			}
			// a link left by an earlier entry must not be written through
			if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
				if err := os.Remove(target); err != nil {
					return err
				}
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode).Perm()) // #nosec G304
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil { // #nosec G110 - runtime archives come from a configured source
				_ = out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}

// checkParents refuses a target whose parent directories below dest include a
// symlink, so entries cannot be written through links made by earlier entries.
func checkParents(dest, target string) error {
	rel, err := filepath.Rel(dest, filepath.Dir(target))
	if err != nil || rel == "." {
		return err
	}

	dir := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		dir = filepath.Join(dir, part)
		info, err := os.Lstat(dir)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("parent %s is a symlink", dir)
		}
	}
	return nil
}

// isPathSegment reports whether s can be used as a single file name
func isPathSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
