package oci

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// SlugPuller fetches the slug archive back out of a pushed image
type SlugPuller struct {
	cacheDir string
	mu       sync.Mutex
}

// NewSlugPuller creates a puller caching under the user cache dir
func NewSlugPuller() *SlugPuller {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	cacheDir := filepath.Join(base, "slugship", "slugs")
	if err := os.MkdirAll(cacheDir, 0750); err != nil {
		cacheDir = filepath.Join(os.TempDir(), "slugship-slugs")
		_ = os.MkdirAll(cacheDir, 0750) // Best effort
	}
	return &SlugPuller{cacheDir: cacheDir}
}

// NewSlugPullerWithCache creates a puller with a custom cache directory
func NewSlugPullerWithCache(cacheDir string) *SlugPuller {
	return &SlugPuller{cacheDir: cacheDir}
}

// Pull downloads the slug layer of ref and returns the cached archive path.
// Archives are cached by layer digest.
func (p *SlugPuller) Pull(ctx context.Context, ref string, opts ...name.Option) (string, error) {
	parsed, err := name.ParseReference(ref, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid reference %s: %w", ref, err)
	}

	img, err := remote.Image(parsed, remote.WithContext(ctx), remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return "", fmt.Errorf("failed to pull %s: %w", ref, err)
	}

	layers, err := img.Layers()
	if err != nil {
		return "", fmt.Errorf("failed to get layers: %w", err)
	}
	if len(layers) != 1 {
		return "", fmt.Errorf("expected a single slug layer, found %d", len(layers))
	}
	layer := layers[0]

	digest, err := layer.Digest()
	if err != nil {
		return "", fmt.Errorf("failed to get layer digest: %w", err)
	}

	// digest hex is computed, never user input
	cachePath := filepath.Clean(filepath.Join(p.cacheDir, digest.Hex+".tgz"))
	if _, err := os.Stat(cachePath); err == nil {
		return cachePath, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	reader, err := layer.Compressed()
	if err != nil {
		return "", fmt.Errorf("failed to read slug layer: %w", err)
	}
	defer func() { _ = reader.Close() }()

	if err := os.MkdirAll(p.cacheDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}
	tmpFile := filepath.Clean(cachePath + ".tmp")
	file, err := os.Create(tmpFile)
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	_, err = io.Copy(file, reader)
	_ = file.Close()
	if err != nil {
		_ = os.Remove(tmpFile)
		return "", fmt.Errorf("failed to write slug: %w", err)
	}

	if err := os.Rename(tmpFile, cachePath); err != nil {
		_ = os.Remove(tmpFile)
		return "", fmt.Errorf("failed to finalize cache file: %w", err)
	}
	return cachePath, nil
}
