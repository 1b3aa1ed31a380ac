package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/spf13/cobra"

	"github.com/fastertools/slugship/pkg/oci"
)

func newSlugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slug",
		Short: "Work with slugs pushed to an OCI registry",
	}
	cmd.AddCommand(newSlugPullCmd())
	return cmd
}

func newSlugPullCmd() *cobra.Command {
	var (
		out      string
		insecure bool
		cacheDir string
	)

	cmd := &cobra.Command{
		Use:   "pull <image-ref>",
		Short: "Download the slug archive of a pushed image",
		Long: `Download the slug archive of an image pushed with 'deploy --registry'.

Archives are cached by layer digest, so pulling the same release twice only
downloads it once.

Example:
  slugship slug pull ghcr.io/acme/my-app:3f2a9c1
  slugship slug pull ghcr.io/acme/my-app@sha256:... -O slug.tgz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			puller := oci.NewSlugPuller()
			if cacheDir != "" {
				puller = oci.NewSlugPullerWithCache(cacheDir)
			}

			var opts []name.Option
			if insecure {
				opts = append(opts, name.Insecure)
			}

			path, err := puller.Pull(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}

			if out != "" {
				if err := copyFile(path, out); err != nil {
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
				path = out
			}

			Success("Pulled slug for %s", args[0])
			return NewKeyValueBuilder("").
				Add("Image", args[0]).
				Add("Slug", path).
				Write(NewDataWriter(dataOutput, outputFormat))
		},
	}

	cmd.Flags().StringVarP(&out, "output-file", "O", "", "Copy the slug archive to this path")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "Allow plain http registries")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Slug cache directory (default is the user cache dir)")
	return cmd
}

func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
