// Package oci publishes slugs as OCI images for container based platforms.
//
// A slug archive already lays the application out under ./app, so it is used
// as the single image layer unchanged. The image config runs the web process
// type from /app and records every process type as a label.
//
// Example usage:
//
//	pusher := oci.NewSlugPusher("ghcr.io/acme", oci.WithBasicAuth("user", "token"))
//	rel, err := pusher.Release(ctx, cred, deploy.ReleaseRequest{
//	    App:          "my-app",
//	    SlugPath:     "target/heroku/slug.tgz",
//	    ProcessTypes: deploy.ProcessTypes{"web": "java -jar app.jar"},
//	})
//
//	// Fetch the slug back out of a pushed image
//	puller := oci.NewSlugPuller()
//	path, err := puller.Pull(ctx, rel.Ref)
package oci
