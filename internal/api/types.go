package api

import "fmt"

// SlugRequest is the body of a slug creation
type SlugRequest struct {
	ProcessTypes map[string]string `json:"process_types"`
	Stack        string            `json:"stack,omitempty"`
	Commit       string            `json:"commit,omitempty"`
}

// Blob is where a slug archive must be uploaded
type Blob struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// Slug is the platform's record of a slug
type Slug struct {
	ID           string            `json:"id"`
	Blob         Blob              `json:"blob"`
	ProcessTypes map[string]string `json:"process_types"`
	Commit       *string           `json:"commit"`
	Stack        struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"stack"`
}

// ReleaseCreateRequest is the body of a release creation
type ReleaseCreateRequest struct {
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
}

// ReleaseInfo is the platform's record of a release
type ReleaseInfo struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Status  string `json:"status"`
}

// Error is the error body the platform returns
type Error struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.ID == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.ID, e.Message)
}
