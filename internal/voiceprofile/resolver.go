// Package voiceprofile resolves a user's speaker-reference audio, used as
// conditioning input to the Synthesizer.
package voiceprofile

import (
	"os"
	"path/filepath"
)

// MetadataStore looks up a user's reference recording out of whatever
// system of record tracks "ready" voice clones. It is consulted before the
// default path convention; implementations not backed by real metadata can
// simply always return ("", false, nil).
type MetadataStore interface {
	// Lookup returns the path to a ready reference file for userID, or
	// ("", false, nil) if none is recorded.
	Lookup(userID string) (path string, ready bool, err error)
}

// NoopMetadataStore never has a recorded reference; resolution always
// falls through to the default path convention.
type NoopMetadataStore struct{}

func (NoopMetadataStore) Lookup(userID string) (string, bool, error) {
	return "", false, nil
}

// Resolver implements the Voice Profile Resolver of §4.4.
type Resolver struct {
	voicesRoot string
	metadata   MetadataStore
}

// New creates a resolver rooted at voicesRoot, consulting metadata first.
func New(voicesRoot string, metadata MetadataStore) *Resolver {
	if metadata == nil {
		metadata = NoopMetadataStore{}
	}
	return &Resolver{voicesRoot: voicesRoot, metadata: metadata}
}

// Resolve returns the best local path to a PCM reference file for userID,
// or ("", false) if neither a metadata record nor the default path exists.
func (r *Resolver) Resolve(userID string) (string, bool) {
	if path, ready, err := r.metadata.Lookup(userID); err == nil && ready && path != "" {
		if fileExists(path) {
			return path, true
		}
	}

	defaultPath := filepath.Join(r.voicesRoot, userID+".wav")
	if fileExists(defaultPath) {
		return defaultPath, true
	}

	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
