package voiceprofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	path  string
	ready bool
}

func (f fakeStore) Lookup(userID string) (string, bool, error) {
	return f.path, f.ready, nil
}

func TestResolveDefaultPath(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "alice.wav")
	require.NoError(t, os.WriteFile(ref, []byte("riff"), 0o600))

	r := New(dir, nil)
	path, ok := r.Resolve("alice")
	assert.True(t, ok)
	assert.Equal(t, ref, path)
}

func TestResolveNoneFound(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, nil)
	_, ok := r.Resolve("ghost")
	assert.False(t, ok)
}

func TestResolveMetadataTakesPriority(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "custom.wav")
	require.NoError(t, os.WriteFile(custom, []byte("riff"), 0o600))
	defaultPath := filepath.Join(dir, "alice.wav")
	require.NoError(t, os.WriteFile(defaultPath, []byte("riff"), 0o600))

	r := New(dir, fakeStore{path: custom, ready: true})
	path, ok := r.Resolve("alice")
	assert.True(t, ok)
	assert.Equal(t, custom, path)
}

func TestResolveFallsBackWhenMetadataNotReady(t *testing.T) {
	dir := t.TempDir()
	defaultPath := filepath.Join(dir, "alice.wav")
	require.NoError(t, os.WriteFile(defaultPath, []byte("riff"), 0o600))

	r := New(dir, fakeStore{path: "/nowhere.wav", ready: false})
	path, ok := r.Resolve("alice")
	assert.True(t, ok)
	assert.Equal(t, defaultPath, path)
}
