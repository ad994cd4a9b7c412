package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "state"), nil)
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("widget", sample{Name: "gizmo", Count: 3}))

	var out sample
	found, err := LoadInto(s, "widget", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, sample{Name: "gizmo", Count: 3}, out)
}

func TestLoadMissingKeyReturnsAbsent(t *testing.T) {
	s := newTestStore(t)
	var out sample
	found, err := LoadInto(s, "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidKeyRejected(t *testing.T) {
	s := newTestStore(t)
	err := s.Save("bad/key", sample{})
	require.Error(t, err)
	err = s.Save("", sample{})
	require.Error(t, err)
}

func TestDeleteExists(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("thing", sample{Name: "x"}))

	exists, err := s.Exists("thing")
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := s.Delete("thing")
	require.NoError(t, err)
	assert.True(t, deleted)

	deletedAgain, err := s.Delete("thing")
	require.NoError(t, err)
	assert.False(t, deletedAgain)

	exists, err = s.Exists("thing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListKeysSorted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("zeta", sample{}))
	require.NoError(t, s.Save("alpha", sample{}))

	keys, err := s.ListKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, keys)
}

func TestGetMetadata(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("meta-test", sample{Name: "a"}))

	meta, err := s.GetMetadata("meta-test")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, StateVersion, meta.Version)
	assert.Equal(t, "meta-test", meta.Key)
	assert.NotEmpty(t, meta.SavedAt)
}

func TestCorruptedFileDegradesToAbsent(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.Dir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var out sample
	found, err := LoadInto(s, "broken", &out)
	require.NoError(t, err)
	assert.False(t, found)
}
