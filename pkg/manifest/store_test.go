package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func TestGetResolvesFromCommonDirAndCachesOnSecondGet(t *testing.T) {
	common := t.TempDir()
	writeManifest(t, common, "foo.manifest", `{"application":"foo","execute":["/bin/true"]}`)

	s := NewStore(Config{CommonDir: common, Cache: true})

	m1, err := s.Get(1000, "foo")
	require.NoError(t, err)
	assert.Equal(t, 1, m1.refcount)

	m2, err := s.Get(1000, "foo")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 2, m1.refcount)

	m2.Unref()
	assert.Equal(t, 1, m1.refcount)
	m1.Unref()
	assert.Equal(t, 0, m1.refcount)
	assert.Empty(t, s.cache)
}

func TestGetWithoutCacheReturnsDistinctManifests(t *testing.T) {
	common := t.TempDir()
	writeManifest(t, common, "foo.manifest", `{"application":"foo","execute":["/bin/true"]}`)

	s := NewStore(Config{CommonDir: common})

	m1, err := s.Get(1000, "foo")
	require.NoError(t, err)
	m2, err := s.Get(1000, "foo")
	require.NoError(t, err)
	assert.NotSame(t, m1, m2)
}

func TestGetUserDirectoryWinsOverCommon(t *testing.T) {
	common := t.TempDir()
	userRoot := t.TempDir()
	writeManifest(t, common, "foo.manifest", `{"application":"foo","execute":["/bin/true"],"description":"common"}`)

	uname, err := usernameOf(os.Getuid())
	require.NoError(t, err)
	userDir := filepath.Join(userRoot, uname)
	require.NoError(t, os.MkdirAll(userDir, 0755))
	writeManifest(t, userDir, "foo.manifest", `{"application":"foo","execute":["/bin/true"],"description":"user"}`)

	s := NewStore(Config{CommonDir: common, UserRootDir: userRoot})
	m, err := s.Get(os.Getuid(), "foo")
	require.NoError(t, err)
	require.Len(t, m.Apps, 1)
	assert.Equal(t, "user", m.Apps[0].Description)
}

func TestGetReturnsErrorWhenManifestMissing(t *testing.T) {
	s := NewStore(Config{CommonDir: t.TempDir()})
	_, err := s.Get(1000, "nonexistent")
	assert.Error(t, err)
}
