package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppRootStripsTrailingBinSegment(t *testing.T) {
	assert.Equal(t, "/opt/foo", appRoot([]string{"/opt/foo/bin/foo"}))
}

func TestAppRootKeepsNonBinDirectory(t *testing.T) {
	assert.Equal(t, "/opt/foo", appRoot([]string{"/opt/foo/foo"}))
}

func TestAppRootPrefersHomePrefixedArgOverArgv0(t *testing.T) {
	assert.Equal(t, "/home/user/app", appRoot([]string{"/usr/bin/wrapper", "/home/user/app/bin/app"}))
}

func TestIsGlobDetectsMetacharacters(t *testing.T) {
	assert.True(t, isGlob("/tmp/*.log"))
	assert.True(t, isGlob("/tmp/file?.txt"))
	assert.True(t, isGlob("/tmp/[abc]"))
	assert.True(t, isGlob("/tmp/{a,b}"))
	assert.False(t, isGlob("/tmp/exact-path"))
}

func TestClassifyExactPathWinsOverRegexpAndRoot(t *testing.T) {
	apps := []Application{{
		Name:    "foo",
		Execute: []string{"/opt/foo/bin/foo"},
		FileTypes: map[PathType][]string{
			TypeRW: {"/opt/foo/data/state.db"},
			TypeRO: {"/opt/foo/data/*.conf"},
		},
	}}
	c := buildClassifier(apps)

	app, typ, ok := c.Classify("/opt/foo/data/state.db")
	require.True(t, ok)
	assert.Equal(t, "foo", app)
	assert.Equal(t, TypeRW, typ)

	app, typ, ok = c.Classify("/opt/foo/data/app.conf")
	require.True(t, ok)
	assert.Equal(t, "foo", app)
	assert.Equal(t, TypeRO, typ)
}

func TestClassifyRootFallbackByFileMode(t *testing.T) {
	dir := t.TempDir()
	appDir := filepath.Join(dir, "opt", "foo")
	require.NoError(t, os.MkdirAll(appDir, 0755))

	roFile := filepath.Join(appDir, "readonly.dat")
	require.NoError(t, os.WriteFile(roFile, []byte("x"), 0644))

	apps := []Application{{Name: "foo", Execute: []string{filepath.Join(appDir, "bin", "foo")}}}
	c := buildClassifier(apps)
	// Override the derived root to point at the temp dir we actually stat.
	c.roots[0] = appDir

	app, typ, ok := c.Classify(roFile)
	require.True(t, ok)
	assert.Equal(t, "foo", app)
	assert.Equal(t, TypePublicRO, typ)
}

func TestFallbackTypeNeverMapsExecutableToWritable(t *testing.T) {
	assert.Equal(t, TypePublicRO, fallbackType(0755))
	assert.Equal(t, TypeRO, fallbackType(0750))
	assert.Equal(t, TypePrivate, fallbackType(0700))
}

func TestFallbackTypeNonExecutable(t *testing.T) {
	assert.Equal(t, TypePublic, fallbackType(0666))
	assert.Equal(t, TypePublicRO, fallbackType(0644))
	assert.Equal(t, TypeRW, fallbackType(0660))
	assert.Equal(t, TypeRO, fallbackType(0640))
	assert.Equal(t, TypePrivate, fallbackType(0600))
}
