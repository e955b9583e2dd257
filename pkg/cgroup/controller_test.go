package cgroup

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireRoot(t *testing.T) {
	t.Helper()
	if os.Getuid() != 0 {
		t.Skip("skipping test that requires root permissions and a mounted cgroup v1 hierarchy")
	}
}

func TestMkdirPlacesPidAndRmdirIsIdempotent(t *testing.T) {
	requireRoot(t)

	c, err := New(Config{Name: "iot-launcher-test"})
	require.NoError(t, err)

	relpath, err := c.Mkdir(0, "testapp", os.Getpid())
	require.NoError(t, err)
	require.NotEmpty(t, relpath)

	pids, err := c.Pids(relpath)
	require.NoError(t, err)
	assert.Contains(t, pids, os.Getpid())

	require.NoError(t, c.Rmdir(relpath))
	require.NoError(t, c.Rmdir(relpath), "rmdir on an already-removed cgroup must be idempotent")
}

func TestResolveCgroupOfFindsOwnProcess(t *testing.T) {
	requireRoot(t)

	c, err := New(Config{Name: "iot-launcher-test"})
	require.NoError(t, err)
	relpath, err := c.Mkdir(0, "resolveapp", os.Getpid())
	require.NoError(t, err)
	defer c.Rmdir(relpath)

	got, err := ResolveCgroupOf("iot-launcher-test", os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, relpath, got)
}
