package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	uid := uint32(1000)
	req := Request{
		Type:     RequestSetup,
		Seqno:    42,
		Manifest: "foo",
		App:      "foo:bar",
		User:     &uid,
		Exec:     []string{"/opt/foo/bin/bar"},
	}

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var got Request
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, req.Type, got.Type)
	assert.Equal(t, req.Seqno, got.Seqno)
	assert.Equal(t, req.Manifest, got.Manifest)
	assert.Equal(t, req.App, got.App)
	require.NotNil(t, got.User)
	assert.Equal(t, *req.User, *got.User)
	assert.Equal(t, req.Exec, got.Exec)
}

func TestOKReplyHasZeroStatus(t *testing.T) {
	r := OK(7, nil)
	assert.Equal(t, "status", r.Type)
	assert.Equal(t, uint64(7), r.Seqno)
	assert.Equal(t, 0, r.Status.Status)
}

func TestDestinationWildcardFieldsAlwaysMatch(t *testing.T) {
	d := Destination{}
	assert.True(t, d.Matches("any-label", "any:app", 1, 1, 1))
}

func TestDestinationUIDFilterExcludesOtherUsers(t *testing.T) {
	uid := uint32(1000)
	d := Destination{UID: &uid}
	assert.True(t, d.Matches("", "", 1000, 0, 0))
	assert.False(t, d.Matches("", "", 1001, 0, 0))
}

func TestEventTableInternsOnce(t *testing.T) {
	tbl := NewEventTable(4)
	id1, err := tbl.Intern("foo")
	require.NoError(t, err)
	id2, err := tbl.Intern("foo")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	name, ok := tbl.Name(id1)
	require.True(t, ok)
	assert.Equal(t, "foo", name)
}

func TestEventTableRejectsBeyondLimit(t *testing.T) {
	tbl := NewEventTable(2)
	_, err := tbl.Intern("a")
	require.NoError(t, err)
	_, err = tbl.Intern("b")
	require.NoError(t, err)
	_, err = tbl.Intern("c")
	assert.Error(t, err)
}
