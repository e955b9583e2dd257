package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSingleAppMatchingName(t *testing.T) {
	raw := []byte(`{"application":"foo","execute":["/bin/true"],"privileges":["list-apps"]}`)
	status, apps, err := Validate(raw, "foo")
	require.NoError(t, err)
	assert.Zero(t, status&Misnamed)
	require.Len(t, apps, 1)
	assert.Equal(t, "foo", apps[0].Name)
}

func TestValidateSingleAppNameMismatchIsMisnamed(t *testing.T) {
	raw := []byte(`{"application":"bar","execute":["/bin/true"]}`)
	status, _, err := Validate(raw, "foo")
	require.NoError(t, err)
	assert.NotZero(t, status&Misnamed)
}

func TestValidateMissingExecuteFlagsMissingField(t *testing.T) {
	raw := []byte(`{"application":"foo"}`)
	status, _, err := Validate(raw, "foo")
	require.NoError(t, err)
	assert.NotZero(t, status&MissingField)
}

func TestValidateUnknownPrivilegeFlagsInvalidPrivilege(t *testing.T) {
	raw := []byte(`{"application":"foo","execute":["/bin/true"],"privileges":["reboot-the-world"]}`)
	status, _, err := Validate(raw, "foo")
	require.NoError(t, err)
	assert.NotZero(t, status&InvalidPrivilege)
}

func TestValidateDuplicateApplicationNameIsMalformed(t *testing.T) {
	raw := []byte(`[{"application":"foo","execute":["/bin/true"]},{"application":"foo","execute":["/bin/false"]}]`)
	status, apps, err := Validate(raw, "pkg")
	require.NoError(t, err)
	assert.NotZero(t, status&Malformed)
	assert.Len(t, apps, 1)
}

func TestValidateMultiAppArrayAllowsDifferentNames(t *testing.T) {
	raw := []byte(`[{"application":"foo","execute":["/bin/true"]},{"application":"bar","execute":["/bin/false"]}]`)
	status, apps, err := Validate(raw, "pkg")
	require.NoError(t, err)
	assert.Zero(t, status&Malformed)
	assert.Len(t, apps, 2)
}

func TestValidateNonJSONIsMalformed(t *testing.T) {
	status, _, err := Validate([]byte("not json"), "foo")
	require.Error(t, err)
	assert.Equal(t, Malformed, status)
}

func TestValidateInvalidBinaryStatsMissingExecutable(t *testing.T) {
	raw := []byte(`{"application":"foo","execute":["/no/such/binary-xyz"]}`)
	status, _, err := Validate(raw, "foo")
	require.NoError(t, err)
	assert.NotZero(t, status&InvalidBinary)
}

func TestValidateUnknownFileTypeKeyFlagsInvalidField(t *testing.T) {
	raw := []byte(`{"application":"foo","execute":["/bin/true"],"file-types":{"bogus":["/tmp/x"]}}`)
	status, apps, err := Validate(raw, "foo")
	require.NoError(t, err)
	assert.NotZero(t, status&InvalidField)
	assert.Empty(t, apps[0].FileTypes)
}
