package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDescriptorsIncludesMandatory(t *testing.T) {
	descs, unknown := BuildDescriptors(nil)
	require.Empty(t, unknown)
	require.Len(t, descs, len(MandatoryEvents))

	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	assert.Equal(t, MandatoryEvents, names)
}

func TestBuildDescriptorsDedupsAndReportsUnknown(t *testing.T) {
	descs, unknown := BuildDescriptors([]string{"stream_online", "follow", "follow", "bogus"})
	assert.Equal(t, []string{"bogus"}, unknown)

	seen := make(map[string]int)
	for _, d := range descs {
		seen[d.Name]++
	}
	assert.Equal(t, 1, seen["follow"])
	assert.Equal(t, 1, seen["stream_online"])
}

func TestDescriptorCondition(t *testing.T) {
	follow, ok := LookupDescriptor("follow")
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		"moderator_user_id":   "999",
		"broadcaster_user_id": "12345",
	}, follow.Condition("999", "12345"))

	userUpdate, ok := LookupDescriptor("user_update")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"user_id": "12345"}, userUpdate.Condition("999", "12345"))
}

func TestEventNameForType(t *testing.T) {
	assert.Equal(t, "stream_online", EventNameForType("stream.online"))
	assert.Equal(t, "whisper_received", EventNameForType("user.whisper.message"))

	// Unknown wire types pass through so custom handlers still match.
	assert.Equal(t, "drop.entitlement.grant", EventNameForType("drop.entitlement.grant"))
}
