package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigKeys_MatchStruct(t *testing.T) {
	assert.Len(t, configKeys, 18)
	assert.True(t, isConfigKey("server_url"))
	assert.True(t, isConfigKey("max_store_size"))
	assert.True(t, isConfigKey("user_agent"))
	assert.False(t, isConfigKey("reader_theme"))
	assert.IsIncreasing(t, configKeys)
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, editDistance("poll_interval", "poll_interval"))
	assert.Equal(t, 1, editDistance("server_ur", "server_url"))
	assert.Equal(t, 3, editDistance("", "abc"))
	assert.Equal(t, 3, editDistance("abc", ""))
	assert.Equal(t, 3, editDistance("kitten", "sitting"))
}

func TestClosestKey(t *testing.T) {
	assert.Equal(t, "max_retries", closestKey("max_retry"))
	assert.Equal(t, "websocket", closestKey("websockt"))
	assert.Empty(t, closestKey("completely_unrelated"))
}

func TestBuildKeyError(t *testing.T) {
	assert.EqualError(t, buildKeyError("log_levl"), `unknown config key "log_levl", did you mean "log_level"?`)
	assert.EqualError(t, buildKeyError("zzzzzzzz"), `unknown config key "zzzzzzzz"`)
}
