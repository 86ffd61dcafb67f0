package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessage_UnmarshalAcceptsBothBodies(t *testing.T) {
	var messages []ChatMessage
	require.NoError(t, json.Unmarshal([]byte(`[
		{"name": "User", "is_user": true, "mes": "今天天气怎么样"},
		{"role": "assistant", "content": "晴天"},
		{"mes": "first", "content": "second"}
	]`), &messages))

	require.Len(t, messages, 3)
	assert.Equal(t, "今天天气怎么样", messages[0].Content)
	assert.True(t, messages[0].IsUser)
	assert.Equal(t, "晴天", messages[1].Content)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, "first", messages[2].Content)

	var bad ChatMessage
	assert.Error(t, json.Unmarshal([]byte(`"text"`), &bad))
}

func TestAnalysisContext_RecentHistory(t *testing.T) {
	var actx AnalysisContext
	assert.Empty(t, actx.RecentHistory())

	for _, text := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		actx.ChatHistory = append(actx.ChatHistory, ChatMessage{Content: text})
	}
	recent := actx.RecentHistory()
	require.Len(t, recent, HistoryWindow)
	assert.Equal(t, "c", recent[0].Content)
	assert.Equal(t, "g", recent[HistoryWindow-1].Content)
}

func TestToolConfig_IsBuiltin(t *testing.T) {
	assert.True(t, ToolConfig{ServerURL: BuiltinServerURL}.IsBuiltin())
	assert.False(t, ToolConfig{ServerURL: "http://localhost:3001/mcp"}.IsBuiltin())
}
