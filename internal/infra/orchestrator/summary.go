package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mcpscene/internal/domain"
)

const summarySeparator = "；"

// buildSummary renders the human-readable digest of successful outcomes.
func buildSummary(results []domain.ToolCallOutcome, loc *time.Location) string {
	parts := make([]string, 0, len(results))
	for _, result := range results {
		body, _ := result.Result.(map[string]any)
		if body == nil {
			continue
		}
		switch result.ToolName {
		case "weather-api":
			if weather, ok := body["weather"].(map[string]any); ok {
				parts = append(parts, fmt.Sprintf("当前天气：%v，温度%v°C", weather["description"], weather["temperature"]))
			}
		case "web-search":
			if n := listLen(body["results"]); n > 0 {
				parts = append(parts, fmt.Sprintf("搜索到%d条相关信息", n))
			}
		case "conversation-memory":
			if n := listLen(body["memories"]); n > 0 {
				parts = append(parts, fmt.Sprintf("找到%d条相关记忆", n))
			}
		case "datetime-service":
			raw, _ := body["currentTime"].(string)
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				parts = append(parts, "当前时间："+ts.In(loc).Format("2006/1/2 15:04:05"))
			}
		}
	}
	return strings.Join(parts, summarySeparator)
}

func listLen(v any) int {
	if items, ok := v.([]any); ok {
		return len(items)
	}
	return 0
}

// RenderContext formats a payload as the block injected into the prompt. It
// returns "" when the payload carries no successful results.
func RenderContext(payload *domain.EnhancementPayload) string {
	if payload == nil || len(payload.ToolResults) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n[系统信息 - 来自MCP工具]\n")
	for _, result := range payload.ToolResults {
		b.WriteString("- ")
		b.WriteString(result.ToolName)
		b.WriteString(": ")
		b.WriteString(compactJSON(result.Result))
		b.WriteString("\n")
	}
	if payload.Summary != "" {
		b.WriteString("摘要：")
		b.WriteString(payload.Summary)
		b.WriteString("\n")
	}
	b.WriteString("[/系统信息]\n")
	return b.String()
}

func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
