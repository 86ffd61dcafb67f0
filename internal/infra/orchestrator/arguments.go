package orchestrator

import (
	"regexp"
	"strings"

	"mcpscene/internal/domain"
)

type sceneFunction struct {
	scene    domain.SceneType
	function string
}

// functionTable maps a tool to the function it exposes for each scene, in
// fallback order.
var functionTable = map[string][]sceneFunction{
	"weather-api":         {{domain.SceneWeather, "getCurrentWeather"}},
	"web-search":          {{domain.SceneSearch, "searchWeb"}},
	"conversation-memory": {{domain.SceneMemory, "searchMemory"}},
	"rag-search":          {{domain.SceneSearch, "searchDocuments"}, {domain.SceneMemory, "searchMemory"}},
	"maps-api":            {{domain.SceneLocation, "searchPlaces"}},
	"datetime-service":    {{domain.SceneTime, "datetime-service"}},
}

// selectFunction picks the function to call on a tool given the ranked scenes.
func selectFunction(toolName string, scenes []domain.DetectedScene) string {
	table, ok := functionTable[toolName]
	if !ok || len(table) == 0 {
		return toolName
	}
	for _, scene := range scenes {
		for _, entry := range table {
			if entry.scene == scene.Type {
				return entry.function
			}
		}
	}
	return table[0].function
}

var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`在(.+?)(?:市|县|区|镇|村)`),
	regexp.MustCompile(`位于(.+?)(?:的|，|。)`),
	regexp.MustCompile(`(.+?)(?:街|路|大道|广场)`),
}

// extractLocation returns the first place name found in text, or "".
func extractLocation(text string) string {
	for _, pattern := range locationPatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			return strings.TrimSpace(match[1])
		}
	}
	return ""
}

func buildArguments(toolName string, actx domain.AnalysisContext) map[string]any {
	args := make(map[string]any)
	if actx.UserInput != "" {
		args["query"] = actx.UserInput
	}
	character := actx.Character
	if character != nil {
		args["character"] = character.Name
		args["context"] = "Character: " + character.Name + ". " + character.Description
	}

	switch toolName {
	case "weather-api":
		if character != nil && character.Scenario != "" {
			if location := extractLocation(character.Scenario); location != "" {
				args["location"] = location
			}
		}
	case "web-search":
		args["maxResults"] = 3
		args["safeSearch"] = true
	case "conversation-memory":
		if actx.ChatHistory != nil {
			// Copied so the payload is always a JSON array and never aliases the turn.
			recent := make([]domain.ChatMessage, 0, domain.HistoryWindow)
			args["recentMessages"] = append(recent, actx.RecentHistory()...)
		}
	case "rag-search":
		args["maxResults"] = 5
		if character != nil {
			args["context"] = character.Description
		}
	}
	return args
}
