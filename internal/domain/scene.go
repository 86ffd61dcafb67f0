package domain

import (
	"encoding/json"
	"regexp"
)

// SceneType names a conversational situation.
type SceneType string

const (
	SceneWeather             SceneType = "weather"
	SceneLocation            SceneType = "location"
	SceneTime                SceneType = "time"
	SceneMemory              SceneType = "memory"
	SceneSearch              SceneType = "search"
	SceneShopping            SceneType = "shopping"
	ScenePhysicalInteraction SceneType = "physical_interaction"
	SceneEmotionalState      SceneType = "emotional_state"
	SceneRelationship        SceneType = "relationship"
)

// MatchKind identifies which rule produced a scene match.
type MatchKind string

const (
	MatchKeyword MatchKind = "keyword"
	MatchPattern MatchKind = "pattern"
	MatchContext MatchKind = "context"
)

// SceneSource tags the text a scene was detected in.
type SceneSource string

const (
	SourceTextAnalysis         SceneSource = "text_analysis"
	SourceCharacterPersonality SceneSource = "character_personality"
)

// ScenePattern is a compiled regex paired with its source text.
type ScenePattern struct {
	Source string
	Regexp *regexp.Regexp
}

// ToolSuggestion is a per-scene tool recommendation.
type ToolSuggestion struct {
	Name         string  `json:"name"`
	BasePriority float64 `json:"priority"`
	Reason       string  `json:"reason"`
}

// SceneDefinition describes how a scene is recognized and which tools serve it.
type SceneDefinition struct {
	Type           SceneType
	Keywords       []string
	Patterns       []ScenePattern
	ContextClues   []string
	SuggestedTools []ToolSuggestion
}

type SceneMatch struct {
	Kind  MatchKind `json:"type"`
	Value string    `json:"value"`
}

type DetectedScene struct {
	Type       SceneType    `json:"type"`
	Confidence float64      `json:"confidence"`
	Matches    []SceneMatch `json:"matches"`
	Source     SceneSource  `json:"source"`
}

type ToolCandidate struct {
	Name            string    `json:"name"`
	SceneType       SceneType `json:"sceneType"`
	SceneConfidence float64   `json:"sceneConfidence"`
	BasePriority    float64   `json:"priority"`
	FinalPriority   float64   `json:"finalPriority"`
	Reason          string    `json:"reason"`
}

// SceneAnalysis is the classifier output for one context.
type SceneAnalysis struct {
	DetectedScenes   []DetectedScene `json:"detectedScenes"`
	RecommendedTools []ToolCandidate `json:"recommendedTools"`
	Confidence       float64         `json:"confidence"`
}

// ChatMessage is one prior turn. Hosts send either "mes" or "content".
type ChatMessage struct {
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	IsUser  bool   `json:"is_user,omitempty"`
	Content string `json:"content"`
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name    string `json:"name"`
		Role    string `json:"role"`
		IsUser  bool   `json:"is_user"`
		Mes     string `json:"mes"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Name = raw.Name
	m.Role = raw.Role
	m.IsUser = raw.IsUser
	m.Content = raw.Mes
	if m.Content == "" {
		m.Content = raw.Content
	}
	return nil
}

type CharacterProfile struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Personality  string `json:"personality,omitempty"`
	Scenario     string `json:"scenario,omitempty"`
	FirstMessage string `json:"first_mes,omitempty"`
}

// AnalysisContext is everything the classifier and the argument builder read.
type AnalysisContext struct {
	UserInput   string            `json:"userInput,omitempty"`
	ChatHistory []ChatMessage     `json:"chatHistory,omitempty"`
	Character   *CharacterProfile `json:"characterInfo,omitempty"`
}

// RecentHistory returns the trailing HistoryWindow messages.
func (c AnalysisContext) RecentHistory() []ChatMessage {
	if len(c.ChatHistory) <= HistoryWindow {
		return c.ChatHistory
	}
	return c.ChatHistory[len(c.ChatHistory)-HistoryWindow:]
}
