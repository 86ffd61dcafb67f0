package scene

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"mcpscene/internal/domain"
)

// Scores are kept in hundredths so sums like 0.3+0.5 stay exact.
const (
	keywordScore = 30
	patternScore = 50
	clueScore    = 20
	emitScore    = 30
	maxScore     = 100
)

type ClassifierOptions struct {
	Catalog *Catalog
	Logger  *zap.Logger
}

// Classifier scores text against the scene catalog. It holds no mutable state.
type Classifier struct {
	catalog *Catalog
	logger  *zap.Logger
}

func NewClassifier(opts ClassifierOptions) *Classifier {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Classifier{catalog: catalog, logger: logger.Named("scene")}
}

// Catalog exposes the scene table the classifier evaluates.
func (c *Classifier) Catalog() *Catalog {
	return c.catalog
}

// AnalyzeText returns every scene whose score exceeds the emit threshold.
func (c *Classifier) AnalyzeText(text string) []domain.DetectedScene {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var scenes []domain.DetectedScene
	for _, def := range c.catalog.Definitions() {
		score := 0
		var matches []domain.SceneMatch

		for _, keyword := range def.Keywords {
			if strings.Contains(lower, keyword) {
				score += keywordScore
				matches = append(matches, domain.SceneMatch{Kind: domain.MatchKeyword, Value: keyword})
			}
		}
		for _, pattern := range def.Patterns {
			if pattern.Regexp.MatchString(text) {
				score += patternScore
				matches = append(matches, domain.SceneMatch{Kind: domain.MatchPattern, Value: pattern.Source})
			}
		}
		for _, clue := range def.ContextClues {
			if strings.Contains(lower, clue) {
				score += clueScore
				matches = append(matches, domain.SceneMatch{Kind: domain.MatchContext, Value: clue})
			}
		}

		if score <= emitScore {
			continue
		}
		if score > maxScore {
			score = maxScore
		}
		scenes = append(scenes, domain.DetectedScene{
			Type:       def.Type,
			Confidence: float64(score) / 100,
			Matches:    matches,
			Source:     domain.SourceTextAnalysis,
		})
	}
	return scenes
}

// AnalyzeScene classifies the full turn context and ranks candidate tools.
func (c *Classifier) AnalyzeScene(actx domain.AnalysisContext) domain.SceneAnalysis {
	var detected []domain.DetectedScene

	detected = append(detected, c.safeAnalyze("user_input", actx.UserInput)...)
	for _, msg := range actx.RecentHistory() {
		detected = append(detected, c.safeAnalyze("chat_history", msg.Content)...)
	}
	if actx.Character != nil {
		detected = append(detected, c.analyzeCharacter(*actx.Character)...)
	}

	scenes := mergeScenes(detected)
	return domain.SceneAnalysis{
		DetectedScenes:   scenes,
		RecommendedTools: c.rankTools(scenes),
		Confidence:       overallConfidence(scenes),
	}
}

func (c *Classifier) analyzeCharacter(profile domain.CharacterProfile) []domain.DetectedScene {
	var scenes []domain.DetectedScene
	scenes = append(scenes, c.safeAnalyze("character_description", profile.Description)...)
	scenes = append(scenes, c.safeAnalyze("character_scenario", profile.Scenario)...)
	for _, scene := range c.safeAnalyze("character_personality", profile.Personality) {
		scene.Source = domain.SourceCharacterPersonality
		scene.Confidence *= domain.PersonalityWeight
		scenes = append(scenes, scene)
	}
	return scenes
}

func (c *Classifier) safeAnalyze(field, text string) (scenes []domain.DetectedScene) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("scene analysis failed", zap.String("field", field), zap.String("panic", fmt.Sprint(r)))
			scenes = nil
		}
	}()
	return c.AnalyzeText(text)
}

// mergeScenes collapses scenes by type keeping the highest confidence and all
// matches, then orders them by confidence. Ties keep first-seen order.
func mergeScenes(scenes []domain.DetectedScene) []domain.DetectedScene {
	if len(scenes) == 0 {
		return []domain.DetectedScene{}
	}
	index := make(map[domain.SceneType]int, len(scenes))
	merged := make([]domain.DetectedScene, 0, len(scenes))
	for _, scene := range scenes {
		if i, ok := index[scene.Type]; ok {
			existing := &merged[i]
			if scene.Confidence > existing.Confidence {
				existing.Confidence = scene.Confidence
			}
			existing.Matches = append(existing.Matches, scene.Matches...)
			continue
		}
		scene.Matches = append([]domain.SceneMatch(nil), scene.Matches...)
		index[scene.Type] = len(merged)
		merged = append(merged, scene)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	return merged
}

func (c *Classifier) rankTools(scenes []domain.DetectedScene) []domain.ToolCandidate {
	index := make(map[string]int)
	candidates := make([]domain.ToolCandidate, 0)
	for _, scene := range scenes {
		for _, suggestion := range c.catalog.SuggestedTools(scene.Type) {
			candidate := domain.ToolCandidate{
				Name:            suggestion.Name,
				SceneType:       scene.Type,
				SceneConfidence: scene.Confidence,
				BasePriority:    suggestion.BasePriority,
				FinalPriority:   suggestion.BasePriority * scene.Confidence,
				Reason:          suggestion.Reason,
			}
			if i, ok := index[candidate.Name]; ok {
				if candidate.FinalPriority > candidates[i].FinalPriority {
					candidates[i] = candidate
				}
				continue
			}
			index[candidate.Name] = len(candidates)
			candidates = append(candidates, candidate)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FinalPriority > candidates[j].FinalPriority
	})
	if len(candidates) > domain.MaxRecommendedTools {
		candidates = candidates[:domain.MaxRecommendedTools]
	}
	return candidates
}

func overallConfidence(scenes []domain.DetectedScene) float64 {
	if len(scenes) == 0 {
		return 0
	}
	total := 0.0
	for _, scene := range scenes {
		total += scene.Confidence
	}
	mean := total / float64(len(scenes))
	if mean > 1 {
		return 1
	}
	return mean
}
