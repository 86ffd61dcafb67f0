package scene

import (
	"regexp"

	"mcpscene/internal/domain"
)

// Catalog is the immutable table of scene definitions, in evaluation order.
type Catalog struct {
	definitions []domain.SceneDefinition
	byType      map[domain.SceneType]int
}

type rawDefinition struct {
	scene    domain.SceneType
	keywords []string
	patterns []string
	clues    []string
	tools    []domain.ToolSuggestion
}

var builtinDefinitions = []rawDefinition{
	{
		scene:    domain.SceneWeather,
		keywords: []string{"天气", "下雨", "晴天", "阴天", "温度", "气温", "风", "雪", "雾"},
		patterns: []string{`今天.*?天气`, `外面.*?(下雨|晴天|阴天)`, `温度.*?(高|低|热|冷)`, `看.*?(天空|云|太阳)`},
		clues:    []string{"outdoor", "outside", "weather", "temperature", "rain", "sunny"},
		tools: []domain.ToolSuggestion{
			{Name: "weather-api", BasePriority: 1, Reason: "获取实时天气信息"},
			{Name: "location-service", BasePriority: 0.8, Reason: "确定天气查询位置"},
		},
	},
	{
		scene:    domain.SceneLocation,
		keywords: []string{"地址", "位置", "在哪", "去哪", "路线", "导航", "附近"},
		patterns: []string{`在.*?(哪里|什么地方)`, `去.*?(商店|餐厅|医院|学校)`, `附近.*?(有什么|哪里有)`, `怎么.*?去`},
		clues:    []string{"location", "address", "nearby", "direction", "map"},
		tools: []domain.ToolSuggestion{
			{Name: "maps-api", BasePriority: 1, Reason: "提供地图和位置信息"},
			{Name: "places-api", BasePriority: 0.9, Reason: "查找附近地点"},
			{Name: "directions-api", BasePriority: 0.8, Reason: "提供路线导航"},
		},
	},
	{
		scene:    domain.SceneTime,
		keywords: []string{"时间", "几点", "什么时候", "日期", "星期", "月份"},
		patterns: []string{`现在.*?几点`, `今天.*?(星期|日期)`, `什么时候.*?(开始|结束)`},
		clues:    []string{"time", "date", "schedule", "when"},
		tools: []domain.ToolSuggestion{
			{Name: "datetime-service", BasePriority: 1, Reason: "获取准确时间信息"},
			{Name: "calendar-api", BasePriority: 0.7, Reason: "查询日程安排"},
		},
	},
	{
		scene:    domain.SceneMemory,
		keywords: []string{"记得", "想起", "以前", "之前", "历史", "过去"},
		patterns: []string{`还记得.*?吗`, `以前.*?(说过|做过)`, `我们.*?(聊过|谈过)`, `上次.*?(见面|对话)`},
		clues:    []string{"remember", "recall", "history", "previous", "before"},
		tools: []domain.ToolSuggestion{
			{Name: "conversation-memory", BasePriority: 1, Reason: "检索历史对话"},
			{Name: "character-memory", BasePriority: 0.9, Reason: "回忆角色相关信息"},
			{Name: "rag-search", BasePriority: 0.8, Reason: "搜索相关记忆片段"},
		},
	},
	{
		scene:    domain.SceneSearch,
		keywords: []string{"搜索", "查找", "了解", "知道", "信息", "资料"},
		patterns: []string{`搜索.*?(关于|有关)`, `查找.*?(信息|资料)`, `了解.*?(更多|详细)`, `告诉我.*?(关于|有关)`},
		clues:    []string{"search", "find", "information", "learn", "know"},
		tools: []domain.ToolSuggestion{
			{Name: "web-search", BasePriority: 1, Reason: "搜索网络信息"},
			{Name: "knowledge-base", BasePriority: 0.9, Reason: "查询知识库"},
			{Name: "rag-search", BasePriority: 0.8, Reason: "检索相关文档"},
		},
	},
	{
		scene:    domain.SceneShopping,
		keywords: []string{"买", "购买", "价格", "商品", "店铺", "优惠"},
		patterns: []string{`想.*?买`, `价格.*?(多少|便宜|贵)`, `哪里.*?(有卖|能买)`, `推荐.*?(商品|店铺)`},
		clues:    []string{"buy", "purchase", "price", "shop", "store"},
		tools: []domain.ToolSuggestion{
			{Name: "product-search", BasePriority: 1, Reason: "搜索商品信息"},
			{Name: "price-comparison", BasePriority: 0.9, Reason: "比较价格"},
			{Name: "store-locator", BasePriority: 0.7, Reason: "查找附近商店"},
		},
	},
	{
		scene:    domain.ScenePhysicalInteraction,
		keywords: []string{"触摸", "拥抱", "亲吻", "身体", "肌肤", "温度", "心跳"},
		patterns: []string{`感受.*?(温暖|柔软|心跳)`, `(触摸|抚摸|拥抱).*?(轻柔|温柔)`, `身体.*?(贴近|接触|感觉)`, `(呼吸|心跳).*?(加快|急促)`},
		clues:    []string{"touch", "embrace", "physical", "intimate", "gentle", "warm"},
		tools: []domain.ToolSuggestion{
			{Name: "physics-engine", BasePriority: 1, Reason: "物理交互模拟"},
			{Name: "anatomy-guide", BasePriority: 0.9, Reason: "解剖学指导"},
			{Name: "sensation-mapper", BasePriority: 0.8, Reason: "感觉映射"},
			{Name: "interaction-validator", BasePriority: 0.7, Reason: "交互验证"},
		},
	},
	{
		scene:    domain.SceneEmotionalState,
		keywords: []string{"情绪", "感情", "心情", "开心", "难过", "愤怒", "紧张", "兴奋"},
		patterns: []string{`感到.*?(开心|难过|愤怒|紧张|兴奋)`, `心情.*?(好|不好|复杂)`, `情绪.*?(波动|变化|激动)`, `(高兴|沮丧|焦虑|平静).*?了`},
		clues:    []string{"emotion", "feeling", "mood", "happy", "sad", "angry", "excited"},
		tools: []domain.ToolSuggestion{
			{Name: "emotion-analyzer", BasePriority: 1, Reason: "情感分析"},
			{Name: "mood-tracker", BasePriority: 0.9, Reason: "情绪追踪"},
			{Name: "empathy-engine", BasePriority: 0.8, Reason: "共情引擎"},
			{Name: "emotional-memory", BasePriority: 0.7, Reason: "情感记忆"},
		},
	},
	{
		scene:    domain.SceneRelationship,
		keywords: []string{"关系", "朋友", "恋人", "伙伴", "信任", "依赖", "亲密"},
		patterns: []string{`我们.*?(关系|感情)`, `(信任|依赖|喜欢).*?你`, `你.*?(对我|感觉)`, `(朋友|恋人|伙伴).*?关系`},
		clues:    []string{"relationship", "trust", "intimate", "partner", "friend", "lover"},
		tools: []domain.ToolSuggestion{
			{Name: "relationship-tracker", BasePriority: 1, Reason: "关系追踪"},
			{Name: "intimacy-meter", BasePriority: 0.9, Reason: "亲密度计算"},
			{Name: "trust-analyzer", BasePriority: 0.8, Reason: "信任度分析"},
			{Name: "compatibility-checker", BasePriority: 0.7, Reason: "兼容性检查"},
		},
	},
}

// NewCatalog compiles the built-in scene table.
func NewCatalog() *Catalog {
	c := &Catalog{
		definitions: make([]domain.SceneDefinition, 0, len(builtinDefinitions)),
		byType:      make(map[domain.SceneType]int, len(builtinDefinitions)),
	}
	for _, raw := range builtinDefinitions {
		def := domain.SceneDefinition{
			Type:           raw.scene,
			Keywords:       raw.keywords,
			ContextClues:   raw.clues,
			SuggestedTools: raw.tools,
			Patterns:       make([]domain.ScenePattern, 0, len(raw.patterns)),
		}
		for _, source := range raw.patterns {
			def.Patterns = append(def.Patterns, domain.ScenePattern{
				Source: source,
				Regexp: regexp.MustCompile(`(?i)` + source),
			})
		}
		c.byType[def.Type] = len(c.definitions)
		c.definitions = append(c.definitions, def)
	}
	return c
}

// Definitions returns the scene definitions in evaluation order.
// Callers must not mutate the returned values.
func (c *Catalog) Definitions() []domain.SceneDefinition {
	return c.definitions
}

// SuggestedTools returns a copy of the tool suggestions for a scene.
func (c *Catalog) SuggestedTools(scene domain.SceneType) []domain.ToolSuggestion {
	idx, ok := c.byType[scene]
	if !ok {
		return nil
	}
	return append([]domain.ToolSuggestion(nil), c.definitions[idx].SuggestedTools...)
}

// SceneTypes lists the known scene types in evaluation order.
func (c *Catalog) SceneTypes() []domain.SceneType {
	out := make([]domain.SceneType, 0, len(c.definitions))
	for _, def := range c.definitions {
		out = append(out, def.Type)
	}
	return out
}
