package catalog

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// expandEnv replaces ${VAR} references in string scalars in place and returns
// the names of unset variables.
func expandEnv(root *yaml.Node) []string {
	missing := make(map[string]struct{})
	walkScalars(root, func(node *yaml.Node) {
		expandScalar(node, missing)
	})
	return sortedNames(missing)
}

// expandValue expands strings inside a decoded JSON value. Types never change.
func expandValue(v any, missing map[string]struct{}) any {
	switch val := v.(type) {
	case map[string]any:
		for key, child := range val {
			val[key] = expandValue(child, missing)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = expandValue(child, missing)
		}
		return val
	case string:
		return expandString(val, missing)
	default:
		return v
	}
}

func expandString(value string, missing map[string]struct{}) string {
	return os.Expand(value, func(key string) string {
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		missing[key] = struct{}{}
		return ""
	})
}

func sortedNames(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// walkScalars visits every value scalar. Mapping keys are left alone so tool
// names stay literal.
func walkScalars(node *yaml.Node, visit func(*yaml.Node)) {
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range node.Content {
			walkScalars(child, visit)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			walkScalars(node.Content[i+1], visit)
		}
	case yaml.AliasNode:
		if node.Alias != nil {
			walkScalars(node.Alias, visit)
		}
	case yaml.ScalarNode:
		visit(node)
	}
}

func expandScalar(node *yaml.Node, missing map[string]struct{}) {
	if node.Tag != "" && node.Tag != "!!str" {
		return
	}
	if !strings.Contains(node.Value, "$") {
		return
	}
	expanded := expandString(node.Value, missing)
	if expanded == node.Value {
		return
	}
	// Quoted scalars stay strings; plain ones are retyped so "${PORT}" can
	// feed an integer field.
	if node.Style != 0 {
		node.Tag = "!!str"
		node.Value = expanded
		return
	}
	node.Tag, node.Value = retypeScalar(expanded)
}

func retypeScalar(value string) (string, string) {
	if strings.TrimSpace(value) == "" {
		return "!!str", value
	}
	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return "!!str", value
	}
	switch v := parsed.(type) {
	case nil:
		return "!!null", "null"
	case bool:
		return "!!bool", strconv.FormatBool(v)
	case int:
		return "!!int", strconv.Itoa(v)
	case float64:
		return "!!float", strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return "!!str", value
	}
}
