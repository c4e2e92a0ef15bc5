package template

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"volley/internal/core"
)

// lookupPath resolves a nested reference such as user.profile.id or
// items[0].name: the leading segment names a variable and the rest is a
// JSONPath-like path evaluated against its JSON encoding.
func lookupPath(name string, vars core.Variables) (any, bool) {
	i := strings.IndexAny(name, ".[")
	if i <= 0 {
		return nil, false
	}

	root, ok := vars.Get(name[:i])
	if !ok {
		return nil, false
	}

	body, err := json.Marshal(root)
	if err != nil {
		return nil, false
	}

	path := strings.TrimPrefix(convertJSONPath(name[i:]), ".")
	value := gjson.GetBytes(body, path)
	if !value.Exists() {
		return nil, false
	}
	return value.Value(), true
}

// convertJSONPath converts JSONPath syntax to gjson path format.
// $.foo.bar -> foo.bar
// $.items[0].id -> items.0.id
// $.data[*].name -> data.#.name
func convertJSONPath(path string) string {
	// Remove leading $. or $
	if strings.HasPrefix(path, "$.") {
		path = path[2:]
	} else if strings.HasPrefix(path, "$") {
		path = path[1:]
	}

	// Convert array access [n] to .n
	// Convert [*] to .#
	var result strings.Builder
	i := 0
	for i < len(path) {
		if path[i] == '[' {
			// Find closing bracket
			j := i + 1
			for j < len(path) && path[j] != ']' {
				j++
			}
			if j < len(path) {
				content := path[i+1 : j]
				if content == "*" {
					result.WriteString(".#")
				} else {
					result.WriteByte('.')
					result.WriteString(content)
				}
				i = j + 1
				continue
			}
		}
		result.WriteByte(path[i])
		i++
	}

	return result.String()
}
