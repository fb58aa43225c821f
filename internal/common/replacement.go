package common

import (
	"regexp"

	"github.com/ternarybob/arbor"
)

// keyRefPattern matches {key-name} references in strings
var keyRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// ReplaceKeyReferences replaces all {key-name} references in input with
// values from vars. Unknown references are left unchanged and logged.
//
// Example:
//
//	ReplaceKeyReferences("tasks/{job_uuid}/", map[string]string{"job_uuid": "abc"}, logger)
//	Returns: "tasks/abc/"
func ReplaceKeyReferences(input string, vars map[string]string, logger arbor.ILogger) string {
	if input == "" {
		return input
	}

	return keyRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		keyName := match[1 : len(match)-1]
		if value, exists := vars[keyName]; exists {
			return value
		}
		logger.Warn().
			Str("reference", match).
			Str("key", keyName).
			Msg("Unresolved key reference")
		return match
	})
}

// ReplaceInMap replaces {key-name} references in the string values of m,
// descending into nested maps and lists. The map is mutated in place.
func ReplaceInMap(m map[string]interface{}, vars map[string]string, logger arbor.ILogger) {
	for key, value := range m {
		m[key] = replaceValue(value, vars, logger)
	}
}

func replaceValue(value interface{}, vars map[string]string, logger arbor.ILogger) interface{} {
	switch v := value.(type) {
	case string:
		return ReplaceKeyReferences(v, vars, logger)
	case map[string]interface{}:
		ReplaceInMap(v, vars, logger)
		return v
	case []interface{}:
		for i, elem := range v {
			v[i] = replaceValue(elem, vars, logger)
		}
		return v
	case []string:
		for i, elem := range v {
			v[i] = ReplaceKeyReferences(elem, vars, logger)
		}
		return v
	}
	return value
}
