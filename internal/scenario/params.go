package scenario

import (
	"fmt"
	"strconv"
)

// params is a step's config after {key} replacement. Values come from TOML
// (int64, float64) or YAML (int, float64) decoding.
type params map[string]interface{}

func (p params) str(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// strOr returns the value of key, or fallback when it is unset.
func (p params) strOr(key, fallback string) string {
	if v := p.str(key); v != "" {
		return v
	}
	return fallback
}

func (p params) require(key string) (string, error) {
	v := p.str(key)
	if v == "" {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	return v, nil
}

// integer returns the value of key and whether it was set.
func (p params) integer(key string) (int, bool, error) {
	switch v := p[key].(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false, fmt.Errorf("parameter %q: %w", key, err)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("parameter %q: unexpected %T", key, v)
	}
}

func (p params) boolean(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}
