package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func formatDefault(def any) string {
	switch d := def.(type) {
	case bool:
		return strconv.FormatBool(d)
	case float64:
		return strconv.FormatFloat(d, 'f', -1, 64)
	default:
		return fmt.Sprint(d)
	}
}

// formatValue renders v as stored text for a key whose default is def,
// rejecting values that would not read back as def's type.
func formatValue(def, v any) (string, error) {
	switch def.(type) {
	case string:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil

	case bool:
		switch x := v.(type) {
		case bool:
			return strconv.FormatBool(x), nil
		case string:
			b, err := parseBool(x)
			if err != nil {
				return "", err
			}
			return strconv.FormatBool(b), nil
		}
		return "", fmt.Errorf("invalid boolean %v", v)

	case float64:
		switch x := v.(type) {
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case float32:
			return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
		case int:
			return strconv.Itoa(x), nil
		case int64:
			return strconv.FormatInt(x, 10), nil
		case json.Number:
			if _, err := x.Float64(); err != nil {
				return "", fmt.Errorf("invalid number %q", x)
			}
			return x.String(), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return "", fmt.Errorf("invalid number %q", x)
			}
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
		return "", fmt.Errorf("invalid number %v", v)
	}
	return "", fmt.Errorf("unsupported default type %T", def)
}

func parseValue(def any, text string) (any, error) {
	switch def.(type) {
	case string:
		return text, nil
	case bool:
		return parseBool(text)
	case float64:
		return strconv.ParseFloat(strings.TrimSpace(text), 64)
	}
	return nil, fmt.Errorf("unsupported default type %T", def)
}

// parseBool accepts the usual ini spellings, case-insensitively.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "true", "on":
		return true, nil
	case "0", "no", "false", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
