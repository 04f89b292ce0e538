package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ArgumentError reports a missing or unusable tool argument.
type ArgumentError struct {
	Name   string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Name, e.Reason)
}

// UnknownToolError is returned for names not in the tool table.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return "Unknown tool: " + e.Name
}

func requiredString(args map[string]any, name string) (string, error) {
	s, ok, err := optionalString(args, name)
	if err != nil {
		return "", err
	}
	if !ok || s == "" {
		return "", &ArgumentError{Name: name, Reason: "is required"}
	}
	return s, nil
}

func optionalString(args map[string]any, name string) (string, bool, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, &ArgumentError{Name: name, Reason: fmt.Sprintf("must be a string, got %T", v)}
	}
	return strings.TrimSpace(s), true, nil
}

// optionalInt accepts JSON numbers and numeric strings. Fractions are rejected.
func optionalInt(args map[string]any, name string) (int, bool, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, false, nil
	}

	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false, &ArgumentError{Name: name, Reason: fmt.Sprintf("must be a number, got %q", n)}
		}
		f = parsed
	default:
		return 0, false, &ArgumentError{Name: name, Reason: fmt.Sprintf("must be a number, got %T", v)}
	}

	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false, &ArgumentError{Name: name, Reason: "must be a whole number"}
	}
	return int(f), true, nil
}
