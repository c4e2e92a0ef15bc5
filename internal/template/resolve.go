package template

import (
	"errors"
	"fmt"
	"regexp"

	"volley/internal/core"
)

// wholePattern matches a string made of exactly one placeholder.
var wholePattern = regexp.MustCompile(`^\$\{([^}]+)\}$`)

// Resolve resolves every placeholder inside value.
//
// Strings are substituted; a string that is exactly one placeholder yields
// the bound value itself, keeping its type. Maps and slices are resolved
// recursively into new containers. Other values are returned unchanged.
func Resolve(value any, vars core.Variables) (any, error) {
	switch v := value.(type) {
	case string:
		if m := wholePattern.FindStringSubmatch(v); m != nil {
			return lookup(m[1], vars)
		}
		return Substitute(v, vars)
	case map[string]any:
		out := make(map[string]any, len(v))
		var errs []error
		for k, item := range v {
			r, err := Resolve(item, vars)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				continue
			}
			out[k] = r
		}
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		var errs []error
		for i, item := range v {
			r, err := Resolve(item, vars)
			if err != nil {
				errs = append(errs, fmt.Errorf("[%d]: %w", i, err))
				continue
			}
			out[i] = r
		}
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return out, nil
	default:
		return value, nil
	}
}

// HasPlaceholders reports whether value contains any placeholder.
func HasPlaceholders(value any) bool {
	switch v := value.(type) {
	case string:
		return varPattern.MatchString(v)
	case map[string]any:
		for _, item := range v {
			if HasPlaceholders(item) {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if HasPlaceholders(item) {
				return true
			}
		}
	}
	return false
}
