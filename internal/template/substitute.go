// Package template provides placeholder substitution for scenario payloads,
// headers and pauses. It is protocol-agnostic: values are resolved against a
// session's core.Variables.
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"volley/internal/core"
)

// varPattern matches ${var}, ${a.b[0]}, ${env:VAR} and ${fn(args)} placeholders.
var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Substitute replaces placeholders in text with their textual values.
// Returns all errors joined if multiple variables are missing.
// If text contains no placeholders, it is returned unchanged (fast path).
func Substitute(text string, vars core.Variables) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var errs []error
	result := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		val, err := lookup(match[2:len(match)-1], vars)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return fmt.Sprintf("%v", val)
	})

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return result, nil
}

// SubstituteMap applies substitution to all values in a map.
// Returns all errors joined if any substitution fails.
func SubstituteMap(m map[string]string, vars core.Variables) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}

	result := make(map[string]string, len(m))
	var errs []error

	for k, v := range m {
		substituted, err := Substitute(v, vars)
		if err != nil {
			errs = append(errs, fmt.Errorf("header %q: %w", k, err))
			continue
		}
		result[k] = substituted
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

// lookup resolves the content of one placeholder.
func lookup(name string, vars core.Variables) (any, error) {
	name = strings.TrimSpace(name)

	if envName, ok := strings.CutPrefix(name, "env:"); ok {
		if val, ok := os.LookupEnv(envName); ok {
			return val, nil
		}
		return nil, fmt.Errorf("env var %q not set", envName)
	}

	if val, ok, err := evalFunction(name); ok || err != nil {
		return val, err
	}

	if val, ok := vars.Get(name); ok {
		return val, nil
	}

	if val, ok := lookupPath(name, vars); ok {
		return val, nil
	}

	return nil, fmt.Errorf("variable %q not found", name)
}
