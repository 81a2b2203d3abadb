// Package config loads the YAML configuration shared by the worker and the
// host CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
)

// envRef matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// ExpandEnv replaces environment references in input using the process
// environment. See ExpandEnvFunc.
func ExpandEnv(input string) (string, error) {
	return ExpandEnvFunc(input, os.LookupEnv)
}

// ExpandEnvFunc replaces environment references in input:
//
//	${VAR}            value of VAR, or "" when unset
//	${VAR:-default}   value of VAR, or default when unset or empty
//	${VAR:?message}   value of VAR; unset or empty is an error carrying message
//
// All missing required variables are reported together.
func ExpandEnvFunc(input string, lookup func(string) (string, bool)) (string, error) {
	var errs []error
	out := envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, op, arg := m[1], m[2], m[3]

		if v, ok := lookup(name); ok && v != "" {
			return v
		}
		switch op {
		case ":-":
			return arg
		case ":?":
			if arg == "" {
				arg = "required"
			}
			errs = append(errs, fmt.Errorf("%s: %s", name, arg))
		}
		return ""
	})
	if len(errs) > 0 {
		return "", fmt.Errorf("unset environment variables: %w", errors.Join(errs...))
	}
	return out, nil
}
