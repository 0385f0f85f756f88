package launchconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Variable pattern matches ${...} expressions
var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolutionContext provides context for variable resolution.
type ResolutionContext struct {
	WorkspaceFolder string            // Root folder of the workspace
	EnvOverrides    map[string]string // Override environment variables
}

// ResolveVariables replaces all ${...} variables in the given text. Unknown
// variables are left in place and reported.
func ResolveVariables(text string, ctx *ResolutionContext) (string, error) {
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	var lastErr error
	result := variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := match[2 : len(match)-1]
		resolved, err := resolveVariable(expr, ctx)
		if err != nil {
			lastErr = err
			return match
		}
		return resolved
	})

	return result, lastErr
}

func resolveVariable(expr string, ctx *ResolutionContext) (string, error) {
	switch {
	case expr == "workspaceFolder" || expr == "workspaceRoot":
		return ctx.WorkspaceFolder, nil

	case expr == "workspaceFolderBasename":
		return filepath.Base(ctx.WorkspaceFolder), nil

	case expr == "userHome":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home: %w", err)
		}
		return home, nil

	case expr == "cwd":
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get cwd: %w", err)
		}
		return cwd, nil

	case expr == "pathSeparator" || expr == "/":
		return string(os.PathSeparator), nil

	case strings.HasPrefix(expr, "env:"):
		varName := strings.TrimPrefix(expr, "env:")
		if val, ok := ctx.EnvOverrides[varName]; ok {
			return val, nil
		}
		return os.Getenv(varName), nil

	default:
		return "", fmt.Errorf("unsupported variable: ${%s}", expr)
	}
}

// ResolveStringSlice resolves variables in all strings in a slice.
func ResolveStringSlice(values []string, ctx *ResolutionContext) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	result := make([]string, len(values))
	for i, v := range values {
		resolved, err := ResolveVariables(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve element %d: %w", i, err)
		}
		result[i] = resolved
	}
	return result, nil
}

// ResolveStringMap resolves variables in all values (not keys) of a string map.
func ResolveStringMap(values map[string]string, ctx *ResolutionContext) (map[string]string, error) {
	if values == nil {
		return nil, nil
	}
	result := make(map[string]string, len(values))
	for k, v := range values {
		resolved, err := ResolveVariables(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve value for key %q: %w", k, err)
		}
		result[k] = resolved
	}
	return result, nil
}

// resolveValue resolves variables inside decoded JSON values.
func resolveValue(v interface{}, ctx *ResolutionContext) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return ResolveVariables(val, ctx)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			r, err := resolveValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			r, err := resolveValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return v, nil
	}
}
