package launchconfig

import (
	"fmt"
	"strings"

	"github.com/cosiner/argv"
)

// SplitArgs splits a shell-style command line into program arguments.
// Quotes group words; backticks and pipes are rejected since nothing runs a
// shell.
func SplitArgs(line string) ([]string, error) {
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}
	sections, err := argv.Argv(line, func(string) (string, error) {
		return "", fmt.Errorf("backtick substitution is not supported")
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments %q: %w", line, err)
	}
	switch len(sections) {
	case 0:
		return nil, nil
	case 1:
		return sections[0], nil
	default:
		return nil, fmt.Errorf("invalid arguments %q: pipes are not supported", line)
	}
}
