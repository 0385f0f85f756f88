package main

import (
	"errors"
	"os"

	"github.com/ctagard/debugify/cmd/debugify/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		var exit *cmds.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Status)
		}
		os.Exit(1)
	}
}
