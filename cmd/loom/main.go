// Command loom assembles speech datasets from raw audio: it denoises,
// splits, transcribes, diarizes, segments, validates, and archives a
// project's files in one synchronous pipeline run per §6 of the CLI
// surface. There is no daemon; every subcommand loads configuration,
// does its work, and exits.
package main

import (
	"errors"
	"fmt"
	"os"

	"loom/internal/apperrors"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCommand()
	err := cmd.Execute()
	if err == nil {
		return exitSuccess
	}
	if errors.Is(err, errAnyFileFailed) {
		return exitFileFailed
	}
	if errors.Is(err, errInvalidArgs) {
		return exitInvalidArgs
	}
	switch apperrors.Detail(err).Kind {
	case apperrors.KindConfig:
		fmt.Fprintln(os.Stderr, err)
		return exitEnvironment
	default:
		fmt.Fprintln(os.Stderr, err)
		return exitFileFailed
	}
}

// Exit codes per spec.md §6.
const (
	exitSuccess     = 0
	exitFileFailed  = 1
	exitInvalidArgs = 2
	exitEnvironment = 3
)

var (
	errAnyFileFailed = errors.New("one or more files failed")
	errInvalidArgs   = errors.New("invalid arguments")
)
