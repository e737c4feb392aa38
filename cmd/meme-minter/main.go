package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/cli"
)

func main() {
	root := cli.NewRootCmd()

	// Signals cancel the command context; the pipeline journals in-flight runs.
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(cli.Version+" ("+cli.GitSHA+")"),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
