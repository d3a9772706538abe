package main

import (
	"fmt"
	"os"

	"github.com/ESETdropout/kframe/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kframe: %v\n", err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
