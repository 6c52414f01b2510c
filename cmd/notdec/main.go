// Command notdec recovers C types for the functions of a program by
// building and solving subtype constraint graphs.
package main

import (
	"os"

	"github.com/NotDec/NotDec-sub000/internal/cli"
)

func main() {
	// Commands report their own errors through the output formatter.
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
