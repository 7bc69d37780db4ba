// Command wxzimport imports WXZ export archives in resumable, time-boxed
// invocations.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/wxzimport/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
