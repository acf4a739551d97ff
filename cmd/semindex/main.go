// Command semindex is the thin CLI front-end over the core indexing and
// query packages.
package main

import (
	"fmt"
	"os"

	"github.com/aman-cerp/semindex/cmd/semindex/cmd"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(cmd.ExitCode(err))
}
