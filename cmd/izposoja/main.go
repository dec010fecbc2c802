// Command izposoja runs the library circulation server and its desk tools.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd, opts := newRootCommand()
	err := cmd.Execute()
	opts.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
