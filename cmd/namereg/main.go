// Command namereg operates a local name registry.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/agenthands/namereg/internal/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	err := cli.NewRootCommand(version).ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}
