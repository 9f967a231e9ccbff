// Command branchd is the schema branch control plane daemon and its CLI.
package main

import (
	"os"

	"github.com/kilupskalvis/branchd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
