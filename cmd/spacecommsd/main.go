// Command spacecommsd runs one node of a SpaceComms mesh.
package main

import (
	"fmt"
	"os"

	"github.com/tamtunnel/spacecomms/cmd/spacecommsd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
