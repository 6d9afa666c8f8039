// Command fetchedge runs a JavaScript fetch-event worker pool behind an
// HTTP front-end, or executes a worker script once for local testing.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "fetchedge",
		Short: "JavaScript worker pool and request dispatch subsystem",
	}

	root.AddCommand(serveCmd())
	root.AddCommand(execCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stdout, err)
		os.Exit(1)
	}
}
