// Command ledgerflow runs the ledgerflow workflow engine.
//
// Configuration is read from LEDGERFLOW_* environment variables; see
// [Config]. Commands:
//
//	ledgerflow migrate   apply store migrations and exit
//	ledgerflow serve     run the engine until SIGINT or SIGTERM
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerflow:", err)
		os.Exit(1)
	}
}
