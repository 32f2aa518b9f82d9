// Command ret is the retention CLI: an offline-first 1-4-7 spaced
// repetition tracker that keeps a local SQLite cache and syncs with a
// remote service when one is reachable.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
