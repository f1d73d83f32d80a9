// Command govaictl administers plans, organizations and usage ledgers
// against the console database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openDatabaseEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
