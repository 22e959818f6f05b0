// Command issueboard runs the issue board API server. The seed subcommand
// populates the store with demo data.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
