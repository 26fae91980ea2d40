// Package main provides the vigil voice agent server and its operations
// CLI.
//
// Usage:
//
//	vigil serve --config vigil.yaml
//	vigil calls list
package main

import (
	"fmt"
	"os"

	"github.com/vigil-voice/vigil/cmd/vigil/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
