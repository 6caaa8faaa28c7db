package main

import (
	"os"

	"github.com/wonny/gapscan/cmd/gapscan/commands"
)

// main is the entry point for the gapscan CLI
// ⭐ Single CLI entry point: go run ./cmd/gapscan [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
