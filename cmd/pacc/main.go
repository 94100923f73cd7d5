// Package main is the entry point for the pacc CLI.
package main

import (
	"os"

	"github.com/pacc-dev/pacc/cmd/pacc/commands"
)

func main() {
	os.Exit(commands.Execute())
}
