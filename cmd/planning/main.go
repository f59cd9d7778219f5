// Package main provides the entry point for the planning CLI.
package main

import (
	"github.com/colthorp/planning-cli-go/internal/cli"
)

func main() {
	cli.Execute()
}
