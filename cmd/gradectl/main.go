// Package main is the entry point for gradectl, the operator CLI.
package main

import (
	"os"

	"gradeplane/cmd/gradectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
