// The main package for the sitepulse executable.
package main

import (
	"github.com/sitepulse/sitepulse/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
