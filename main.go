// The main package for the htmlharvest executable.
package main

import (
	"github.com/JakeFAU/htmlharvest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
