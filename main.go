// The main package for the toolshelf executable.
package main

import (
	"github.com/JakeFAU/toolshelf/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
