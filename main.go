// The main package for the coursesync executable.
package main

import (
	"github.com/JakeFAU/coursesync/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
