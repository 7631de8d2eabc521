// The main package for the algo-control-plane executable.
package main

import (
	"github.com/mipworks/algo-control-plane/cmd"
)

func main() {
	cmd.Execute()
}
