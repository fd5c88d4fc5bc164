// Command luaubuild compiles the Luau native libraries and prints the link
// directives for the invoking build coordinator.
package main

import "github.com/goplus/luaubuild/cmd/luaubuild/internal"

func main() {
	internal.Execute()
}
