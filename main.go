// Command scenetcn trains temporal models on scene instance recordings.
package main

import (
	"github.com/twoears/scenetcn/cmd"
)

func main() {
	cmd.Execute()
}
