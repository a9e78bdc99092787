// The main package for the trawler executable.
package main

import (
	"github.com/simmonsip/trawler/cmd"
)

func main() {
	cmd.Execute()
}
