package main

import (
	"os"

	"github.com/ekaya-inc/ekaya-assess/pkg/cli"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := cli.Execute(Version); err != nil {
		os.Exit(1)
	}
}
