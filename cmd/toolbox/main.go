package main

import (
	"github.com/menta2k/toolbox"
	"github.com/menta2k/toolbox/internal/cli"
)

// set with -ldflags "-X main.version=..."
var version = toolbox.Version

func main() {
	cli.Execute(version)
}
