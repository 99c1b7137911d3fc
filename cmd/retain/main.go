package main

import "github.com/conorfennell/retain/internal/cli"

// version is set via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.Execute(version)
}
