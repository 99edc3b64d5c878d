// Package main is the entry point for the duckq CLI binary.
package main

import (
	"os"

	cli "duck-query/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
