package main

import (
	"os"

	"github.com/axstore/axstore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
