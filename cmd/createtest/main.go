package main

import (
	"os"

	"github.com/bartgol/createtest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
