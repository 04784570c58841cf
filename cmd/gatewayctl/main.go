package main

import (
	"os"

	"github/martinmaurice/llmgate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
