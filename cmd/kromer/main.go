package main

import (
	"os"

	"github.com/kromer-network/kromer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
