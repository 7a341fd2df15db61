package main

import (
	"os"

	"github.com/hikaru/kioku/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
