package main

import (
	"os"

	"github.com/pocccco-max/nexusv2/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
