package main

import (
	"fmt"
	"os"

	"sitedeploy/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sitedeploy: %v\n", err)
		os.Exit(1)
	}
}
