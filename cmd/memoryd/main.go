package main

import (
	"fmt"
	"os"

	"github.com/lewisedginton/memory_engine/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
