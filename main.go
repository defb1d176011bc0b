package main

import (
	"os"

	"github.com/sentra-io/sentra/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
