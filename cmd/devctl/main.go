package main

import (
	"os"

	"github.com/arturoeanton/go-deviation-rag/cmd/devctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
