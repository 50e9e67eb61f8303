package main

import (
	"os"

	"github.com/tradeproof/engine/cmd/tradecore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
