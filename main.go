package main

import (
	"os"

	"github.com/tick-archive/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
