package main

import (
	"os"

	"github.com/opd-ai/veilcall/cmd/veilcall/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
