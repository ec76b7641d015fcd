package main

import (
	"os"

	"github.com/nvr-ai/edgebench/commands"
)

func main() {
	os.Exit(commands.Execute())
}
