package main

import (
	"os"

	"github.com/folioforge/concierge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
