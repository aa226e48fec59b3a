package main

import (
	"os"

	"github.com/opendata-tools/freshness/cmd"
)

// This is the launcher for the dataset freshness check.
func main() {
	os.Exit(cmd.Execute())
}
