// Package main is the entry point for the tsforecast application
package main

import (
	"github.com/ethpandaops/tsforecast/cmd"
)

func main() {
	cmd.Execute()
}
