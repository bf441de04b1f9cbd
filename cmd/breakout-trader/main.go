// Command breakout-trader runs the intraday ATM option breakout strategy.
package main

import (
	"fmt"
	"os"

	"breakout-trader/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
