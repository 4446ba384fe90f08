// Package main is the entry point for the tradechat relay and client.
package main

import (
	"fmt"
	"os"
)

// Version information (set at build time)
var version = "dev"

func main() {
	if err := Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
