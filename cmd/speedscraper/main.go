package main

import (
	"os"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout, os.Stderr).rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
