package main

import (
	"os"

	"github.com/sealbridge/sealrepos/internal/errdefs"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(errdefs.ExitFailure)
	}
}
