package main

import (
	"fmt"
	"os"

	"retrycache/internal/app"
	"retrycache/internal/shared"
)

// exitConfig is the exit status for invalid configuration.
const exitConfig = 2

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		if shared.IsValidation(err) {
			os.Exit(exitConfig)
		}
		os.Exit(1)
	}
	if err := application.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
