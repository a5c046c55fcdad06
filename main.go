package main

import (
	"fmt"
	"os"

	"github.com/soundvault/wavegen/cmd"
	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.ParseLevel(settings.Main.LogLevel))

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
