package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundvault/wavegen/cmd/file"
	"github.com/soundvault/wavegen/cmd/serve"
	"github.com/soundvault/wavegen/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wavegen",
		Short: "Waveform artifact derivation service",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		file.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return settings.Validate()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Main.LogLevel, "loglevel", viper.GetString("main.loglevel"), "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&settings.Queue.Backend, "queue", viper.GetString("queue.backend"), "Task queue backend: local or redis")
	rootCmd.PersistentFlags().IntVar(&settings.Queue.Workers, "workers", viper.GetInt("queue.workers"), "Worker pool size for the local queue backend")
	rootCmd.PersistentFlags().StringVar(&settings.Storage.Backend, "storage", viper.GetString("storage.backend"), "Object storage backend: local or sftp")
	rootCmd.PersistentFlags().IntVar(&settings.Waveform.Width, "width", viper.GetInt("waveform.width"), "Waveform width in pixels")
	rootCmd.PersistentFlags().IntVar(&settings.Waveform.Height, "height", viper.GetInt("waveform.height"), "Waveform height in pixels")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
