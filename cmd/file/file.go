package file

import (
	"github.com/spf13/cobra"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/service"
)

// Command creates the file command for deriving a single audio file's
// waveform artifact.
func Command(settings *conf.Settings) *cobra.Command {
	var audioID string

	cmd := &cobra.Command{
		Use:   "file [input audio]",
		Short: "Derive the waveform artifact for one audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service.Build(settings)
			if err != nil {
				return err
			}
			return svc.ProcessFile(cmd.Context(), audioID, args[0])
		},
	}

	cmd.Flags().StringVar(&audioID, "id", "", "Audio source identifier (defaults to the file name)")
	return cmd
}
