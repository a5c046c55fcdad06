package serve

import (
	"github.com/spf13/cobra"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/service"
)

// Command creates the serve command, running the derivation worker until
// interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the waveform derivation worker",
		Long:  `Start the task queue backend and process waveform derivation tasks until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service.Build(settings)
			if err != nil {
				return err
			}
			return svc.RunServe(cmd.Context())
		},
	}
}
