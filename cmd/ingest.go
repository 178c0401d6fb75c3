package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"ticketsales/config"
	"ticketsales/internal/catalog"
	"ticketsales/internal/store"

	"github.com/spf13/cobra"
)

func newIngestCommand(cfg *config.Config, st *store.Store, logger *slog.Logger) *cobra.Command {
	var count int

	command := &cobra.Command{
		Use:          "ingest",
		Short:        "Imports events, venues and seat categories from Ticketmaster",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.TicketmasterAPIKey == "" {
				return errors.New("TICKETMASTER_API_KEY is not set")
			}
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}

			client := catalog.NewClient(cfg.TicketmasterBaseURL, cfg.TicketmasterAPIKey, logger)
			importer := catalog.NewImporter(st, client, cfg.IngestSeatsPerCategory, logger)

			stats, err := importer.Import(cmd.Context(), count)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"imported %d events, %d venues, %d categories, %d images (%d skipped)\n",
				stats.Events, stats.Venues, stats.Categories, stats.Images, stats.Skipped)
			return nil
		},
	}

	command.Flags().IntVar(&count, "count", 100, "number of events to import")

	return command
}
