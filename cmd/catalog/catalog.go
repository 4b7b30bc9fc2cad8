package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	repo "github.com/tphakala/plantid/internal/catalog"
	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/datastore"
	"github.com/tphakala/plantid/internal/logger"
)

// Command creates the catalog command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the local species catalog",
	}

	cmd.AddCommand(importCommand(settings), searchCommand(settings))
	return cmd
}

func importCommand(settings *conf.Settings) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import [seed file]",
		Short: "Import species from a YAML or JSON seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("error reading seed file: %w", err)
			}
			if format == "" {
				format = repo.FormatFromPath(path)
			}
			entries, err := repo.ParseSeed(data, format)
			if err != nil {
				return err
			}

			return withRepository(settings, func(r *repo.Repository) error {
				report, err := r.Import(cmd.Context(), entries)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %d species, skipped %d\n", report.Imported, report.Skipped)
				for _, p := range report.Problems {
					fmt.Fprintf(out, "  %s\n", p)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Seed format (yaml or json), detected from the extension when empty")
	return cmd
}

func searchCommand(settings *conf.Settings) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search species by common or scientific name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return withRepository(settings, func(r *repo.Repository) error {
				results, total, err := r.Search(cmd.Context(), query, limit, offset)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"species": results, "total": total})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", repo.DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")
	return cmd
}

func withRepository(settings *conf.Settings, fn func(*repo.Repository) error) error {
	log := logger.Global().Module("catalog-cli")

	store, err := datastore.Open(settings, log.Module("datastore"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("Error closing database", logger.Error(err))
		}
	}()

	r, err := repo.NewRepository(store.DB, log.Module("catalog"))
	if err != nil {
		return err
	}
	return fn(r)
}
