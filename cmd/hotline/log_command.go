package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/birddigital/hotline-ivr/pkg/messaging"
	"github.com/birddigital/hotline-ivr/pkg/store"
)

type logReader interface {
	Recent(ctx context.Context, limit int) ([]messaging.LogRecord, error)
}

func newLogCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print recent communication log records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required to read the communication log")
			}

			pg, err := store.OpenPostgres(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pg.Close()

			return printLog(cmd, pg, limit, asJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func printLog(cmd *cobra.Command, reader logReader, limit int, asJSON bool) error {
	records, err := reader.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if asJSON {
		if records == nil {
			records = []messaging.LogRecord{}
		}
		return writeJSON(cmd, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No communication log records")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.Timestamp.Format(time.DateTime),
			string(rec.Type),
			rec.Direction,
			rec.From,
			rec.To,
			strings.Join(strings.Fields(rec.Content), " "),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Time", "Type", "Direction", "From", "To", "Content"},
		rows,
		map[int]int{5: 60},
	))
	return nil
}
