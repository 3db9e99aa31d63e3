package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birddigital/hotline-ivr/pkg/phone"
)

func newNormalizeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "normalize <number>",
		Short: "Show how a dialed number is normalized",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			n := phone.NewNormalizer(cfg.CallerID, cfg.CallerIDUS).Normalize(args[0])
			if asJSON {
				return writeJSON(cmd, map[string]any{
					"input":     args[0],
					"e164":      n.E164,
					"caller_id": n.CallerID,
					"valid":     n.Valid,
				})
			}

			status := "valid"
			if !n.Valid {
				status = "invalid"
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Input", "E.164", "Caller ID", "Status"},
				[][]string{{args[0], n.E164, n.CallerID, status}},
				nil,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
