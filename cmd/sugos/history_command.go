package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "Show recent export runs, or the items of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			if len(args) == 1 {
				run, err := svc.HistoryRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if wantJSON(cmd, asJSON) {
					return writeJSON(cmd, run)
				}
				rows := make([][]string, 0, len(run.Items))
				for _, it := range run.Items {
					rows = append(rows, []string{strconv.Itoa(it.Sequence), it.Owner, it.Name, strconv.FormatBool(it.Success), it.Path, it.Message})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Seq", "Identifier", "Name", "Success", "Entry", "Message"}, rows, 1))
				return nil
			}

			runs, err := svc.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if wantJSON(cmd, asJSON) {
				return writeJSON(cmd, runs)
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.RunID,
					r.Tenant,
					string(r.Status),
					strconv.Itoa(r.Processed) + "/" + strconv.Itoa(r.Total),
					humanize.Time(r.StartedAt),
					r.ArchiveName,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Run", "Tenant", "Status", "Processed", "Started", "Archive"}, rows, 4))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
