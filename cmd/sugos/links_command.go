package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLinksCommand(ctx *commandContext) *cobra.Command {
	var (
		flags    requestFlags
		asJSON   bool
		markdown bool
	)
	cmd := &cobra.Command{
		Use:   "links",
		Short: "List the links of every order of the identifiers without downloading",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			svc, err := ctx.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			links, err := svc.CollectLinks(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON || (!markdown && wantJSON(cmd, false)) {
				return writeJSON(cmd, links)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderLinks(links, markdown))
			fmt.Fprintf(cmd.OutOrStdout(), "%d links\n", links.Count())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the link index as JSON")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Print the link index as markdown")
	return cmd
}
