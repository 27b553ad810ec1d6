package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/sugos/sugos"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		flags  requestFlags
		outDir string
		asJSON bool
		quiet  bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download and archive every attachment and link of the identifiers",
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

			res, err := svc.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := &sugos.ExportSummary{RunResult: res}
			if res.HasArchive() {
				dir := outDir
				if dir == "" {
					dir = svc.Config().OutputDir
				}
				if out.Path, err = sugos.WriteArchive(cmd.Context(), res, dir); err != nil {
					return err
				}
			}

			if wantJSON(cmd, asJSON) {
				return writeJSON(cmd, out)
			}
			printExport(cmd, out, !quiet)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default: output_dir from the configuration)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run report as JSON")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Omit the per-item table")
	return cmd
}

func printExport(cmd *cobra.Command, out *sugos.ExportSummary, items bool) {
	w := cmd.OutOrStdout()
	if items && len(out.Items) > 0 {
		rows := make([][]string, 0, len(out.Items))
		for _, it := range out.Items {
			result := "ok"
			switch {
			case !it.Success:
				result = "failed"
			case it.Fallback:
				result = "fallback"
			}
			size := ""
			if it.Size > 0 {
				size = humanize.Bytes(uint64(it.Size))
			}
			rows = append(rows, []string{it.Owner, string(it.Kind), it.Name, result, it.Path, size})
		}
		fmt.Fprintln(w, renderTable([]string{"Identifier", "Kind", "Name", "Result", "Entry", "Size"}, rows, 6))
	}

	fmt.Fprintf(w, "run %s: %s, %d/%d processed, %d errors, %d links\n",
		out.RunID, out.Status, out.Processed, out.Total, out.Errors, out.Links.Count())
	if out.Path != "" {
		fmt.Fprintf(w, "archive: %s (%s)\n", out.Path, humanize.Bytes(uint64(out.ArchiveSize)))
	}
	if out.Links.Count() > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderLinks(out.Links, false))
	}
}
