package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/maruel/modelprov/internal/fingerprint"
	"github.com/maruel/modelprov/internal/storage"
	"github.com/spf13/cobra"
)

func newListCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the catalog in registration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, _, err := g.open()
			if err != nil {
				return err
			}
			entries, err := reg.Catalog.Load()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newShowCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show FINGERPRINT",
		Short: "Show every registration of a fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fingerprint.Validate(args[0]); err != nil {
				return err
			}
			reg, _, err := g.open()
			if err != nil {
				return err
			}
			versions, err := reg.Catalog.Versions(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), versions)
			}
			return printEntries(cmd.OutOrStdout(), versions)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func printEntries(w io.Writer, entries []storage.CatalogEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINGERPRINT\tFILENAME\tAUTHOR\tCREATED\tDESCRIPTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Fingerprint, e.Filename, e.Author, e.CreatedAt.Local().Format(time.DateTime), e.Description)
	}
	return tw.Flush()
}
