package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newInspectCmd creates the "graystore inspect" subcommand.
func newInspectCmd(load loadFunc) *cobra.Command {
	var paths []string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the configuration chain and WAL state of each database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			dbs, err := a.openAll(cmd.Context(), cfg, nil, paths...)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tMODE\tJOURNAL\tWAL PAGES\tCONFIGS")
			for _, db := range dbs {
				var journal string
				if err := db.QueryRowContext(cmd.Context(), "PRAGMA journal_mode").Scan(&journal); err != nil {
					return fmt.Errorf("reading journal mode of %s: %w", db.Path(), err)
				}
				pages, err := db.WALPages(cmd.Context())
				if err != nil {
					return fmt.Errorf("reading WAL size of %s: %w", db.Path(), err)
				}
				mode := "rw"
				if db.IsReadonly() {
					mode = "ro"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					db.Path(), mode, journal, pages, strings.Join(db.Chain().Names(), ","))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringSliceVarP(&paths, "path", "p", nil, "inspect only these configured databases")
	return cmd
}
