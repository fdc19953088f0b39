package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errCheckpointFailed is returned when at least one database could not be
// checkpointed.
var errCheckpointFailed = errors.New("checkpoint failed")

// newCheckpointCmd creates the "graystore checkpoint" subcommand.
func newCheckpointCmd(load loadFunc) *cobra.Command {
	var paths []string

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Checkpoint the write-ahead logs of the configured databases once",
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

			failed := 0
			out := cmd.OutOrStdout()
			for _, db := range dbs {
				if db.IsReadonly() {
					fmt.Fprintf(out, "%s skipped (read-only)\n", db.Path())
					continue
				}
				if err := db.Checkpoint(cmd.Context()); err != nil {
					failed++
					fmt.Fprintf(out, "%s error: %v\n", db.Path(), err)
					continue
				}
				fmt.Fprintf(out, "%s ok\n", db.Path())
			}
			if failed > 0 {
				return fmt.Errorf("%w for %d of %d databases", errCheckpointFailed, failed, len(dbs))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&paths, "path", "p", nil, "checkpoint only these configured databases")
	return cmd
}
