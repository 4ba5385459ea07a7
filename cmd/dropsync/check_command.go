package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"dropsync/internal/catalog"
	"dropsync/internal/config"
	"dropsync/internal/engine"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify repository files against their checksum sidecars",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				logger, err := ctx.logger()
				if err != nil {
					return err
				}
				statuses, err := engine.New(cfg, store, logger).Check(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				var checked, failed, unchecked int
				rows := make([][]string, 0, len(statuses))
				for _, status := range statuses {
					display := status.Path
					if rel, relErr := filepath.Rel(cfg.Paths.RepositoryDir, status.Path); relErr == nil {
						display = rel
					}
					switch {
					case !status.Checked:
						unchecked++
						rows = append(rows, []string{display, "-", "no sidecar"})
					case status.OK:
						checked++
						rows = append(rows, []string{display, status.Method, "ok"})
					default:
						checked++
						failed++
						rows = append(rows, []string{display, status.Method, "FAILED"})
					}
				}
				if len(rows) > 0 {
					fmt.Fprintln(out, renderTable([]string{"File", "Method", "Status"}, rows, nil))
				}
				fmt.Fprintf(out, "%d checked, %d failed, %d without sidecars\n", checked, failed, unchecked)
				if failed > 0 {
					return errors.New("integrity check failed")
				}
				return nil
			})
		},
	}
	return cmd
}
