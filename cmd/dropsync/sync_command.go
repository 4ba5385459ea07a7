package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"dropsync/internal/catalog"
	"dropsync/internal/config"
	"dropsync/internal/engine"
	"dropsync/internal/record"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var execute bool
	var dropDir string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Plan (and with --execute, perform) a sync of the drop folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				logger, err := ctx.logger()
				if err != nil {
					return err
				}
				eng := engine.New(cfg, store, logger)
				result, err := eng.Run(cmd.Context(), engine.Options{
					Execute: execute,
					DropDir: dropDir,
				})
				if err != nil {
					return err
				}
				renderRunResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&execute, "execute", false, "Perform the transfer and catalog write-back (default is a dry run)")
	cmd.Flags().StringVar(&dropDir, "drop-dir", "", "Override the configured drop folder")
	return cmd
}

func renderRunResult(out io.Writer, result *engine.Result) {
	mode := "dry run"
	if result.Executed {
		mode = "execute"
	}
	fmt.Fprintf(out, "Run %s (%s)\n", result.RunID, mode)

	for _, src := range result.Sources {
		if src.Err != nil {
			fmt.Fprintf(out, "Source %s: failed to load (%v)\n", src.Name, src.Err)
		} else {
			fmt.Fprintf(out, "Source %s: %d rows\n", src.Name, len(src.Rows))
		}
	}

	rows := make([][]string, 0, len(result.Batch.Records))
	for _, rec := range result.Batch.Records {
		rows = append(rows, []string{
			rec.RelPath,
			targetDisplay(result, rec),
			matchDisplay(rec),
			integrityDisplay(rec),
			presenceDisplay(rec),
			outcomeDisplay(result, rec),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]string{"File", "Target", "Match", "Integrity", "Catalog", "Outcome"},
			rows, nil,
		))
	}

	fmt.Fprintf(out, "%d file(s), %d skipped at discovery", len(result.Batch.Records), len(result.Batch.Skipped))
	if result.Changes != nil {
		fmt.Fprintf(out, ", %d catalog insert(s) planned", len(result.Changes.Inserts()))
	}
	if result.Executed {
		fmt.Fprintf(out, ", %d inserted", result.Inserted)
	}
	fmt.Fprintln(out)
}

func targetDisplay(result *engine.Result, rec *record.FileRecord) string {
	if result.RepoDir != "" {
		if rel, err := filepath.Rel(result.RepoDir, rec.Target); err == nil {
			return rel
		}
	}
	return rec.Target
}

func matchDisplay(rec *record.FileRecord) string {
	if rec.PrimaryMatch == nil {
		return "-"
	}
	return rec.PrimaryMatch.Source
}

func integrityDisplay(rec *record.FileRecord) string {
	switch {
	case rec.Integrity.Method == "":
		return "-"
	case rec.Integrity.OK == nil:
		return rec.Integrity.Method + " (baseline)"
	case *rec.Integrity.OK:
		return rec.Integrity.Method + " ok"
	default:
		return rec.Integrity.Method + " MISMATCH"
	}
}

func presenceDisplay(rec *record.FileRecord) string {
	switch {
	case rec.Presence.Unresolved:
		return "unresolved"
	case rec.Presence.ExistsInCatalog:
		return "exists"
	case rec.Presence.MatchField != "":
		return "new"
	default:
		return "-"
	}
}

func outcomeDisplay(result *engine.Result, rec *record.FileRecord) string {
	if rec.Outcome == nil {
		if reason := rec.SkipReason(result.Spec.MetadataRequired); reason != "" {
			return "would skip: " + reason
		}
		return "would copy"
	}
	o := rec.Outcome
	switch {
	case o.Reason != "":
		return "skipped: " + o.Reason
	case o.CopyAttempted && o.Verified:
		return "copied"
	case !o.CopyAttempted && o.Verified:
		return "already present"
	default:
		return "VERIFY FAILED"
	}
}
