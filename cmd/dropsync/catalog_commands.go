package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dropsync/internal/catalog"
	"dropsync/internal/config"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the catalog backend",
	}
	catalogCmd.AddCommand(newCatalogGetCommand(ctx))
	catalogCmd.AddCommand(newCatalogColumnsCommand(ctx))
	return catalogCmd
}

func newCatalogGetCommand(ctx *commandContext) *cobra.Command {
	var schema, tableName string
	var filterFlags []string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print rows of a catalog table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				schemaName := schema
				if schemaName == "" {
					schemaName = cfg.Catalog.Schema
				}
				if tableName == "" {
					tableName = cfg.Catalog.Table
				}
				if tableName == "" {
					return fmt.Errorf("no table given; use --table or set catalog.table in the config")
				}
				filters, err := parseFilters(filterFlags)
				if err != nil {
					return err
				}

				rows, err := store.Query(cmd.Context(), schemaName, tableName, filters)
				if err != nil {
					return err
				}
				columns, err := store.GetSchema(cmd.Context(), schemaName, tableName)
				if err != nil {
					return err
				}

				headers := make([]string, len(columns))
				for i, col := range columns {
					headers[i] = col.Caption
				}
				tableRows := make([][]string, 0, len(rows))
				for _, row := range rows {
					cells := make([]string, len(columns))
					for i, col := range columns {
						cells[i] = row[col.Name]
					}
					tableRows = append(tableRows, cells)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(headers, tableRows, nil))
				fmt.Fprintf(out, "%d row(s) in %s.%s\n", len(rows), schemaName, tableName)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&schema, "schema", "", "Catalog schema (defaults to the configured one)")
	cmd.Flags().StringVar(&tableName, "table", "", "Catalog table")
	cmd.Flags().StringArrayVar(&filterFlags, "filter", nil, "Row filter as field=value (exact) or field~value (contains)")
	return cmd
}

func newCatalogColumnsCommand(ctx *commandContext) *cobra.Command {
	var schema, tableName string

	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Print the columns of a catalog table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				schemaName := schema
				if schemaName == "" {
					schemaName = cfg.Catalog.Schema
				}
				if tableName == "" {
					tableName = cfg.Catalog.Table
				}
				columns, err := store.GetSchema(cmd.Context(), schemaName, tableName)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(columns))
				for _, col := range columns {
					rows = append(rows, []string{col.Name, col.Caption})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Column", "Caption"}, rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&schema, "schema", "", "Catalog schema (defaults to the configured one)")
	cmd.Flags().StringVar(&tableName, "table", "", "Catalog table")
	return cmd
}

func parseFilters(raw []string) ([]catalog.Filter, error) {
	filters := make([]catalog.Filter, 0, len(raw))
	for _, item := range raw {
		if field, value, ok := strings.Cut(item, "~"); ok && !strings.Contains(field, "=") {
			filters = append(filters, catalog.Filter{Field: field, Value: value, Op: catalog.OpContains})
			continue
		}
		field, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("invalid filter %q; expected field=value or field~value", item)
		}
		filters = append(filters, catalog.Filter{Field: field, Value: value, Op: catalog.OpEqual})
	}
	return filters, nil
}
