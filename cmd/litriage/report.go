// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litriage/internal/storage"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect stored extraction reports (list, search, export)",
	Long: `Report queries the report database written by the extract command. Use
subcommands to list reports, search agent payloads with full-text search, or
export reports to YAML.`,
}

// --- list subcommand ---

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List extraction reports ranked by quality",
	RunE:  runReportList,
}

func runReportList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runID, _ := cmd.Flags().GetString("run")
	reports, err := store.ListReports(context.Background(), runID)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	if len(reports) == 0 {
		fmt.Println("No reports found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-22s  %-50s  %-7s  %-10s  %s\n",
		"Document", "Title", "Quality", "Complete", "Missing")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 105))
	for _, r := range reports {
		title := r.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-22s  %-50s  %-7.2f  %-10t  %s\n",
			r.DocumentID, title, r.Quality, r.Complete, strings.Join(r.Missing, ","))
	}
	fmt.Fprintf(os.Stdout, "\n%d reports\n", len(reports))
	return nil
}

// --- search subcommand ---

var reportSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over extracted agent payloads",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReportSearch,
}

func runReportSearch(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	hits, err := store.SearchPayloads(context.Background(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}

	if len(hits) == 0 {
		fmt.Println("No matches found.")
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(hits)
}

// --- export subcommand ---

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export reports to YAML",
	RunE:  runReportExport,
}

func runReportExport(cmd *cobra.Command, args []string) error {
	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, _ := cmd.Flags().GetString("run")
	if err := store.ExportYAML(context.Background(), runID); err != nil {
		return err
	}
	fmt.Printf("Exported to %s/export.yaml\n", cfg.Storage.Dir)
	return nil
}

// --- shared helpers ---

func openStore() (*storage.Store, error) {
	cfg, err := pipelineConfig()
	if err != nil {
		return nil, err
	}
	return storage.NewStore(cfg.Storage)
}

func init() {
	reportListCmd.Flags().String("run", "", "restrict to one triage run ID")
	reportListCmd.Flags().Bool("json", false, "output reports as JSON")

	reportSearchCmd.Flags().Int("limit", 20, "maximum number of matches")

	reportExportCmd.Flags().String("run", "", "restrict to one triage run ID")

	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportSearchCmd)
	reportCmd.AddCommand(reportExportCmd)

	rootCmd.AddCommand(reportCmd)
}
