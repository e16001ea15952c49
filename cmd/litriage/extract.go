// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/litriage/internal/agents"
	"github.com/pdiddy/litriage/internal/extraction"
	"github.com/pdiddy/litriage/internal/storage"
	"github.com/pdiddy/litriage/internal/triage"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run extraction agents over the curated collection",
	Long: `Extract reads the curated collection produced by the triage command,
submits each document to the configured extraction agents on a bounded worker
pool, and stores the assembled per-document reports in the report database.

Agent failures are isolated per task: one agent timing out never aborts the
document's other agents, and the report records what succeeded, what failed,
and which required agents are missing.`,
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		cfg.Extraction.Workers = n
	}

	inPath, _ := cmd.Flags().GetString("input")
	if inPath == "" {
		inPath = filepath.Join(cfg.Storage.Dir, "triage.yaml")
	}
	triageOut, err := readTriageOutput(inPath)
	if err != nil {
		return err
	}
	if len(triageOut.Documents) == 0 {
		return fmt.Errorf("no curated documents in %s: run triage first", inPath)
	}

	registry, err := agents.NewRegistry(
		agents.Entry{Agent: agents.DemographicsAgent{}, Schema: agents.DemographicsSchema()},
		agents.Entry{Agent: agents.GeneticsAgent{}, Schema: agents.GeneticsSchema()},
	)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	orch, err := extraction.New(registry, cfg.Extraction, logger)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	for _, doc := range triageOut.Documents {
		orch.Submit(triageOut.RunID, doc)
	}

	var (
		mu                   sync.Mutex
		complete, incomplete int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, doc := range triageOut.Documents {
		doc := doc
		g.Go(func() error {
			docID := doc.Record.ID()
			report, err := orch.AwaitReport(gctx, docID)
			if err != nil {
				return fmt.Errorf("awaiting report for %s: %w", docID, err)
			}
			if err := store.SaveReport(gctx, report, doc); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			status := "complete"
			if report.Complete {
				complete++
			} else {
				incomplete++
				status = fmt.Sprintf("missing %v", report.Missing)
			}
			fmt.Printf("%-22s  quality %.2f  %s\n", docID, report.Quality, status)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("\nextracted %d documents: %d complete, %d incomplete\n",
		len(triageOut.Documents), complete, incomplete)
	return nil
}

func readTriageOutput(path string) (triage.Output, error) {
	var out triage.Output
	data, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("reading curated collection: %w", err)
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parsing %s: %w", path, err)
	}
	return out, nil
}

func init() {
	extractCmd.Flags().String("input", "", "curated collection file (default: <storage-dir>/triage.yaml)")
	extractCmd.Flags().Int("workers", 0, "worker pool size (0 = number of CPUs)")
	extractCmd.Flags().Bool("verbose", false, "log per-task progress")

	rootCmd.AddCommand(extractCmd)
}
