// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litriage/internal/classify"
	"github.com/pdiddy/litriage/internal/dedup"
	"github.com/pdiddy/litriage/internal/score"
	"github.com/pdiddy/litriage/internal/source"
	"github.com/pdiddy/litriage/internal/triage"
)

var triageCmd = &cobra.Command{
	Use:   "triage [query terms]",
	Short: "Fetch, classify, score, and deduplicate candidate literature",
	Long: `Triage runs the full curation pipeline: it pages candidate records from
the selected bibliographic source, classifies each against the concept
vocabulary, computes concept-density scores, collapses duplicate records into
clusters, and writes the ranked curated collection to a YAML file the extract
command consumes.

A record is rejected only when it fails both the classification confidence
floor and the concept score floor.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTriage,
}

func runTriage(cmd *cobra.Command, args []string) error {
	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("vocabulary"); v != "" {
		cfg.Classify.VocabularyPath = v
	}
	if cfg.Classify.VocabularyPath == "" {
		cfg.Classify.VocabularyPath = "vocabulary.yaml"
	}
	if n, _ := cmd.Flags().GetInt("max-candidates"); n > 0 {
		cfg.Limits.MaxCandidates = n
	}
	if n, _ := cmd.Flags().GetInt("max-curated"); n > 0 {
		cfg.Limits.MaxCurated = n
	}

	vocab, err := classify.LoadVocabulary(cfg.Classify.VocabularyPath)
	if err != nil {
		return err
	}
	classifier, err := classify.New(vocab, cfg.Classify)
	if err != nil {
		return err
	}
	scorer, err := score.New(vocab, cfg.Score)
	if err != nil {
		return err
	}
	deduper := dedup.New(cfg.Dedup)

	backendName, _ := cmd.Flags().GetString("source")
	var backend source.Backend
	switch backendName {
	case "pubmed", "":
		backend = source.NewPubMed(cfg.Source)
	case "europepmc":
		backend = source.NewEuropePMC(cfg.Source)
	default:
		return fmt.Errorf("unknown source %q: use pubmed or europepmc", backendName)
	}

	query := source.Query{Terms: strings.Join(args, " ")}
	if query.DateFrom, err = dateFlag(cmd, "from"); err != nil {
		return err
	}
	if query.DateTo, err = dateFlag(cmd, "to"); err != nil {
		return err
	}

	orch := triage.New(backend, classifier, scorer, deduper, cfg.Source, os.Stdout)
	out, err := orch.Run(context.Background(), query, cfg.Limits)
	if err != nil {
		return err
	}

	outPath, _ := cmd.Flags().GetString("out")
	if outPath == "" {
		outPath = filepath.Join(cfg.Storage.Dir, "triage.yaml")
	}
	if err := writeTriageOutput(out, outPath); err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	printCurated(out)
	fmt.Printf("\nWrote %d curated documents to %s\n", len(out.Documents), outPath)
	return nil
}

func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --%s: %w", name, err)
	}
	return t, nil
}

func writeTriageOutput(out triage.Output, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshaling triage output: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func printCurated(out triage.Output) {
	if len(out.Documents) == 0 {
		fmt.Println("No documents curated.")
		return
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-22s  %-50s  %-7s  %-5s  %s\n",
		"Rank", "ID", "Title", "Score", "Conf", "Dupes")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	for i, doc := range out.Documents {
		title := doc.Record.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		id := doc.Record.ID()
		if len(id) > 22 {
			id = id[:19] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-22s  %-50s  %-7.2f  %-5.2f  %d\n",
			i+1, id, title, doc.Score.Total, doc.Classification.Confidence, doc.ClusterSize-1)
	}
}

func init() {
	triageCmd.Flags().String("source", "pubmed", "bibliographic source: pubmed or europepmc")
	triageCmd.Flags().String("from", "", "publication date range start (YYYY-MM-DD)")
	triageCmd.Flags().String("to", "", "publication date range end (YYYY-MM-DD)")
	triageCmd.Flags().String("vocabulary", "", "concept vocabulary YAML file")
	triageCmd.Flags().Int("max-candidates", 0, "maximum candidates fetched across pages")
	triageCmd.Flags().Int("max-curated", 0, "maximum curated documents emitted")
	triageCmd.Flags().String("out", "", "output file for the curated collection (default: <storage-dir>/triage.yaml)")
	triageCmd.Flags().Bool("json", false, "output the full triage result as JSON")

	rootCmd.AddCommand(triageCmd)
}
