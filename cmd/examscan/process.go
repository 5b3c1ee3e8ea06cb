package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/examscan/examscan/internal/config"
	"github.com/examscan/examscan/internal/ingest"
	"github.com/examscan/examscan/internal/pipeline"
	"github.com/examscan/examscan/internal/store"
)

var (
	processName    string
	processOutput  string
	processVerbose bool
)

var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Process exam scans into structured questions",
	Long: `Process one or more exam scan files (PDF, PNG, JPEG) through the
full pipeline and print the extracted questions as JSON.

Multi-part scans with numeric suffixes (exam-1.pdf, exam-2.pdf) are
assembled in order.

Examples:
  examscan process exam.pdf
  examscan process scan-1.png scan-2.png --name "physics midterm"
  examscan process exam.pdf -o results.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		level := slog.LevelWarn
		if processVerbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		svcs, err := buildServices(cm.Get(), logger)
		if err != nil {
			return err
		}

		res, err := svcs.ingestor.Ingest(ctx, ingest.Request{Paths: args, Name: processName})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "ingested %q: %d pages\n", res.Name, res.PageCount)

		pipe, err := pipeline.New(pipeline.Dependencies{
			Store:       svcs.store,
			OCR:         svcs.ensemble,
			Detector:    svcs.detector,
			Broker:      svcs.broker,
			Diagnostics: svcs.diagnostics,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		job := pipeline.NewJob(uuid.NewString(), res.DocumentID, res.Pages)
		job.DetectionPages = res.DetectionPages
		job.DetectionScale = res.DetectionScale
		if err := pipe.Process(ctx, job); err != nil {
			return err
		}

		return writeResults(svcs.store, res.DocumentID, processOutput)
	},
}

// processResult is the JSON document written after a successful run.
type processResult struct {
	DocumentID string                `json:"document_id"`
	Questions  any                   `json:"questions"`
	Statistics any                   `json:"statistics"`
	Regions    []store.RegionSummary `json:"regions"`
}

func writeResults(st store.Store, docID, outPath string) error {
	ctx := context.Background()
	qs, err := st.Questions(ctx, docID)
	if err != nil {
		return err
	}
	stats, err := st.Statistics(ctx, docID)
	if err != nil {
		return err
	}
	regions, err := st.Regions(ctx, docID)
	if err != nil {
		return err
	}

	out := processResult{
		DocumentID: docID,
		Questions:  qs,
		Statistics: stats,
		Regions:    store.Summarize(regions),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if outPath == "" || outPath == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

func init() {
	processCmd.Flags().StringVar(&processName, "name", "", "document name (default: derived from filename)")
	processCmd.Flags().StringVarP(&processOutput, "output", "o", "", "write results to file instead of stdout")
	processCmd.Flags().BoolVarP(&processVerbose, "verbose", "v", false, "enable debug logging")
}
