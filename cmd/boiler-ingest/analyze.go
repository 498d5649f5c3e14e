// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/boiler-ingest/internal/config"
	"github.com/pdiddy/boiler-ingest/internal/fields"
	"github.com/pdiddy/boiler-ingest/internal/recognize"
)

const defaultPreview = 3

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Recognize documents with the custom OCR model",
	Long: `Analyze sends every supported document under the input directory to the
Azure Document Intelligence model, one call at a time, and writes one
<name>_analysis.json artifact per document to the output directory. Documents
analyzed successfully are moved to the processed directory. A document that
fails gets a failed artifact and stays in place for the next run.

With --url, the listed documents are fetched by the service instead.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("input-dir", "", "directory of documents to analyze (default data/input)")
	analyzeCmd.Flags().String("output-dir", "", "directory receiving artifacts (default data/output)")
	analyzeCmd.Flags().String("processed-dir", "", "directory receiving analyzed documents (default data/processed)")
	analyzeCmd.Flags().String("model", "", "model identifier (default pokus1)")
	analyzeCmd.Flags().Duration("interval", 0, "minimum delay between analysis calls (default 2s)")
	analyzeCmd.Flags().StringSlice("url", nil, "analyze documents at these URLs instead of the input directory")
	analyzeCmd.Flags().Int("preview", defaultPreview, "print key fields of the first N successful documents")
	bindFlag(analyzeCmd, "input-dir", "ocr.input_dir")
	bindFlag(analyzeCmd, "output-dir", "ocr.output_dir")
	bindFlag(analyzeCmd, "processed-dir", "ocr.processed_dir")
	bindFlag(analyzeCmd, "model", "ocr.model_id")
	bindFlag(analyzeCmd, "interval", "ocr.call_interval")

	rootCmd.AddCommand(analyzeCmd)
}

func newProcessor() (*recognize.Processor, error) {
	cfg := app.cfg.OCR
	if err := config.ValidateOCR(cfg); err != nil {
		return nil, err
	}
	schema, err := fields.LoadSchema(app.cfg.Sync.SchemaPath)
	if err != nil {
		return nil, err
	}
	return &recognize.Processor{
		Analyzer:     recognize.NewAzureClient(cfg, nil, app.log),
		Schema:       schema,
		ModelID:      cfg.ModelID,
		OutputDir:    cfg.OutputDir,
		ProcessedDir: cfg.ProcessedDir,
		Limiter:      recognize.NewLimiter(cfg.CallInterval),
		Log:          app.log,
	}, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	p, err := newProcessor()
	if err != nil {
		return err
	}
	urls, _ := cmd.Flags().GetStringSlice("url")
	preview, _ := cmd.Flags().GetInt("preview")

	result, err := analyze(cmd.Context(), p, urls, os.Stdout)
	if err != nil {
		return err
	}
	printPreview(os.Stdout, result, preview)
	if result.HasFailures() {
		return fmt.Errorf("%d document(s) failed analysis", result.Failed)
	}
	return nil
}

// analyze runs the processor over urls, or over the input directory when
// urls is empty.
func analyze(ctx context.Context, p *recognize.Processor, urls []string, w io.Writer) (recognize.BatchResult, error) {
	if len(urls) == 0 {
		return p.ProcessDirectory(ctx, app.cfg.OCR.InputDir, w)
	}
	var result recognize.BatchResult
	for _, u := range urls {
		out, err := p.ProcessURL(ctx, u, w)
		if err != nil {
			return result, err
		}
		result.Outcomes = append(result.Outcomes, out)
		if out.Err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	fmt.Fprintf(w, "\nAnalysis summary: %d succeeded, %d failed (total: %d, success: %.1f%%)\n",
		result.Succeeded, result.Failed, result.Total(), result.SuccessRatio()*100)
	return result, nil
}

// printPreview shows the canonical fields of the first n successful
// documents.
func printPreview(w io.Writer, result recognize.BatchResult, n int) {
	shown := 0
	for _, o := range result.Outcomes {
		if shown >= n {
			return
		}
		if o.Err != nil || o.Artifact == nil || o.Artifact.KeyFields == nil {
			continue
		}
		if shown == 0 {
			fmt.Fprintln(w, "\nKey fields:")
		}
		shown++
		fmt.Fprintf(w, "\n%s\n", o.Source)
		o.Artifact.KeyFields.Fields.Range(func(key, value string) bool {
			if value != "" {
				fmt.Fprintf(w, "  %-18s %s\n", key+":", value)
			}
			return true
		})
	}
}
