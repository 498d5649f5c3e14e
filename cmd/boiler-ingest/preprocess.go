// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/boiler-ingest/internal/preprocess"
	"github.com/pdiddy/boiler-ingest/pkg/types"
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Move raw scans into the input directory, compressing oversize files",
	Long: `Preprocess walks the raw directory and moves every supported document
(pdf, jpg, jpeg, png, tiff, tif, bmp) into the input directory. Images above
the OCR upload limit are re-encoded as <name>_compressed.jpg at decreasing JPEG
quality until they fit; files that cannot be shrunk are moved unchanged.`,
	RunE: runPreprocess,
}

func init() {
	preprocessCmd.Flags().String("raw-dir", "", "directory of scans as delivered (default data/rawdata)")
	preprocessCmd.Flags().String("input-dir", "", "directory receiving prepared files (default data/input)")
	preprocessCmd.Flags().Int("max-size-mb", 0, "upload limit in MB (default 4)")
	bindFlag(preprocessCmd, "raw-dir", "preprocess.raw_dir")
	bindFlag(preprocessCmd, "input-dir", "preprocess.input_dir")
	bindFlag(preprocessCmd, "max-size-mb", "preprocess.max_file_size_mb")

	rootCmd.AddCommand(preprocessCmd)
}

func newPreprocessor(cfg types.PreprocessConfig) *preprocess.Preprocessor {
	return &preprocess.Preprocessor{
		Compressor: preprocess.JPEGCompressor{MaxDimension: cfg.MaxDimension},
		MaxBytes:   cfg.MaxFileSizeBytes(),
		Quality:    cfg.Quality,
		Log:        app.log,
	}
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	cfg := app.cfg.Preprocess
	st, err := newPreprocessor(cfg).ProcessDirectory(cfg.RawDir, cfg.InputDir, os.Stdout)
	if err != nil {
		return err
	}
	if st.Failed > 0 {
		return fmt.Errorf("%d file(s) failed preprocessing", st.Failed)
	}
	return nil
}
