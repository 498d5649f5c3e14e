// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/boiler-ingest/internal/destination"
)

var sheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "Manage the destination spreadsheet",
}

var sheetsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new Google spreadsheet for OCR results",
	Long: `Create makes a spreadsheet owned by the service account and prints its
identifier. Share it with the people who review the results and set
destination.spreadsheet_id (or .secrets/google-sheets-id) to use it.`,
	RunE: runSheetsCreate,
}

var sheetsUploadCmd = &cobra.Command{
	Use:   "upload-csv [file]",
	Short: "Write a CSV file to the destination, bypassing the ledger",
	Long: `Upload-csv writes every row of a CSV file to the destination target, first
row included. The ledger is neither consulted nor updated.`,
	Args: cobra.ExactArgs(1),
	RunE: runSheetsUpload,
}

func init() {
	sheetsCreateCmd.Flags().String("title", "OCR Výsledky", "spreadsheet title")
	sheetsCreateCmd.Flags().String("sheet", "OCR Data", "name of the first sheet")

	sheetsUploadCmd.Flags().String("target", "", "destination cell or range (default A1)")
	sheetsUploadCmd.Flags().String("mode", "", "write mode: overwrite or append")
	sheetsUploadCmd.Flags().String("dest", "", "destination backend: sheets or xlsx")
	sheetsUploadCmd.Flags().String("xlsx", "", "workbook path for the xlsx backend")
	bindFlag(sheetsUploadCmd, "target", "destination.target")
	bindFlag(sheetsUploadCmd, "mode", "destination.mode")
	bindFlag(sheetsUploadCmd, "dest", "destination.kind")
	bindFlag(sheetsUploadCmd, "xlsx", "destination.xlsx_path")

	sheetsCmd.AddCommand(sheetsCreateCmd, sheetsUploadCmd)
	rootCmd.AddCommand(sheetsCmd)
}

func runSheetsCreate(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	sheet, _ := cmd.Flags().GetString("sheet")

	c, err := newSheetsClient(cmd.Context(), app.cfg.Destination)
	if err != nil {
		return err
	}
	sp, err := c.Create(cmd.Context(), title, sheet)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "created: %s\nid:      %s\nurl:     %s\n", sp.Title, sp.ID, sp.URL)
	return nil
}

func runSheetsUpload(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	if len(rows) == 0 {
		fmt.Fprintf(os.Stdout, "%s is empty, nothing written\n", args[0])
		return nil
	}

	cfg := app.cfg.Destination
	dest, err := openDestination(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	res, err := destination.Write(cmd.Context(), dest, cfg.Mode, cfg.Target, nil, rows)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "uploaded: %d row(s), %d cell(s) (%s)\n", len(rows), res.UpdatedCells, res.Mode)
	return nil
}
