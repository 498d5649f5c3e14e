// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package destination

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const defaultSheet = "Sheet1"

// XLSXWriter writes rows to a local workbook. The workbook and the sheet are
// created when missing. Targets use the sheet notation "Sheet!A1"; a bare
// cell refers to the first sheet and a bare sheet name starts at A1.
type XLSXWriter struct {
	path string
	log  *zap.Logger
}

// NewXLSXWriter returns a writer for the workbook at path.
func NewXLSXWriter(path string, log *zap.Logger) *XLSXWriter {
	if log == nil {
		log = zap.L()
	}
	return &XLSXWriter{path: path, log: log}
}

// Update writes rows starting at the target cell.
func (w *XLSXWriter) Update(ctx context.Context, target string, rows [][]string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := w.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sheet, col, row, err := resolveTarget(f, target)
	if err != nil {
		return 0, err
	}
	if err := writeRows(f, sheet, col, row, rows); err != nil {
		return 0, err
	}
	if err := w.save(f); err != nil {
		return 0, err
	}
	n := countCells(rows)
	w.log.Info("workbook updated", zap.String("path", w.path), zap.String("sheet", sheet), zap.Int("cells", n))
	return n, nil
}

// Append writes rows after the last used row of the target sheet.
func (w *XLSXWriter) Append(ctx context.Context, target string, rows [][]string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := w.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sheet, col, row, err := resolveTarget(f, target)
	if err != nil {
		return 0, err
	}
	existing, err := f.GetRows(sheet)
	if err != nil {
		return 0, eris.Wrapf(err, "xlsx: read sheet %s", sheet)
	}
	if next := len(existing) + 1; next > row {
		row = next
	}
	if err := writeRows(f, sheet, col, row, rows); err != nil {
		return 0, err
	}
	if err := w.save(f); err != nil {
		return 0, err
	}
	n := countCells(rows)
	w.log.Info("workbook appended", zap.String("path", w.path), zap.String("sheet", sheet), zap.Int("first_row", row), zap.Int("cells", n))
	return n, nil
}

// IsEmpty reports whether the target sheet has no rows. A missing workbook
// or sheet is empty.
func (w *XLSXWriter) IsEmpty(ctx context.Context, target string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := os.Stat(w.path); errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	f, err := w.open()
	if err != nil {
		return false, err
	}
	defer f.Close()

	sheet, _ := splitTarget(target)
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, _ := f.GetSheetIndex(sheet); idx == -1 {
		return true, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return false, eris.Wrapf(err, "xlsx: read sheet %s", sheet)
	}
	return len(rows) == 0, nil
}

func (w *XLSXWriter) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return excelize.NewFile(), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", w.path)
	}
	return f, nil
}

func (w *XLSXWriter) save(f *excelize.File) error {
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "xlsx: create directory %s", dir)
		}
	}
	if err := f.SaveAs(w.path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", w.path)
	}
	return nil
}

// splitTarget separates "Sheet!A1" into sheet and cell. Quotes around sheet
// names are removed.
func splitTarget(target string) (sheet, cell string) {
	target = strings.TrimSpace(target)
	if i := strings.LastIndex(target, "!"); i >= 0 {
		return strings.Trim(target[:i], "'"), target[i+1:]
	}
	if _, _, err := excelize.CellNameToCoordinates(target); err == nil {
		return "", target
	}
	return strings.Trim(target, "'"), ""
}

func resolveTarget(f *excelize.File, target string) (sheet string, col, row int, err error) {
	sheet, cell := splitTarget(target)
	if sheet == "" {
		sheet = f.GetSheetName(0)
		if sheet == "" {
			sheet = defaultSheet
		}
	}
	if cell == "" {
		cell = "A1"
	}
	col, row, err = excelize.CellNameToCoordinates(cell)
	if err != nil {
		return "", 0, 0, eris.Wrapf(err, "xlsx: target %q", target)
	}
	if idx, _ := f.GetSheetIndex(sheet); idx == -1 {
		idx, err = f.NewSheet(sheet)
		if err != nil {
			return "", 0, 0, eris.Wrapf(err, "xlsx: create sheet %s", sheet)
		}
		f.SetActiveSheet(idx)
	}
	return sheet, col, row, nil
}

func writeRows(f *excelize.File, sheet string, col, row int, rows [][]string) error {
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(col, row+i)
		if err != nil {
			return eris.Wrap(err, "xlsx: cell name")
		}
		values := make([]any, len(r))
		for j, v := range r {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return eris.Wrapf(err, "xlsx: write row %s", cell)
		}
	}
	return nil
}
