// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package destination writes row matrices to a tabular destination: a Google
// spreadsheet or a local XLSX workbook.
//
// Two write modes exist. Overwrite writes the header and the rows starting at
// the target cell, replacing whatever those cells held before; earlier rows
// that fall outside the written block are left alone, and rows inside it are
// lost. Append adds data rows after the last used row and writes the header
// first only when the destination is empty.
package destination

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/boiler-ingest/pkg/types"
)

// Writer is a destination backend. Both methods return the number of cells
// written.
type Writer interface {
	// Update writes rows starting at target, overwriting existing cells.
	Update(ctx context.Context, target string, rows [][]string) (int, error)

	// Append writes rows after the last used row of the table at target.
	Append(ctx context.Context, target string, rows [][]string) (int, error)
}

// EmptyChecker is implemented by backends that can report whether the table
// at target holds any data. Append mode uses it to decide on a header row.
type EmptyChecker interface {
	IsEmpty(ctx context.Context, target string) (bool, error)
}

// Result describes one destination write.
type Result struct {
	Mode          types.WriteMode
	Rows          int
	HeaderWritten bool
	UpdatedCells  int
}

// Write publishes rows with the given mode in a single backend call. In
// overwrite mode the header always precedes the rows. In append mode the
// header is added only when the backend reports an empty table; backends
// without EmptyChecker get data rows only. A nil header is never written.
func Write(ctx context.Context, w Writer, mode types.WriteMode, target string, header []string, rows [][]string) (Result, error) {
	res := Result{Mode: mode, Rows: len(rows)}

	switch mode {
	case types.WriteOverwrite, "":
		res.Mode = types.WriteOverwrite
		matrix := make([][]string, 0, len(rows)+1)
		if header != nil {
			matrix = append(matrix, header)
		}
		matrix = append(matrix, rows...)
		n, err := w.Update(ctx, target, matrix)
		if err != nil {
			return res, eris.Wrapf(err, "destination: update %s", target)
		}
		res.HeaderWritten = header != nil
		res.UpdatedCells = n
		return res, nil

	case types.WriteAppend:
		matrix := rows
		if ec, ok := w.(EmptyChecker); ok && header != nil {
			empty, err := ec.IsEmpty(ctx, target)
			if err != nil {
				return res, eris.Wrapf(err, "destination: inspect %s", target)
			}
			if empty {
				matrix = make([][]string, 0, len(rows)+1)
				matrix = append(matrix, header)
				matrix = append(matrix, rows...)
				res.HeaderWritten = true
			}
		}
		n, err := w.Append(ctx, target, matrix)
		if err != nil {
			return res, eris.Wrapf(err, "destination: append %s", target)
		}
		res.UpdatedCells = n
		return res, nil
	}
	return res, eris.Errorf("destination: unknown write mode %q", mode)
}

// ParseMode converts a configuration value to a WriteMode. An empty value
// selects overwrite.
func ParseMode(s string) (types.WriteMode, error) {
	switch types.WriteMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", types.WriteOverwrite:
		return types.WriteOverwrite, nil
	case types.WriteAppend:
		return types.WriteAppend, nil
	}
	return "", eris.Errorf("destination: unknown write mode %q (want overwrite or append)", s)
}

func countCells(rows [][]string) int {
	n := 0
	for _, r := range rows {
		n += len(r)
	}
	return n
}
