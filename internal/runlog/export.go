// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runlog

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"go.yaml.in/yaml/v3"
)

// Export formats.
const (
	FormatTable = "table"
	FormatYAML  = "yaml"
	FormatJSON  = "json"
)

// Export writes runs to w as a table, YAML, or indented JSON.
func Export(w io.Writer, runs []Run, format string) error {
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(runs)
		if err != nil {
			return eris.Wrap(err, "runlog: marshal YAML")
		}
		_, err = w.Write(data)
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return eris.Wrap(enc.Encode(runs), "runlog: marshal JSON")
	case FormatTable, "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tSTATUS\tMODE\tTOTAL\tNEW\tDUP\tFAILED\tREG\tCELLS\tID")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.Mode,
				r.Total, r.New, r.Duplicates, r.Failed, r.Registered, r.UpdatedCells, r.ID)
		}
		return tw.Flush()
	}
	return eris.Errorf("runlog: unknown format %q", format)
}
