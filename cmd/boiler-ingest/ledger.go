// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/boiler-ingest/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or edit the list of published documents",
	Long: `Ledger manages the newline-delimited file of source identifiers that sync
has already published. Sync never publishes a listed identifier again.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every published identifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		for _, id := range l.IDs() {
			fmt.Fprintln(os.Stdout, id)
		}
		fmt.Fprintf(os.Stderr, "%d identifier(s) in %s\n", l.Len(), l.Path())
		return nil
	},
}

var ledgerCheckCmd = &cobra.Command{
	Use:   "check [identifiers...]",
	Short: "Report whether identifiers have been published",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		for _, id := range args {
			state := "not published"
			if l.Contains(id) {
				state = "published"
			}
			fmt.Fprintf(os.Stdout, "%s: %s\n", id, state)
		}
		return nil
	},
}

var ledgerRegisterCmd = &cobra.Command{
	Use:   "register [identifiers...]",
	Short: "Mark identifiers as published without writing rows",
	Long: `Register appends identifiers to the ledger, for documents whose rows were
entered by hand or recovered after an interrupted sync.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		var failed int
		for _, id := range args {
			if l.Contains(id) {
				fmt.Fprintf(os.Stdout, "exists:     %s\n", id)
				continue
			}
			if err := l.Register(id); err != nil {
				failed++
				fmt.Fprintf(os.Stdout, "failed:     %s (%v)\n", id, err)
				continue
			}
			fmt.Fprintf(os.Stdout, "registered: %s\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d identifier(s) not registered", failed)
		}
		return nil
	},
}

func init() {
	ledgerCmd.PersistentFlags().String("ledger", "", "ledger file (default processed_files.txt)")
	bindFlag(ledgerCmd, "ledger", "sync.ledger_path")

	ledgerCmd.AddCommand(ledgerListCmd, ledgerCheckCmd, ledgerRegisterCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func openLedger() (*ledger.Ledger, error) {
	return ledger.Open(app.cfg.Sync.LedgerPath, app.log)
}
