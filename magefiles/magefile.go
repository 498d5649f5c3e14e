//go:build mage

// Package main contains Mage build targets for boiler-ingest developer tooling.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the pipeline expects.
var projectDirs = []string{
	"data/rawdata",
	"data/input",
	"data/processed",
	"data/output",
	"data/state",
	".secrets",
}

// Init creates the project directory structure for the pipeline.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "boiler-ingest"
	cmdPkg  = "./cmd/boiler-ingest"
)

func binPath() string {
	return filepath.Join(binDir, binName)
}

// Build compiles the CLI binary into bin/, stamping the git version when
// available.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || version == "" {
		version = "dev"
	}
	ldflags := "-X main.version=" + version
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", binPath(), cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s (%s)\n", binPath(), version)
	return nil
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Preprocess moves raw scans into data/input, compressing oversize files.
func Preprocess() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "preprocess")
}

// Analyze recognizes documents in data/input.
func Analyze() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "analyze")
}

// Sync publishes new artifacts to the destination.
func Sync() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "sync")
}

// Pipeline runs all stages in order.
func Pipeline() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "run")
}

// Stats prints Go line counts and the state of the pipeline directories.
func Stats() error {
	prodLines, err := countGoLines(".", false)
	if err != nil {
		return err
	}
	testLines, err := countGoLines(".", true)
	if err != nil {
		return err
	}
	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)

	for _, d := range []string{"data/rawdata", "data/input", "data/processed"} {
		n, err := countFiles(d, "")
		if err != nil {
			return err
		}
		fmt.Printf("Documents in %-16s %d\n", d+":", n)
	}
	artifacts, err := countFiles("data/output", "_analysis.json")
	if err != nil {
		return err
	}
	fmt.Printf("Artifacts in data/output:       %d\n", artifacts)

	published, err := countLines("processed_files.txt")
	if err != nil {
		return err
	}
	fmt.Printf("Published (ledger):             %d\n", published)
	return nil
}

// countGoLines walks the tree and counts non-blank lines in Go files,
// skipping directories the go tool ignores (leading "_"). If testOnly is
// true, count only _test.go files; otherwise count non-test .go files.
func countGoLines(root string, testOnly bool) (int, error) {
	total := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		if strings.HasSuffix(path, "_test.go") != testOnly {
			return nil
		}
		n, err := countLines(path)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	return total, err
}

// countFiles counts regular files under dir whose names end in suffix. A
// missing directory counts as zero.
func countFiles(dir, suffix string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), suffix) {
			n++
		}
		return nil
	})
	return n, err
}

// countLines counts non-blank lines in path. A missing file counts as zero.
func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}
