package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kliniksehat/alicia/examples"
)

// initDir initializes an Alicia working directory with default files:
// an example config and a starter knowledge document. Existing files
// are never overwritten.
func initDir(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Alicia workspace in %s\n", dir)

	for _, sub := range []string{"data", "docs"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, examples.ConfigYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	faqPath := filepath.Join(dir, "docs", "faq.md")
	if err := writeIfMissing(faqPath, examples.FAQMD); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", faqPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml with your Gemini, CalDAV, and SMTP credentials,")
	fmt.Fprintln(w, "then add your clinic's knowledge documents under docs/.")
	return nil
}

// writeIfMissing writes content to path only if the file does not already
// exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil // already exists, skip
	}
	return os.WriteFile(path, content, 0o644)
}
