package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/tendant/simple-webp/internal/convert"
	"github.com/tendant/simple-webp/pkg/schema"
)

const planPreview = 10

func logPlan(logger *slog.Logger, mappings []schema.KeyMapping) {
	logger.Info("DRY RUN MODE - No files will be converted")
	logger.Info(fmt.Sprintf("Would convert %d images:", len(mappings)))
	for _, m := range mappings[:min(len(mappings), planPreview)] {
		logger.Info(fmt.Sprintf("  %s -> %s", m.Source, m.Destination))
	}
	if len(mappings) > planPreview {
		logger.Info(fmt.Sprintf("  ... and %d more", len(mappings)-planPreview))
	}
}

func printSummary(w io.Writer, s convert.Summary) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\nCONVERSION SUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(w, "Total files: %d\n", s.TotalFiles)
	fmt.Fprintf(w, "Successful: %d\n", s.Succeeded)
	fmt.Fprintf(w, "Failed: %d\n", s.Failed)
	fmt.Fprintf(w, "Skipped: %d\n", s.Skipped)
	fmt.Fprintf(w, "Duration: %.2f seconds\n", s.Elapsed.Seconds())

	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "\nFailed conversions:\n")
		for _, o := range s.Failures {
			fmt.Fprintf(w, "  ❌ %s: %s\n", o.SourceKey, o.Error)
		}
	}

	if s.Succeeded > 0 && s.OriginalBytes > 0 {
		fmt.Fprintf(w, "\nTotal size reduction: %.1f%%\n", s.CompressionPercent)
		fmt.Fprintf(w, "Original total: %s bytes\n", humanize.Comma(s.OriginalBytes))
		fmt.Fprintf(w, "WebP total: %s bytes\n", humanize.Comma(s.ConvertedBytes))
		fmt.Fprintf(w, "Saved: %s bytes\n", humanize.Comma(s.SavedBytes))
	}
}

// writeReport encodes JSON for a .json path and YAML otherwise.
func writeReport(path string, rep schema.Report) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(rep, "", "  ")
	} else {
		data, err = yaml.Marshal(rep)
	}
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
