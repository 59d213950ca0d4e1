// Package cli provides output formatting and the HTTP client used by the pachat command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/pachat/internal/models"
	"github.com/hyperjump/pachat/internal/storage"
	"github.com/hyperjump/pachat/pkg/utils"
)

// OutputFormat is the format of command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// Answer is what `pachat ask` prints.
type Answer struct {
	Message models.Message       `json:"message"`
	Answer  *models.AnswerBundle `json:"answer,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// IngestResult is what `pachat ingest` prints.
type IngestResult struct {
	Report  *models.IngestReport `json:"report,omitempty"`
	Message models.Message       `json:"message"`
	Error   string               `json:"error,omitempty"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	Collections      map[string]int64       `json:"collections"`
	Sessions         int                    `json:"sessions"`
	DiskUsageBytes   *int64                 `json:"disk_usage_bytes,omitempty"`
	Disk             []storage.DiskArea     `json:"disk,omitempty"`
	WatchDirectories []string               `json:"watch_directories,omitempty"`
	Config           map[string]interface{} `json:"config,omitempty"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer in the given format. Text output is the rendered reply
// followed by the image list.
func WriteAnswer(w io.Writer, a *Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, a)
	}
	fmt.Fprintln(w, a.Message.Content)
	if len(a.Message.Images) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Images:")
		for _, img := range a.Message.Images {
			fmt.Fprintf(w, "  %s  (%s)\n", img.Path, img.Caption)
		}
	}
	return nil
}

// WriteIngestResult writes an ingestion outcome in the given format.
func WriteIngestResult(w io.Writer, r *IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, r)
	}
	fmt.Fprintln(w, r.Message.Content)
	if r.Report != nil {
		fmt.Fprintf(w, "pipeline: %s, documents stored: %d\n", r.Report.Kind, r.Report.Count)
	}
	return nil
}

// WriteStatus writes collection counts and configuration.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	for _, name := range models.Collections {
		fmt.Fprintf(w, "%-18s %d\n", name+":", s.Collections[name])
	}
	fmt.Fprintf(w, "%-18s %d\n", "sessions:", s.Sessions)
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "%-18s %d   # database, index, uploads and script output\n", "disk_usage_bytes:", *s.DiskUsageBytes)
	}
	for _, a := range s.Disk {
		fmt.Fprintf(w, "  %-20s %-12d %s\n", a.Name+":", a.Bytes, a.Path)
	}
	for _, d := range s.WatchDirectories {
		fmt.Fprintf(w, "%-18s %s\n", "watching:", d)
	}
	if len(s.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		keys := make([]string, 0, len(s.Config))
		for k := range s.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%-22s %s\n", k+":", utils.Truncate(fmt.Sprint(s.Config[k]), 120))
		}
	}
	return nil
}
