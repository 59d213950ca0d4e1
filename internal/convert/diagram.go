package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/pachat/internal/models"
)

// DiagramOutput is the record the diagram converter reports for one rendered diagram.
type DiagramOutput struct {
	PNGPath   string   `json:"png_path"`
	TitleCode string   `json:"title_code"`
	DBTables  []string `json:"db_tables"`
}

// Labels of the older line-based converter output.
const (
	labelPNGPath   = "PNG Path:"
	labelTitleCode = "Title Code:"
	labelDBTables  = "DB Tables:"
)

// ParseDiagramOutput reads the converter's stdout. A JSON object line with png_path,
// title_code and db_tables is preferred; otherwise the labeled lines are used.
// Image path and title code must be non-empty and the table list must be present.
func ParseDiagramOutput(stdout string) (*DiagramOutput, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var out DiagramOutput
		var fields map[string]json.RawMessage
		if json.Unmarshal([]byte(line), &fields) != nil {
			continue
		}
		if _, ok := fields["png_path"]; !ok {
			continue
		}
		if err := json.Unmarshal([]byte(line), &out); err != nil {
			return nil, fmt.Errorf("%w: diagram record: %v", models.ErrParse, err)
		}
		_, hasTables := fields["db_tables"]
		return validateDiagram(&out, hasTables)
	}

	var out DiagramOutput
	hasTables := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, labelPNGPath):
			out.PNGPath = strings.TrimSpace(strings.TrimPrefix(line, labelPNGPath))
		case strings.HasPrefix(line, labelTitleCode):
			out.TitleCode = strings.TrimSpace(strings.TrimPrefix(line, labelTitleCode))
		case strings.HasPrefix(line, labelDBTables):
			out.DBTables = ParseTableList(strings.TrimPrefix(line, labelDBTables))
			hasTables = true
		}
	}
	return validateDiagram(&out, hasTables)
}

func validateDiagram(out *DiagramOutput, hasTables bool) (*DiagramOutput, error) {
	var missing []string
	if out.PNGPath == "" {
		missing = append(missing, "png path")
	}
	if out.TitleCode == "" {
		missing = append(missing, "title code")
	}
	if !hasTables {
		missing = append(missing, "db tables")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: diagram output missing %s", models.ErrParse, strings.Join(missing, ", "))
	}
	if out.DBTables == nil {
		out.DBTables = []string{}
	}
	return out, nil
}

// ParseTableList parses a bracketed, comma separated, quoted list such as "['a', 'b']".
func ParseTableList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	tables := []string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(strings.TrimSpace(part), `'"`)
		if part != "" {
			tables = append(tables, part)
		}
	}
	return tables
}

// Record turns the output into a DiagramRecord for the given source file name.
func (o *DiagramOutput) Record(sourceFilename string) models.DiagramRecord {
	return models.DiagramRecord{
		Identifier:       o.TitleCode,
		ReferencedTables: o.DBTables,
		ImagePath:        o.PNGPath,
		SourceFilename:   sourceFilename,
	}
}
