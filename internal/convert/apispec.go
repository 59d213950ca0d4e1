package convert

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/pachat/internal/models"
)

// apiSpecIDKey is read from the "설명" (description) object of each item.
const apiSpecIDKey = "API ID"

// ParseAPISpec reads {"<sheet>": [{"설명": {"API ID": ...}, ...}], ...}. Each item is kept
// verbatim (compacted) as the entry's RawSpec. Sheets are returned in source order.
func ParseAPISpec(data []byte, sourceFile string) ([]models.APISpecEntry, error) {
	sheets, err := orderedObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: API specification JSON: %v", models.ErrParse, err)
	}
	var entries []models.APISpecEntry
	for _, sheet := range sheets {
		var items []json.RawMessage
		if err := json.Unmarshal(sheet.Value, &items); err != nil {
			return nil, fmt.Errorf("%w: sheet %s: %v", models.ErrParse, sheet.Key, err)
		}
		for i, item := range items {
			var head struct {
				Description json.RawMessage `json:"설명"`
			}
			if err := json.Unmarshal(item, &head); err != nil {
				return nil, fmt.Errorf("%w: sheet %s item %d: %v", models.ErrParse, sheet.Key, i, err)
			}
			var apiID string
			var description map[string]json.RawMessage
			if json.Unmarshal(head.Description, &description) == nil {
				if raw, ok := description[apiSpecIDKey]; ok {
					apiID, _ = displayValue(raw)
				}
			}
			var compact bytes.Buffer
			if err := json.Compact(&compact, item); err != nil {
				return nil, fmt.Errorf("%w: sheet %s item %d: %v", models.ErrParse, sheet.Key, i, err)
			}
			entries = append(entries, models.APISpecEntry{
				APIID:      apiID,
				RawSpec:    json.RawMessage(compact.Bytes()),
				SheetName:  sheet.Key,
				SourceFile: sourceFile,
			})
		}
	}
	return entries, nil
}

// ReadAPISpec reads and parses the API specification JSON at path.
func ReadAPISpec(path, sourceFile string) ([]models.APISpecEntry, error) {
	data, err := readSideCar(path, "API specification JSON")
	if err != nil {
		return nil, err
	}
	return ParseAPISpec(data, sourceFile)
}
