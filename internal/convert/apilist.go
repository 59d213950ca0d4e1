package convert

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hyperjump/pachat/internal/models"
)

// Keys of the API list JSON written by api_list.py.
const (
	apiListRootKey   = "API리스트"
	apiListIDKey     = "API ID"
	apiListScreenKey = "사용화면아이디\n(없으면 비화면 API)"
)

type apiListSheet struct {
	SheetName string            `json:"sheet_name"`
	Data      []json.RawMessage `json:"data"`
}

// ParseAPIList reads {"API리스트": [{"sheet_name": ..., "data": [{...}]}]}.
// Row keys keep their source order; null values are left out of the row text.
func ParseAPIList(data []byte, sourceFile string) ([]models.APIListEntry, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: API list JSON: %v", models.ErrParse, err)
	}
	rawSheets, ok := root[apiListRootKey]
	if !ok {
		return nil, fmt.Errorf("%w: API list JSON has no %q key", models.ErrParse, apiListRootKey)
	}
	var sheets []apiListSheet
	if err := json.Unmarshal(rawSheets, &sheets); err != nil {
		return nil, fmt.Errorf("%w: API list sheets: %v", models.ErrParse, err)
	}

	var entries []models.APIListEntry
	for _, sheet := range sheets {
		for i, item := range sheet.Data {
			fields, err := orderedObject(item)
			if err != nil {
				return nil, fmt.Errorf("%w: sheet %s row %d: %v", models.ErrParse, sheet.SheetName, i, err)
			}
			entry := models.APIListEntry{SheetName: sheet.SheetName, SourceFile: sourceFile}
			for _, f := range fields {
				value, ok := displayValue(f.Value)
				if !ok {
					continue
				}
				entry.RawFields = append(entry.RawFields, models.Field{Key: f.Key, Value: value})
				switch f.Key {
				case apiListIDKey:
					entry.APIID = value
				case apiListScreenKey:
					entry.ScreenIdentifier = value
				}
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// ReadAPIList reads and parses the API list JSON at path.
func ReadAPIList(path, sourceFile string) ([]models.APIListEntry, error) {
	data, err := readSideCar(path, "API list JSON")
	if err != nil {
		return nil, err
	}
	return ParseAPIList(data, sourceFile)
}

func readSideCar(path, what string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s %s", models.ErrMissingFile, what, path)
		}
		return nil, err
	}
	return data, nil
}
