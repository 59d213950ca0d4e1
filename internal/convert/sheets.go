package convert

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/pachat/internal/config"
)

// SheetNames lists the sheet names of the workbook at path in workbook order.
func SheetNames(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// PlanSheetScripts returns the script of every rule whose substring occurs in some sheet name,
// in rule order. Each script appears at most once.
func PlanSheetScripts(sheets []string, rules []config.SheetRule) []string {
	var scripts []string
	seen := make(map[string]bool)
	for _, rule := range rules {
		if seen[rule.Script] {
			continue
		}
		for _, sheet := range sheets {
			if strings.Contains(sheet, rule.SheetContains) {
				scripts = append(scripts, rule.Script)
				seen[rule.Script] = true
				break
			}
		}
	}
	return scripts
}
