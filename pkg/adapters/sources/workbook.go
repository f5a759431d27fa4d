package sources

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
)

// readWorkbook turns every sheet of an .xlsx file into a list fixture named
// after the sheet. The first row holds the field names; empty header cells
// drop their column.
func readWorkbook(path string) (map[string]any, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fixtures := make(map[string]any)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		list := []any{}
		if len(rows) > 0 {
			header := rows[0]
			for _, row := range rows[1:] {
				item := make(map[string]any, len(header))
				for i, name := range header {
					name = strings.TrimSpace(name)
					if name == "" {
						continue
					}
					var cell string
					if i < len(row) {
						cell = row[i]
					}
					item[name] = cellValue(cell)
				}
				list = append(list, item)
			}
		}
		fixtures[sheet] = list
	}
	return fixtures, nil
}

// cellValue reads numbers and booleans back out of their formatted text.
func cellValue(s string) any {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return nil
	case "true", "false":
		return strings.EqualFold(s, "true")
	}
	if f, err := cast.ToFloat64E(s); err == nil {
		return f
	}
	return s
}
