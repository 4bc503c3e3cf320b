package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// excelText renders every sheet as tab-separated rows under a sheet-name
// heading. The heading keeps the sheet's subject attached to its rows when
// the workbook is later chunked.
func excelText(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sheets []string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", name, err)
		}
		var b strings.Builder
		for _, row := range rows {
			line := strings.Join(row, "\t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if body := strings.TrimSpace(b.String()); body != "" {
			sheets = append(sheets, fmt.Sprintf("Sheet: %s\n%s", name, body))
		}
	}
	return strings.Join(sheets, "\n\n"), nil
}
