// Package spreadsheet encodes a day's articles as an .xlsx workbook.
package spreadsheet

import (
	"fmt"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
)

// SheetName is the worksheet holding the article rows.
const SheetName = "Articles"

// ContentType is the MIME type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Header is the first row of the sheet: category, title, content.
var Header = []any{"القسم", "العنوان", "المحتوى"}

// Encoder implements crawler.Encoder with excelize.
type Encoder struct{}

// New returns a spreadsheet Encoder.
func New() *Encoder {
	return &Encoder{}
}

// ContentType implements crawler.Encoder.
func (*Encoder) ContentType() string { return ContentType }

// Extension implements crawler.Encoder.
func (*Encoder) Extension() string { return "xlsx" }

// Encode writes one row per article below the header row. A body longer than
// a cell can hold continues in the following columns, so no text is lost.
func (*Encoder) Encode(articles []crawler.Article) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, a := range articles {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		row := []any{a.Category, a.Title}
		for _, part := range splitCell(a.Body) {
			row = append(row, part)
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// splitCell cuts s into chunks of at most excelize.TotalCellChars runes.
// excelize silently truncates longer cell values.
func splitCell(s string) []string {
	if utf8.RuneCountInString(s) <= excelize.TotalCellChars {
		return []string{s}
	}
	var parts []string
	runes := []rune(s)
	for len(runes) > excelize.TotalCellChars {
		parts = append(parts, string(runes[:excelize.TotalCellChars]))
		runes = runes[excelize.TotalCellChars:]
	}
	return append(parts, string(runes))
}
