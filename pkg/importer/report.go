package importer

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"
)

var reportHeader = []string{"line", "reason", "subject", "author", "content", "suggestions"}

func (u Unmatched) cells() []string {
	return []string{
		strconv.Itoa(u.Line),
		u.Reason,
		u.Subject,
		u.Author,
		u.Preview,
		strings.Join(u.Suggestions, "; "),
	}
}

// WriteUnmatchedReport writes the unmatched records to path: a workbook when
// the extension is .xlsx, CSV otherwise.
func WriteUnmatchedReport(path string, items []Unmatched) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return writeXLSXReport(path, items)
	}
	return writeCSVReport(path, items)
}

func writeCSVReport(path string, items []Unmatched) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create report")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(reportHeader); err != nil {
		return errors.Wrap(err, "write report header")
	}
	for _, u := range items {
		if err := w.Write(u.cells()); err != nil {
			return errors.Wrap(err, "write report row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "flush report")
	}
	return f.Close()
}

const reportSheet = "Unmatched"

func writeXLSXReport(path string, items []Unmatched) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return errors.Wrap(err, "rename sheet")
	}
	header := make([]any, len(reportHeader))
	for i, h := range reportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return errors.Wrap(err, "write report header")
	}
	for i, u := range items {
		cells := u.cells()
		row := make([]any, len(cells))
		row[0] = u.Line
		for j := 1; j < len(cells); j++ {
			row[j] = cells[j]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "cell name")
		}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return errors.Wrapf(err, "write report row %d", i+1)
		}
	}
	if err := f.SetPanes(reportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return errors.Wrap(err, "freeze header")
	}
	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, "save report")
	}
	return nil
}
