package pnl

import (
	"encoding/csv"
	"io"

	"github.com/shopspring/decimal"
)

// ExportCSV writes the report as account,name,jan..dec,total rows followed by
// section and net income totals.
func ExportCSV(w io.Writer, report Report) error {
	writer := csv.NewWriter(w)
	header := append([]string{"account", "name"}, report.Months[:]...)
	header = append(header, "total")
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, section := range []Section{report.Revenue, report.Expense} {
		for _, line := range section.Lines {
			if err := writer.Write(record(line.Code, line.Name, line.Months, line.Total)); err != nil {
				return err
			}
		}
		if err := writer.Write(record("", "Total "+section.Label, section.Months, section.Total)); err != nil {
			return err
		}
	}
	if err := writer.Write(record("", "Net income", report.NetIncome, report.NetTotal)); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func record(code, name string, months [12]decimal.Decimal, total decimal.Decimal) []string {
	out := make([]string, 0, 15)
	out = append(out, code, name)
	for _, m := range months {
		out = append(out, m.StringFixed(2))
	}
	return append(out, total.StringFixed(2))
}
