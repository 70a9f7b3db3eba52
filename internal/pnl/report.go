// Package pnl builds the monthly profit and loss report from AR and AP invoices.
package pnl

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Section kinds returned by Source.
const (
	KindRevenue = "revenue"
	KindExpense = "expense"
)

// MonthNames are the column labels of the report.
var MonthNames = [12]string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// AccountMonth is the invoiced amount of one account in one month.
type AccountMonth struct {
	Kind   string
	Code   string
	Month  int
	Amount decimal.Decimal
}

// Line is one account row of a section.
type Line struct {
	Code   string              `json:"code"`
	Name   string              `json:"name"`
	Months [12]decimal.Decimal `json:"months"`
	Total  decimal.Decimal     `json:"total"`
}

// Section groups lines by nature.
type Section struct {
	Label  string              `json:"label"`
	Lines  []Line              `json:"lines"`
	Months [12]decimal.Decimal `json:"months"`
	Total  decimal.Decimal     `json:"total"`
}

// Report contains the structured output for one year and currency.
type Report struct {
	Year      int                 `json:"year"`
	Currency  string              `json:"currency"`
	Months    [12]string          `json:"months"`
	Revenue   Section             `json:"revenue"`
	Expense   Section             `json:"expense"`
	NetIncome [12]decimal.Decimal `json:"net_income"`
	NetTotal  decimal.Decimal     `json:"net_total"`
}

// BuildReport aggregates monthly account totals into revenue and expense sections.
func BuildReport(year int, currency string, rows []AccountMonth) Report {
	revenue := map[string]*Line{}
	expense := map[string]*Line{}
	for _, row := range rows {
		if row.Month < 1 || row.Month > 12 {
			continue
		}
		var lines map[string]*Line
		switch row.Kind {
		case KindRevenue:
			lines = revenue
		case KindExpense:
			lines = expense
		default:
			continue
		}
		code := strings.TrimSpace(row.Code)
		line, ok := lines[code]
		if !ok {
			line = &Line{Code: code, Name: AccountName(code)}
			lines[code] = line
		}
		line.Months[row.Month-1] = line.Months[row.Month-1].Add(row.Amount)
		line.Total = line.Total.Add(row.Amount)
	}

	report := Report{
		Year:     year,
		Currency: currency,
		Months:   MonthNames,
		Revenue:  buildSection("Revenue", revenue),
		Expense:  buildSection("Expense", expense),
	}
	for m := range report.NetIncome {
		report.NetIncome[m] = report.Revenue.Months[m].Sub(report.Expense.Months[m])
	}
	report.NetTotal = report.Revenue.Total.Sub(report.Expense.Total)
	return report
}

func buildSection(label string, lines map[string]*Line) Section {
	section := Section{Label: label, Lines: make([]Line, 0, len(lines))}
	for _, line := range lines {
		section.Lines = append(section.Lines, *line)
		for m, amount := range line.Months {
			section.Months[m] = section.Months[m].Add(amount)
		}
		section.Total = section.Total.Add(line.Total)
	}
	sort.Slice(section.Lines, func(i, j int) bool { return section.Lines[i].Code < section.Lines[j].Code })
	return section
}

// accountGroups names the three-digit groups of the Spanish general chart of accounts.
var accountGroups = map[string]string{
	"600": "Compras de mercaderías",
	"607": "Trabajos realizados por otras empresas",
	"621": "Arrendamientos y cánones",
	"622": "Reparaciones y conservación",
	"623": "Servicios de profesionales independientes",
	"624": "Transportes",
	"625": "Primas de seguros",
	"626": "Servicios bancarios y similares",
	"627": "Publicidad, propaganda y relaciones públicas",
	"628": "Suministros",
	"629": "Otros servicios",
	"631": "Otros tributos",
	"640": "Sueldos y salarios",
	"642": "Seguridad Social a cargo de la empresa",
	"662": "Intereses de deudas",
	"669": "Otros gastos financieros",
	"700": "Ventas de mercaderías",
	"705": "Prestaciones de servicios",
	"740": "Subvenciones a la explotación",
	"759": "Ingresos por servicios diversos",
	"769": "Otros ingresos financieros",
}

// AccountName resolves a display name from the account's group, or "" when unknown.
func AccountName(code string) string {
	if len(code) < 3 {
		return ""
	}
	return accountGroups[code[:3]]
}
