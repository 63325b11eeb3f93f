package ledger

import (
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/money"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// ReportLine is one account row of a statement.
type ReportLine struct {
	Code   AccountCode `json:"code"`
	Name   string      `json:"name"`
	Amount money.Money `json:"amount"`
}

// Section groups rows under a label with their total.
type Section struct {
	Label string       `json:"label"`
	Lines []ReportLine `json:"lines"`
	Total money.Money  `json:"total"`
}

func (s *Section) add(line ReportLine) {
	s.Lines = append(s.Lines, line)
	s.Total = s.Total.Add(line.Amount)
}

// IncomeStatement covers activity within Range.
type IncomeStatement struct {
	Range       calendar.Range `json:"range"`
	Revenue     Section        `json:"revenue"`
	CostOfSales Section        `json:"cost_of_sales"`
	GrossProfit money.Money    `json:"gross_profit"`
	Expenses    Section        `json:"expenses"`
	NetIncome   money.Money    `json:"net_income"`
}

// BalanceSheet is a point-in-time statement. RetainedEarnings is the
// cumulative net income up to AsOf, shown inside Equity.
type BalanceSheet struct {
	AsOf                      calendar.Date `json:"as_of"`
	Assets                    Section       `json:"assets"`
	Liabilities               Section       `json:"liabilities"`
	Equity                    Section       `json:"equity"`
	RetainedEarnings          money.Money   `json:"retained_earnings"`
	TotalLiabilitiesAndEquity money.Money   `json:"total_liabilities_and_equity"`
}

// Balanced reports whether Assets = Liabilities + Equity.
func (b BalanceSheet) Balanced() bool {
	return b.Assets.Total.Equal(b.TotalLiabilitiesAndEquity)
}

// TrialBalanceRow is one account with its column totals up to a date.
type TrialBalanceRow struct {
	Code    AccountCode `json:"code"`
	Name    string      `json:"name"`
	Type    AccountType `json:"type"`
	Debit   money.Money `json:"debit"`
	Credit  money.Money `json:"credit"`
	Balance money.Money `json:"balance"`
}

// =============================================================================
// BUILDERS
// =============================================================================

// IncomeStatement aggregates revenue, cost of sales and expenses over r.
func (l *Ledger) IncomeStatement(r calendar.Range) (IncomeStatement, error) {
	if err := r.Validate(); err != nil {
		return IncomeStatement{}, err
	}
	is := IncomeStatement{
		Range:       r,
		Revenue:     Section{Label: "Revenue"},
		CostOfSales: Section{Label: "Cost of Sales"},
		Expenses:    Section{Label: "Operating Expenses"},
	}
	for _, acct := range l.chart.Accounts() {
		row := ReportLine{Code: acct.Code, Name: acct.Name, Amount: l.Activity(acct.Code, r)}
		switch acct.Type {
		case TypeRevenue:
			is.Revenue.add(row)
		case TypeCostOfSales:
			is.CostOfSales.add(row)
		case TypeExpense:
			is.Expenses.add(row)
		}
	}
	is.GrossProfit = is.Revenue.Total.Sub(is.CostOfSales.Total)
	is.NetIncome = is.GrossProfit.Sub(is.Expenses.Total)
	return is, nil
}

// BalanceSheet builds the statement of financial position at asOf.
func (l *Ledger) BalanceSheet(asOf calendar.Date) BalanceSheet {
	bs := BalanceSheet{
		AsOf:        asOf,
		Assets:      Section{Label: "Assets"},
		Liabilities: Section{Label: "Liabilities"},
		Equity:      Section{Label: "Equity"},
	}
	retained := money.Zero
	for _, acct := range l.chart.Accounts() {
		bal, _ := l.Balance(acct.Code, asOf)
		row := ReportLine{Code: acct.Code, Name: acct.Name, Amount: bal}
		switch acct.Type {
		case TypeAsset:
			bs.Assets.add(row)
		case TypeLiability:
			bs.Liabilities.add(row)
		case TypeEquity:
			bs.Equity.add(row)
		case TypeRevenue:
			retained = retained.Add(bal)
		case TypeCostOfSales, TypeExpense:
			retained = retained.Sub(bal)
		}
	}
	bs.RetainedEarnings = retained
	bs.Equity.add(ReportLine{Code: "retained-earnings", Name: "Retained Earnings", Amount: retained})
	bs.TotalLiabilitiesAndEquity = bs.Liabilities.Total.Add(bs.Equity.Total)
	return bs
}

// TrialBalanceRows lists every account with debit and credit totals up to asOf.
func (l *Ledger) TrialBalanceRows(asOf calendar.Date) []TrialBalanceRow {
	rows := make([]TrialBalanceRow, 0, len(l.chart.accounts))
	index := make(map[AccountCode]int)
	for _, acct := range l.chart.Accounts() {
		index[acct.Code] = len(rows)
		rows = append(rows, TrialBalanceRow{Code: acct.Code, Name: acct.Name, Type: acct.Type})
	}
	for _, e := range l.entries {
		if e.Date.After(asOf) {
			continue
		}
		row := &rows[index[e.Account]]
		row.Debit = row.Debit.Add(e.Debit)
		row.Credit = row.Credit.Add(e.Credit)
	}
	for i := range rows {
		if rows[i].Type.NormalSide() == Debit {
			rows[i].Balance = rows[i].Debit.Sub(rows[i].Credit)
		} else {
			rows[i].Balance = rows[i].Credit.Sub(rows[i].Debit)
		}
	}
	return rows
}
