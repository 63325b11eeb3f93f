package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/ledger"
)

func tradingLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := funded(t, "50000")
	post := func(d calendar.Date, lines ...ledger.Line) {
		_, err := l.Post(ledger.Transaction{Date: d, Lines: lines})
		require.NoError(t, err)
	}
	post(day1, ledger.DebitLine(ledger.Inventory, usd("2000")), ledger.CreditLine(ledger.AccountsPayable, usd("2000")))
	post(day1.AddDays(1), ledger.DebitLine(ledger.Cash, usd("3000")), ledger.CreditLine(ledger.SalesRevenue, usd("3000")))
	post(day1.AddDays(1), ledger.DebitLine(ledger.COGS, usd("1200")), ledger.CreditLine(ledger.Inventory, usd("1200")))
	post(day1.AddDays(2), ledger.DebitLine(ledger.OperatingExpense, usd("300")), ledger.CreditLine(ledger.Cash, usd("300")))
	return l
}

func TestIncomeStatement(t *testing.T) {
	l := tradingLedger(t)

	is, err := l.IncomeStatement(calendar.Range{Start: day1, End: day1.AddDays(2)})

	require.NoError(t, err)
	assert.True(t, is.Revenue.Total.Equal(usd("3000")))
	assert.True(t, is.CostOfSales.Total.Equal(usd("1200")))
	assert.True(t, is.GrossProfit.Equal(usd("1800")))
	assert.True(t, is.Expenses.Total.Equal(usd("300")))
	assert.True(t, is.NetIncome.Equal(usd("1500")))

	// a range that excludes the expense day
	partial, err := l.IncomeStatement(calendar.Range{Start: day1, End: day1.AddDays(1)})
	require.NoError(t, err)
	assert.True(t, partial.NetIncome.Equal(usd("1800")))

	_, err = l.IncomeStatement(calendar.Range{Start: day1.AddDays(1), End: day1})
	assert.ErrorIs(t, err, calendar.ErrInvalidRange)
}

func TestBalanceSheet_AssetsEqualLiabilitiesPlusEquity(t *testing.T) {
	l := tradingLedger(t)

	for offset := 0; offset <= 3; offset++ {
		bs := l.BalanceSheet(day1.AddDays(offset))
		assert.True(t, bs.Balanced(), "balance sheet on day %d: assets %s, l+e %s",
			offset, bs.Assets.Total, bs.TotalLiabilitiesAndEquity)
	}

	bs := l.BalanceSheet(day1.AddDays(2))
	assert.True(t, bs.Assets.Total.Equal(usd("53500")))
	assert.True(t, bs.Liabilities.Total.Equal(usd("2000")))
	assert.True(t, bs.RetainedEarnings.Equal(usd("1500")))
}

func TestTrialBalanceRows(t *testing.T) {
	l := tradingLedger(t)

	rows := l.TrialBalanceRows(day1.AddDays(2))

	var debits, credits = usd("0"), usd("0")
	for _, r := range rows {
		debits = debits.Add(r.Debit)
		credits = credits.Add(r.Credit)
		if r.Code == ledger.Inventory {
			assert.True(t, r.Balance.Equal(usd("800")))
		}
	}
	assert.True(t, debits.Equal(credits))
	assert.Len(t, rows, len(ledger.DefaultChart().Accounts()))
}
