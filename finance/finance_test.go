package finance_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/ids"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/payables"
)

var start = calendar.MustParse("2025-04-01")

func usd(s string) money.Money { return money.MustParse(s) }

func newBook(t *testing.T, expenses ...finance.RecurringExpense) (*finance.Book, *ledger.Ledger, *payables.Book) {
	t.Helper()
	l := ledger.New(nil)
	gen := ids.New("finance-test")
	ap := payables.New(l, gen)
	b, err := finance.New(l, ap, gen, expenses)
	require.NoError(t, err)
	return b, l, ap
}

// =============================================================================
// LOANS
// =============================================================================

func TestTakeLoan_BooksCashAndLiability(t *testing.T) {
	b, l, _ := newBook(t)

	loan, err := b.TakeLoan(finance.LoanTerms{
		Principal:    usd("36500"),
		AnnualRate:   decimal.RequireFromString("0.10"),
		Installments: 3,
		IntervalDays: 30,
	}, start)

	require.NoError(t, err)
	assert.Equal(t, "Bank", loan.Lender)
	assert.Equal(t, start.AddDays(30), loan.NextDue)
	assert.True(t, l.Current(ledger.Cash).Equal(usd("36500")))
	assert.True(t, l.Current(ledger.LoanPayable).Equal(usd("36500")))
}

func TestTakeLoan_InvalidTerms(t *testing.T) {
	b, l, _ := newBook(t)

	_, err := b.TakeLoan(finance.LoanTerms{Principal: usd("0"), Installments: 1, IntervalDays: 30}, start)
	assert.ErrorIs(t, err, finance.ErrInvalidLoan)

	_, err = b.TakeLoan(finance.LoanTerms{Principal: usd("100"), Installments: 0, IntervalDays: 30}, start)
	assert.ErrorIs(t, err, finance.ErrInvalidLoan)

	assert.Zero(t, l.Len())
}

// Interest is simple: outstanding principal x rate / 365 per day, no compounding.
func TestProcess_AccruesSimpleDailyInterestAndBillsInstallment(t *testing.T) {
	// GIVEN: 36,500 at 10% -> exactly 10.00 per day on the full principal
	b, l, ap := newBook(t)
	_, err := b.TakeLoan(finance.LoanTerms{
		Principal:    usd("36500"),
		AnnualRate:   decimal.RequireFromString("0.10"),
		Installments: 3,
		IntervalDays: 30,
	}, start)
	require.NoError(t, err)

	// no interest on the day the loan is taken
	act, err := b.Process(start)
	require.NoError(t, err)
	assert.True(t, act.InterestAccrued.IsZero())

	// WHEN: 29 days pass
	for d := 1; d < 30; d++ {
		act, err = b.Process(start.AddDays(d))
		require.NoError(t, err)
		assert.True(t, act.InterestAccrued.Equal(usd("10")), "day %d", d)
		assert.Empty(t, act.InstallmentBills)
	}
	assert.True(t, l.Current(ledger.InterestPayable).Equal(usd("290")))

	// THEN: day 30 bills principal/3 plus 30 days of interest
	act, err = b.Process(start.AddDays(30))
	require.NoError(t, err)
	require.Len(t, act.InstallmentBills, 1)
	bill := act.InstallmentBills[0]
	assert.True(t, bill.Amount.Equal(usd("12466.67")), bill.Amount.String())
	assert.Equal(t, payables.SourceLoan, bill.Source)
	assert.Equal(t, start.AddDays(30), bill.Due)

	assert.True(t, l.Current(ledger.InterestPayable).IsZero())
	assert.True(t, l.Current(ledger.LoanPayable).Equal(usd("24333.33")))
	assert.True(t, l.Current(ledger.InterestExpense).Equal(usd("300")))
	assert.True(t, ap.OutstandingTotal().Equal(usd("12466.67")))
	assert.True(t, l.TrialBalance().IsZero())

	// interest now accrues on the reduced principal
	act, err = b.Process(start.AddDays(31))
	require.NoError(t, err)
	assert.True(t, act.InterestAccrued.Equal(usd("6.67")))
}

func TestProcess_LastInstallmentRepaysLoan(t *testing.T) {
	b, l, _ := newBook(t)
	_, err := b.TakeLoan(finance.LoanTerms{
		Principal:    usd("1000"),
		AnnualRate:   decimal.Zero,
		Installments: 3,
		IntervalDays: 10,
	}, start)
	require.NoError(t, err)

	for d := 1; d <= 30; d++ {
		_, err := b.Process(start.AddDays(d))
		require.NoError(t, err)
	}

	loans := b.Loans()
	require.Len(t, loans, 1)
	assert.Equal(t, finance.LoanRepaid, loans[0].Status)
	assert.Equal(t, 3, loans[0].InstallmentsDue)
	assert.True(t, l.Current(ledger.LoanPayable).IsZero())
	assert.True(t, b.OutstandingPrincipal().IsZero())
	assert.True(t, l.Current(ledger.AccountsPayable).Equal(usd("1000")))
}

// =============================================================================
// RECURRING EXPENSES
// =============================================================================

func TestProcess_RecurringExpenseOnDayOfMonth(t *testing.T) {
	rent := finance.RecurringExpense{ID: "rent", Name: "Rent", Amount: usd("1500"), DayOfMonth: 5, NetDays: 10}
	b, l, _ := newBook(t, rent)

	act, err := b.Process(calendar.MustParse("2025-05-04"))
	require.NoError(t, err)
	assert.Empty(t, act.ExpenseBills)

	act, err = b.Process(calendar.MustParse("2025-05-05"))
	require.NoError(t, err)
	require.Len(t, act.ExpenseBills, 1)
	assert.Equal(t, "Rent", act.ExpenseBills[0].Payee)
	assert.Equal(t, calendar.MustParse("2025-05-15"), act.ExpenseBills[0].Due)
	assert.True(t, l.Current(ledger.OperatingExpense).Equal(usd("1500")))
	assert.True(t, l.Current(ledger.AccountsPayable).Equal(usd("1500")))
}

func TestRecurringExpense_DueOnClampsToMonthEnd(t *testing.T) {
	e := finance.RecurringExpense{ID: "payroll", Amount: usd("1"), DayOfMonth: 31}

	assert.True(t, e.DueOn(calendar.MustParse("2025-02-28")))
	assert.True(t, e.DueOn(calendar.MustParse("2025-04-30")))
	assert.False(t, e.DueOn(calendar.MustParse("2025-05-30")))
	assert.True(t, e.DueOn(calendar.MustParse("2025-05-31")))
}

func TestNew_RejectsInvalidExpense(t *testing.T) {
	l := ledger.New(nil)
	gen := ids.New("x")

	_, err := finance.New(l, payables.New(l, gen), gen, []finance.RecurringExpense{{ID: "bad", Amount: usd("10"), DayOfMonth: 0}})

	assert.ErrorIs(t, err, finance.ErrInvalidExpense)
}

func TestCheckpoint_RestoresLoanState(t *testing.T) {
	b, _, _ := newBook(t)
	_, err := b.TakeLoan(finance.LoanTerms{Principal: usd("1000"), AnnualRate: decimal.RequireFromString("0.365"), Installments: 1, IntervalDays: 30}, start)
	require.NoError(t, err)
	cp := b.Checkpoint()

	_, err = b.Process(start.AddDays(1))
	require.NoError(t, err)
	assert.True(t, b.Loans()[0].AccruedInterest.Equal(usd("1")))

	b.RestoreCheckpoint(cp)
	assert.True(t, b.Loans()[0].AccruedInterest.IsZero())
}
