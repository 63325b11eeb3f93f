package payables_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/ids"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/payables"
)

var day0 = calendar.MustParse("2025-01-01")

func usd(s string) money.Money { return money.MustParse(s) }

func newBook(t *testing.T, cash string) (*payables.Book, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(nil)
	if cash != "0" {
		_, err := l.Post(ledger.Transaction{Date: day0, Lines: []ledger.Line{
			ledger.DebitLine(ledger.Cash, usd(cash)),
			ledger.CreditLine(ledger.OwnerEquity, usd(cash)),
		}})
		require.NoError(t, err)
	}
	return payables.New(l, ids.New("test")), l
}

func rent(amount string, due calendar.Date) payables.Bill {
	return payables.Bill{Payee: "Landlord", Source: payables.SourceExpense, Amount: usd(amount), Issued: due, Due: due}
}

func TestAccrue_PostsLiability(t *testing.T) {
	book, l := newBook(t, "1000")

	bill, err := book.Accrue(rent("300", day0), []ledger.Line{ledger.DebitLine(ledger.OperatingExpense, usd("300"))}, "rent")

	require.NoError(t, err)
	assert.Equal(t, payables.StatusOpen, bill.Status)
	assert.NotEmpty(t, bill.ID)
	assert.True(t, l.Current(ledger.AccountsPayable).Equal(usd("300")))
	assert.True(t, l.TrialBalance().IsZero())
}

func TestPay_SettlesFromCash(t *testing.T) {
	book, l := newBook(t, "1000")
	bill, err := book.Accrue(rent("300", day0), []ledger.Line{ledger.DebitLine(ledger.OperatingExpense, usd("300"))}, "rent")
	require.NoError(t, err)

	paid, err := book.Pay(bill.ID, day0.AddDays(1))

	require.NoError(t, err)
	assert.Equal(t, payables.StatusPaid, paid.Status)
	assert.True(t, l.Current(ledger.Cash).Equal(usd("700")))
	assert.True(t, l.Current(ledger.AccountsPayable).IsZero())

	_, err = book.Pay(bill.ID, day0.AddDays(1))
	assert.ErrorIs(t, err, payables.ErrAlreadyPaid)
	_, err = book.Pay("missing", day0)
	assert.ErrorIs(t, err, payables.ErrBillNotFound)
}

func TestPay_InsufficientCashLeavesBillOpen(t *testing.T) {
	book, l := newBook(t, "100")
	bill, err := book.Accrue(rent("300", day0), []ledger.Line{ledger.DebitLine(ledger.OperatingExpense, usd("300"))}, "rent")
	require.NoError(t, err)

	_, err = book.Pay(bill.ID, day0)

	var cashErr *ledger.InsufficientCashError
	require.ErrorAs(t, err, &cashErr)
	assert.True(t, cashErr.Required.Equal(usd("300")))
	got, _ := book.Get(bill.ID)
	assert.Equal(t, payables.StatusOpen, got.Status)
	assert.True(t, l.Current(ledger.Cash).Equal(usd("100")))
}

func TestSettle_PaysDueAndFlagsOverdue(t *testing.T) {
	// GIVEN: 500 cash and three bills
	book, l := newBook(t, "500")
	debit := func(a string) []ledger.Line { return []ledger.Line{ledger.DebitLine(ledger.OperatingExpense, usd(a))} }
	_, err := book.Accrue(rent("200", day0), debit("200"), "a")
	require.NoError(t, err)
	_, err = book.Accrue(rent("400", day0), debit("400"), "b")
	require.NoError(t, err)
	future, err := book.Accrue(payables.Bill{Payee: "Later", Amount: usd("50"), Issued: day0, Due: day0.AddDays(10)}, debit("50"), "c")
	require.NoError(t, err)

	// WHEN: settling on the due day
	s, err := book.Settle(day0)

	// THEN: the first fits, the second goes overdue, the future one is untouched
	require.NoError(t, err)
	require.Len(t, s.Paid, 1)
	require.Len(t, s.NewOverdue, 1)
	assert.True(t, s.NewOverdue[0].Amount.Equal(usd("400")))
	got, _ := book.Get(future.ID)
	assert.Equal(t, payables.StatusOpen, got.Status)
	assert.True(t, l.Current(ledger.Cash).Equal(usd("300")))

	// a later settlement with more cash retries the overdue bill
	_, err = l.Post(ledger.Transaction{Date: day0.AddDays(1), Lines: []ledger.Line{
		ledger.DebitLine(ledger.Cash, usd("200")),
		ledger.CreditLine(ledger.OwnerEquity, usd("200")),
	}})
	require.NoError(t, err)
	s, err = book.Settle(day0.AddDays(1))
	require.NoError(t, err)
	require.Len(t, s.Paid, 1)
	assert.Empty(t, s.NewOverdue, "already overdue bills are not reported twice")
	assert.True(t, l.Current(ledger.Cash).Equal(usd("100")))
}

func TestAging_Buckets(t *testing.T) {
	book, _ := newBook(t, "0")
	debit := func(a string) []ledger.Line { return []ledger.Line{ledger.DebitLine(ledger.OperatingExpense, usd(a))} }
	asOf := day0.AddDays(100)
	for _, tc := range []struct {
		amount string
		due    calendar.Date
	}{
		{"10", asOf.AddDays(5)},   // current
		{"20", asOf.AddDays(-10)}, // 1-30
		{"30", asOf.AddDays(-45)}, // 31-60
		{"40", asOf.AddDays(-95)}, // 90+
	} {
		_, err := book.Accrue(payables.Bill{Payee: "X", Amount: usd(tc.amount), Issued: day0, Due: tc.due}, debit(tc.amount), "")
		require.NoError(t, err)
	}

	a := book.Aging(asOf)

	assert.True(t, a.Total.Equal(usd("100")))
	assert.True(t, a.Overdue.Equal(usd("90")))
	want := []string{"10", "20", "30", "0", "40"}
	for i, w := range want {
		assert.True(t, a.Buckets[i].Total.Equal(usd(w)), "bucket %s", a.Buckets[i].Label)
	}
}

func TestRecord_Validation(t *testing.T) {
	book, _ := newBook(t, "0")

	_, err := book.Record(payables.Bill{Amount: usd("0"), Issued: day0, Due: day0})
	assert.ErrorIs(t, err, payables.ErrInvalidBill)

	_, err = book.Record(payables.Bill{Amount: usd("5"), Issued: day0, Due: day0.AddDays(-1)})
	assert.ErrorIs(t, err, payables.ErrInvalidBill)
}
