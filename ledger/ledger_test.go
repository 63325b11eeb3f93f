package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var day1 = calendar.MustParse("2025-01-01")

func usd(s string) money.Money { return money.MustParse(s) }

func funded(t *testing.T, cash string) *ledger.Ledger {
	t.Helper()
	l := ledger.New(ledger.DefaultChart())
	_, err := l.Post(ledger.Transaction{
		Date: day1,
		Memo: "starting capital",
		Lines: []ledger.Line{
			ledger.DebitLine(ledger.Cash, usd(cash)),
			ledger.CreditLine(ledger.OwnerEquity, usd(cash)),
		},
	})
	require.NoError(t, err)
	return l
}

// =============================================================================
// POSTING
// =============================================================================

func TestPost_BalancedTransaction_UpdatesBalances(t *testing.T) {
	// GIVEN: a business funded with 50,000
	l := funded(t, "50000")

	// WHEN: buying goods on account
	entries, err := l.Post(ledger.Transaction{
		Date: day1.AddDays(1),
		Lines: []ledger.Line{
			ledger.DebitLine(ledger.Inventory, usd("2000")),
			ledger.CreditLine(ledger.AccountsPayable, usd("2000")),
		},
	})

	// THEN: both legs land with running balances
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].Sequence)
	assert.Equal(t, ledger.TransactionID("tx-000002"), entries[0].TransactionID)
	assert.Equal(t, entries[0].TransactionID, entries[1].TransactionID)
	assert.True(t, entries[0].RunningBalance.Equal(usd("2000")))
	assert.True(t, l.Current(ledger.AccountsPayable).Equal(usd("2000")))
	assert.True(t, l.TrialBalance().IsZero())
}

func TestPost_Imbalanced_RejectedWithoutSideEffects(t *testing.T) {
	l := funded(t, "100")
	before := l.Len()

	_, err := l.Post(ledger.Transaction{
		ID:   "bad",
		Date: day1,
		Lines: []ledger.Line{
			ledger.DebitLine(ledger.OperatingExpense, usd("10")),
			ledger.CreditLine(ledger.Cash, usd("9.99")),
		},
	})

	var imb *ledger.ImbalancedTransactionError
	require.ErrorAs(t, err, &imb)
	assert.ErrorIs(t, err, ledger.ErrImbalanced)
	assert.True(t, imb.Debits.Equal(usd("10")))
	assert.True(t, imb.Credits.Equal(usd("9.99")))
	assert.Equal(t, before, l.Len(), "no entry may be appended")
	assert.True(t, l.Current(ledger.Cash).Equal(usd("100")))
}

func TestPost_NegativeCash_Rejected(t *testing.T) {
	l := funded(t, "100")

	_, err := l.Post(ledger.Transaction{
		Date: day1,
		Lines: []ledger.Line{
			ledger.DebitLine(ledger.OperatingExpense, usd("100.01")),
			ledger.CreditLine(ledger.Cash, usd("100.01")),
		},
	})

	assert.ErrorIs(t, err, ledger.ErrNegativeBalance)
	assert.True(t, ledger.IsInvariantViolation(err))
	assert.True(t, l.Current(ledger.Cash).Equal(usd("100")))
}

func TestPost_MalformedInput(t *testing.T) {
	l := funded(t, "100")

	_, err := l.Post(ledger.Transaction{Date: day1, Lines: []ledger.Line{ledger.DebitLine(ledger.Cash, usd("1"))}})
	assert.ErrorIs(t, err, ledger.ErrTooFewLines)

	_, err = l.Post(ledger.Transaction{Date: day1, Lines: []ledger.Line{
		ledger.DebitLine("9999-nope", usd("1")),
		ledger.CreditLine(ledger.Cash, usd("1")),
	}})
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)

	_, err = l.Post(ledger.Transaction{Date: day1, Lines: []ledger.Line{
		ledger.DebitLine(ledger.OperatingExpense, usd("0")),
		ledger.CreditLine(ledger.Cash, usd("0")),
	}})
	assert.ErrorIs(t, err, ledger.ErrNonPositiveAmount)
}

func TestPost_RoundsLinesToCents(t *testing.T) {
	l := funded(t, "100")

	_, err := l.Post(ledger.Transaction{Date: day1, Lines: []ledger.Line{
		ledger.DebitLine(ledger.OperatingExpense, usd("3.333")),
		ledger.CreditLine(ledger.Cash, usd("3.333")),
	}})

	require.NoError(t, err)
	assert.True(t, l.Current(ledger.Cash).Equal(usd("96.67")))
}

// =============================================================================
// BALANCES
// =============================================================================

func TestBalance_AsOfIgnoresLaterEntries(t *testing.T) {
	l := funded(t, "1000")
	_, err := l.Post(ledger.Transaction{Date: day1.AddDays(5), Lines: []ledger.Line{
		ledger.DebitLine(ledger.MarketingExpense, usd("250")),
		ledger.CreditLine(ledger.Cash, usd("250")),
	}})
	require.NoError(t, err)

	before, err := l.Balance(ledger.Cash, day1.AddDays(4))
	require.NoError(t, err)
	after, err := l.Balance(ledger.Cash, day1.AddDays(5))
	require.NoError(t, err)

	assert.True(t, before.Equal(usd("1000")))
	assert.True(t, after.Equal(usd("750")))

	_, err = l.Balance("missing", day1)
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)
}

func TestTrialBalance_ZeroAfterManyPostings(t *testing.T) {
	l := funded(t, "50000")
	postings := [][]ledger.Line{
		{ledger.DebitLine(ledger.GoodsInTransit, usd("2000")), ledger.DebitLine(ledger.FreightExpense, usd("25")), ledger.CreditLine(ledger.Cash, usd("2025"))},
		{ledger.DebitLine(ledger.Inventory, usd("2000")), ledger.CreditLine(ledger.GoodsInTransit, usd("2000"))},
		{ledger.DebitLine(ledger.Cash, usd("3000")), ledger.CreditLine(ledger.SalesRevenue, usd("3000"))},
		{ledger.DebitLine(ledger.COGS, usd("1200")), ledger.CreditLine(ledger.Inventory, usd("1200"))},
	}
	for i, lines := range postings {
		_, err := l.Post(ledger.Transaction{Date: day1.AddDays(i), Lines: lines})
		require.NoError(t, err)
		assert.True(t, l.TrialBalance().IsZero(), "trial balance after posting %d", i)
	}
}

func TestRollbackTo_DiscardsUncommittedEntries(t *testing.T) {
	l := funded(t, "500")
	mark := l.Mark()

	_, err := l.Post(ledger.Transaction{Date: day1, Lines: []ledger.Line{
		ledger.DebitLine(ledger.OperatingExpense, usd("200")),
		ledger.CreditLine(ledger.Cash, usd("200")),
	}})
	require.NoError(t, err)

	l.RollbackTo(mark)

	assert.Equal(t, 2, l.Len())
	assert.True(t, l.Current(ledger.Cash).Equal(usd("500")))
	assert.True(t, l.Current(ledger.OperatingExpense).IsZero())
}

func TestRestore_ReplaysEntries(t *testing.T) {
	l := funded(t, "500")
	_, err := l.Post(ledger.Transaction{Date: day1, Lines: []ledger.Line{
		ledger.DebitLine(ledger.OperatingExpense, usd("20")),
		ledger.CreditLine(ledger.Cash, usd("20")),
	}})
	require.NoError(t, err)

	restored, err := ledger.Restore(ledger.DefaultChart(), l.Entries())
	require.NoError(t, err)
	assert.True(t, restored.Current(ledger.Cash).Equal(usd("480")))
	assert.Equal(t, l.Len(), restored.Len())

	// a dropped leg breaks the books
	broken := l.Entries()[:3]
	_, err = ledger.Restore(ledger.DefaultChart(), broken)
	assert.ErrorIs(t, err, ledger.ErrCorruptLedger)
}

func TestEntriesSince(t *testing.T) {
	l := funded(t, "10")
	assert.Len(t, l.EntriesSince(0), 2)
	assert.Len(t, l.EntriesSince(1), 1)
	assert.Empty(t, l.EntriesSince(2))
}
