package ledger

import (
	"fmt"
	"sort"
)

// =============================================================================
// CHART OF ACCOUNTS
// =============================================================================

type AccountCode string

type AccountType string

const (
	TypeAsset       AccountType = "asset"
	TypeLiability   AccountType = "liability"
	TypeEquity      AccountType = "equity"
	TypeRevenue     AccountType = "revenue"
	TypeCostOfSales AccountType = "cost_of_sales"
	TypeExpense     AccountType = "expense"
)

// Side is the column a line posts to.
type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

// NormalSide returns the side on which the account type grows.
func (t AccountType) NormalSide() Side {
	switch t {
	case TypeAsset, TypeCostOfSales, TypeExpense:
		return Debit
	default:
		return Credit
	}
}

// IsIncomeStatement reports whether balances of this type close into retained earnings.
func (t AccountType) IsIncomeStatement() bool {
	return t == TypeRevenue || t == TypeCostOfSales || t == TypeExpense
}

// Account is immutable once the chart is built.
type Account struct {
	Code          AccountCode `json:"code"`
	Name          string      `json:"name"`
	Type          AccountType `json:"type"`
	AllowNegative bool        `json:"allow_negative"`
	order         int
}

func (a Account) NormalSide() Side { return a.Type.NormalSide() }

// Standard accounts used by the simulation.
const (
	Cash             AccountCode = "1000-cash"
	Inventory        AccountCode = "1200-inventory"
	GoodsInTransit   AccountCode = "1250-goods-in-transit"
	AccountsPayable  AccountCode = "2000-accounts-payable"
	InterestPayable  AccountCode = "2100-interest-payable"
	LoanPayable      AccountCode = "2500-loan-payable"
	OwnerEquity      AccountCode = "3000-owner-equity"
	SalesRevenue     AccountCode = "4000-sales-revenue"
	COGS             AccountCode = "5000-cogs"
	FreightExpense   AccountCode = "6100-freight"
	OperatingExpense AccountCode = "6200-operating"
	MarketingExpense AccountCode = "6300-marketing"
	InterestExpense  AccountCode = "6400-interest"
)

// Chart is the fixed set of accounts a ledger accepts.
type Chart struct {
	accounts map[AccountCode]Account
}

// NewChart builds a chart. Account codes must be unique.
func NewChart(accounts ...Account) (*Chart, error) {
	c := &Chart{accounts: make(map[AccountCode]Account, len(accounts))}
	for i, a := range accounts {
		if a.Code == "" {
			return nil, fmt.Errorf("account %d: empty code", i)
		}
		if _, dup := c.accounts[a.Code]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, a.Code)
		}
		a.order = i
		c.accounts[a.Code] = a
	}
	return c, nil
}

// DefaultChart is the retail chart. Cash and stock accounts never go negative.
func DefaultChart() *Chart {
	c, err := NewChart(
		Account{Code: Cash, Name: "Cash", Type: TypeAsset},
		Account{Code: Inventory, Name: "Inventory", Type: TypeAsset},
		Account{Code: GoodsInTransit, Name: "Goods in Transit", Type: TypeAsset},
		Account{Code: AccountsPayable, Name: "Accounts Payable", Type: TypeLiability},
		Account{Code: InterestPayable, Name: "Interest Payable", Type: TypeLiability},
		Account{Code: LoanPayable, Name: "Loans Payable", Type: TypeLiability},
		Account{Code: OwnerEquity, Name: "Owner Equity", Type: TypeEquity},
		Account{Code: SalesRevenue, Name: "Sales Revenue", Type: TypeRevenue},
		Account{Code: COGS, Name: "Cost of Goods Sold", Type: TypeCostOfSales},
		Account{Code: FreightExpense, Name: "Freight In", Type: TypeExpense},
		Account{Code: OperatingExpense, Name: "Operating Expenses", Type: TypeExpense},
		Account{Code: MarketingExpense, Name: "Marketing Expenses", Type: TypeExpense},
		Account{Code: InterestExpense, Name: "Interest Expense", Type: TypeExpense},
	)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Chart) Lookup(code AccountCode) (Account, bool) {
	a, ok := c.accounts[code]
	return a, ok
}

// Accounts returns the accounts in declaration order.
func (c *Chart) Accounts() []Account {
	out := make([]Account, 0, len(c.accounts))
	for _, a := range c.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}
