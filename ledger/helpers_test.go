package ledger

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cppla/bharatinvest/catalog"
	"github.com/cppla/bharatinvest/models"
)

var ist = DefaultLocation()

// t0 is mid-morning so that small offsets never cross a day boundary.
var t0 = time.Date(2024, time.March, 10, 10, 0, 0, 0, ist)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *testClock) {
	t.Helper()
	clock := &testClock{now: t0}
	return NewEngine(DefaultRules(), catalog.Default(), clock, rand.New(rand.NewPCG(1, 2))), clock
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// freshAccount is a derived account holding only its signup bonus.
func freshAccount(t *testing.T, e *Engine) models.Account {
	t.Helper()
	res := e.CreateAccount(1, "Priya", "priya@example.com", "")
	acct, _ := e.Derive(res.Account, e.Now())
	return acct
}

// funded gives acct extra balance through a settled deposit.
func funded(t *testing.T, e *Engine, acct models.Account, amount string) models.Account {
	t.Helper()
	var ch Changes
	e.post(&acct, &ch, models.Transaction{
		Type:        models.TxDeposit,
		Status:      models.StatusSuccess,
		Amount:      dec(amount),
		Date:        e.Now(),
		IsProcessed: true,
	})
	acct.TotalDeposits = acct.TotalDeposits.Add(dec(amount))
	return acct
}

func countType(acct models.Account, typ models.TransactionType) int {
	n := 0
	for _, tx := range acct.Transactions {
		if tx.Type == typ {
			n++
		}
	}
	return n
}

func assertBalance(t *testing.T, acct models.Account, want string) {
	t.Helper()
	if !acct.Balance.Equal(dec(want)) {
		t.Fatalf("balance = %s, want %s", acct.Balance, want)
	}
}

func assertConsistent(t *testing.T, acct models.Account) {
	t.Helper()
	rep := Audit(&acct, DefaultRules().Epsilon)
	if !rep.Consistent {
		t.Fatalf("account inconsistent: %+v", rep)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
