package ledger

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cppla/bharatinvest/catalog"
	"github.com/cppla/bharatinvest/models"
)

var newID = uuid.NewString

// Changes lists what a derivation pass or command touched, so the store can write only that.
type Changes struct {
	Account      bool
	Transactions []string
	Investments  []string
	Removed      []string
}

// Empty reports whether nothing needs persisting.
func (c Changes) Empty() bool {
	return !c.Account && len(c.Transactions) == 0 && len(c.Investments) == 0 && len(c.Removed) == 0
}

// Merge folds o into c.
func (c *Changes) Merge(o Changes) {
	c.Account = c.Account || o.Account
	for _, id := range o.Transactions {
		c.touchTx(id)
	}
	for _, id := range o.Investments {
		c.touchInvestment(id)
	}
	for _, id := range o.Removed {
		c.remove(id)
	}
}

func (c *Changes) touchTx(id string) {
	if !slices.Contains(c.Transactions, id) {
		c.Transactions = append(c.Transactions, id)
	}
}

func (c *Changes) touchInvestment(id string) {
	if !slices.Contains(c.Investments, id) {
		c.Investments = append(c.Investments, id)
	}
}

func (c *Changes) remove(id string) {
	c.Transactions = slices.DeleteFunc(c.Transactions, func(s string) bool { return s == id })
	if !slices.Contains(c.Removed, id) {
		c.Removed = append(c.Removed, id)
	}
}

// Engine derives account state and runs the commands that mutate it.
type Engine struct {
	rules   Rules
	catalog *catalog.Catalog
	clock   Clock
	rand    RandSource
}

// NewEngine builds an engine. Nil collaborators fall back to the wall clock, the global
// generator and the built-in catalog.
func NewEngine(rules Rules, cat *catalog.Catalog, clock Clock, rnd RandSource) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if rnd == nil {
		rnd = GlobalRand{}
	}
	if cat == nil {
		cat = catalog.Default()
	}
	return &Engine{rules: rules, catalog: cat, clock: clock, rand: rnd}
}

func (e *Engine) Rules() Rules              { return e.rules }
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }
func (e *Engine) Now() time.Time            { return e.clock.Now() }

// Clone deep-copies the mutable parts of an account.
func Clone(a models.Account) models.Account {
	c := a
	if a.Transactions != nil {
		c.Transactions = make([]models.Transaction, len(a.Transactions))
		copy(c.Transactions, a.Transactions)
	}
	if a.Investments != nil {
		c.Investments = make([]models.Investment, len(a.Investments))
		copy(c.Investments, a.Investments)
	}
	if a.ClaimedAchievements != nil {
		c.ClaimedAchievements = make([]string, len(a.ClaimedAchievements))
		copy(c.ClaimedAchievements, a.ClaimedAchievements)
	}
	c.UsedPromoCodes = maps.Clone(a.UsedPromoCodes)
	return c
}

// Derive brings raw up to date with now. It is idempotent for a fixed now; the returned Changes
// are empty when raw was already current.
func (e *Engine) Derive(raw models.Account, now time.Time) (models.Account, Changes) {
	acct := Clone(raw)
	ch := e.Normalize(&acct, now)

	e.updateLoginStreak(&acct, now, &ch)
	e.resolvePending(&acct, now, &ch)
	todays := e.accruePayouts(&acct, now, &ch)
	e.reconcile(&acct, now, &ch)
	e.decayCheckIn(&acct, now, &ch)

	if !ch.Empty() {
		t := now
		acct.LastDerivedAt = &t
		ch.Account = true
	}
	acct.TodaysReturn = todays
	return acct, ch
}

func (e *Engine) updateLoginStreak(acct *models.Account, now time.Time, ch *Changes) {
	if acct.LastLoginDate != nil {
		switch days := e.rules.DaysBetween(*acct.LastLoginDate, now); {
		case days <= 0:
			return
		case days == 1:
			acct.LoginStreak++
		default:
			acct.LoginStreak = 1
		}
	} else {
		acct.LoginStreak = 1
	}
	t := now
	acct.LastLoginDate = &t
	ch.Account = true
}

func (e *Engine) resolvePending(acct *models.Account, now time.Time, ch *Changes) {
	for i := range acct.Transactions {
		tx := &acct.Transactions[i]
		if !tx.IsPending() {
			continue
		}
		age := now.Sub(tx.Date)
		switch {
		case tx.Type == models.TxDeposit && age >= e.rules.DepositGrace:
			tx.Status = models.StatusSuccess
		case tx.Type == models.TxWithdrawal && age >= e.rules.WithdrawalFailAfter:
			tx.Status = models.StatusFailed
		default:
			continue
		}
		t := now
		tx.ResolvedAt = &t
		ch.touchTx(tx.ID)
	}
	e.settle(acct, now, ch)
}

// settle applies the balance consequences of resolved but unprocessed deposits and
// withdrawals, whoever resolved them.
func (e *Engine) settle(acct *models.Account, now time.Time, ch *Changes) {
	var refunds []models.Transaction
	for i := range acct.Transactions {
		tx := &acct.Transactions[i]
		if tx.IsPending() || tx.IsProcessed {
			continue
		}
		switch tx.Type {
		case models.TxDeposit:
			if tx.Status == models.StatusSuccess {
				acct.Balance = acct.Balance.Add(tx.Amount)
				acct.TotalDeposits = acct.TotalDeposits.Add(tx.Amount)
			}
		case models.TxWithdrawal:
			if tx.Status == models.StatusFailed {
				refunds = append(refunds, models.Transaction{
					Type:        models.TxWithdrawalRefund,
					Status:      models.StatusSuccess,
					Amount:      tx.Amount,
					Date:        now,
					Description: "Refund for failed withdrawal",
					Reference:   tx.ID,
				})
			}
		default:
			continue
		}
		tx.IsProcessed = true
		ch.touchTx(tx.ID)
	}
	for _, r := range refunds {
		e.post(acct, ch, r)
	}
}

func (e *Engine) accruePayouts(acct *models.Account, now time.Time, ch *Changes) decimal.Decimal {
	todays := decimal.Zero
	var returns []models.Transaction
	for i := range acct.Investments {
		inv := &acct.Investments[i]
		end := inv.EndDate()
		daily := DailyReturn(*inv)
		if now.Before(end) {
			todays = todays.Add(daily)
		}
		if !inv.LastPayoutDate.Before(end) {
			continue
		}
		target := now
		if end.Before(target) {
			target = end
		}
		days := e.rules.DaysBetween(inv.LastPayoutDate, target)
		if days <= 0 {
			continue
		}
		base := e.rules.StartOfDay(inv.LastPayoutDate)
		for k := 1; k <= days; k++ {
			day := base.AddDate(0, 0, k)
			n := e.rules.DaysBetween(inv.StartDate, day)
			returns = append(returns, models.Transaction{
				Type:        models.TxReturn,
				Status:      models.StatusSuccess,
				Amount:      PayoutOn(*inv, n),
				Date:        day,
				Description: fmt.Sprintf("Daily return from %s (day %d)", inv.PlanName, n),
				Reference:   inv.ID,
			})
		}
		inv.LastPayoutDate = target
		ch.touchInvestment(inv.ID)
	}
	for _, r := range returns {
		e.post(acct, ch, r)
	}
	return todays
}

func (e *Engine) reconcile(acct *models.Account, now time.Time, ch *Changes) {
	balance, deposits := Recompute(acct)
	diff := acct.Balance.Sub(balance)
	switch {
	case diff.GreaterThan(e.rules.Epsilon):
		// Surplus on the stored balance is an out-of-band credit; record it and keep the balance.
		e.record(acct, ch, models.Transaction{
			Type:        models.TxBonus,
			Status:      models.StatusSuccess,
			Amount:      diff,
			Date:        now,
			Description: "Balance adjustment",
		})
	case diff.Abs().GreaterThan(e.rules.Epsilon):
		acct.Balance = balance
		ch.Account = true
	}
	if !acct.TotalDeposits.Equal(deposits) {
		acct.TotalDeposits = deposits
		ch.Account = true
	}
	if advanceCheckpoint(acct) {
		ch.Account = true
	}
}

func (e *Engine) decayCheckIn(acct *models.Account, now time.Time, ch *Changes) {
	if acct.LastCheckInDate == nil || acct.CheckInStreak == 0 {
		return
	}
	if e.rules.DaysBetween(*acct.LastCheckInDate, now) > 1 {
		acct.CheckInStreak = 0
		ch.Account = true
	}
}

// record appends tx with the next sequence number without touching the balance.
func (e *Engine) record(acct *models.Account, ch *Changes, tx models.Transaction) models.Transaction {
	if tx.ID == "" {
		tx.ID = newID()
	}
	acct.NextSeq++
	tx.Seq = acct.NextSeq
	tx.AccountID = acct.ID
	acct.Transactions = append(acct.Transactions, tx)
	ch.touchTx(tx.ID)
	ch.Account = true
	return tx
}

// post appends tx and applies its balance effect.
func (e *Engine) post(acct *models.Account, ch *Changes, tx models.Transaction) models.Transaction {
	tx = e.record(acct, ch, tx)
	acct.Balance = acct.Balance.Add(Effect(tx))
	return tx
}
