package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/cppla/bharatinvest/models"
)

// Effect is the signed contribution of tx to the account balance. Withdrawals count in every
// status: the pending hold, the payout, and the failed hold that its refund reverses. Every
// other entry counts only once it succeeded.
func Effect(tx models.Transaction) decimal.Decimal {
	switch tx.Type {
	case models.TxWithdrawal:
		return tx.Amount.Neg()
	case models.TxInvestment, models.TxTreasureCost:
		if tx.Status == models.StatusSuccess {
			return tx.Amount.Neg()
		}
	case models.TxDeposit, models.TxReturn, models.TxBonus, models.TxPromo,
		models.TxTreasureWin, models.TxWithdrawalRefund, models.TxCheckIn:
		if tx.Status == models.StatusSuccess {
			return tx.Amount
		}
	}
	return decimal.Zero
}

// depositEffect is the contribution of tx to the lifetime deposit total.
func depositEffect(tx models.Transaction) decimal.Decimal {
	if tx.Type == models.TxDeposit && tx.Status == models.StatusSuccess {
		return tx.Amount
	}
	return decimal.Zero
}

// Settled reports whether tx can no longer change its balance effect.
func Settled(tx models.Transaction) bool {
	if tx.IsPending() {
		return false
	}
	if tx.Type == models.TxDeposit || tx.Type == models.TxWithdrawal {
		return tx.IsProcessed
	}
	return true
}

// Recompute folds the transactions above the checkpoint onto it and returns the balance and the
// deposit total the history implies.
func Recompute(acct *models.Account) (balance, deposits decimal.Decimal) {
	balance, deposits = acct.CheckpointBalance, acct.CheckpointDeposits
	for _, tx := range acct.Transactions {
		if tx.Seq <= acct.CheckpointSeq {
			continue
		}
		balance = balance.Add(Effect(tx))
		deposits = deposits.Add(depositEffect(tx))
	}
	return balance, deposits
}

// advanceCheckpoint moves the checkpoint over the leading run of settled transactions.
// Transactions must be ordered by Seq.
func advanceCheckpoint(acct *models.Account) bool {
	moved := false
	for _, tx := range acct.Transactions {
		if tx.Seq <= acct.CheckpointSeq {
			continue
		}
		if !Settled(tx) {
			break
		}
		acct.CheckpointBalance = acct.CheckpointBalance.Add(Effect(tx))
		acct.CheckpointDeposits = acct.CheckpointDeposits.Add(depositEffect(tx))
		acct.CheckpointSeq = tx.Seq
		moved = true
	}
	return moved
}

// AuditReport compares the stored figures with a full replay of the history.
type AuditReport struct {
	Transactions       int             `json:"transactions"`
	StoredBalance      decimal.Decimal `json:"stored_balance"`
	ReplayedBalance    decimal.Decimal `json:"replayed_balance"`
	IncrementalBalance decimal.Decimal `json:"incremental_balance"`
	StoredDeposits     decimal.Decimal `json:"stored_deposits"`
	ReplayedDeposits   decimal.Decimal `json:"replayed_deposits"`
	CheckpointSeq      int64           `json:"checkpoint_seq"`
	Consistent         bool            `json:"consistent"`
}

// Audit replays every transaction from the start, ignoring the checkpoint.
func Audit(acct *models.Account, eps decimal.Decimal) AuditReport {
	var bal, deps decimal.Decimal
	for _, tx := range acct.Transactions {
		bal = bal.Add(Effect(tx))
		deps = deps.Add(depositEffect(tx))
	}
	inc, _ := Recompute(acct)
	within := func(a, b decimal.Decimal) bool { return a.Sub(b).Abs().LessThanOrEqual(eps) }
	return AuditReport{
		Transactions:       len(acct.Transactions),
		StoredBalance:      acct.Balance,
		ReplayedBalance:    bal,
		IncrementalBalance: inc,
		StoredDeposits:     acct.TotalDeposits,
		ReplayedDeposits:   deps,
		CheckpointSeq:      acct.CheckpointSeq,
		Consistent: within(bal, acct.Balance) && within(inc, bal) &&
			within(deps, acct.TotalDeposits),
	}
}

// DailyReturn is the per-day profit of inv, rounded to paise.
func DailyReturn(inv models.Investment) decimal.Decimal {
	if inv.Duration <= 0 {
		return decimal.Zero
	}
	return inv.ExpectedReturn.Sub(inv.Amount).Div(decimal.NewFromInt(int64(inv.Duration))).Round(2)
}

// PayoutOn is the return paid for day n of inv, counted from 1. The last day carries the rounding
// remainder so the payouts sum to exactly ExpectedReturn - Amount.
func PayoutOn(inv models.Investment, n int) decimal.Decimal {
	daily := DailyReturn(inv)
	if n < inv.Duration {
		return daily
	}
	paid := daily.Mul(decimal.NewFromInt(int64(inv.Duration - 1)))
	return inv.ExpectedReturn.Sub(inv.Amount).Sub(paid)
}
