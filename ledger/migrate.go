package ledger

import (
	"sort"
	"time"

	"github.com/cppla/bharatinvest/models"
)

// SchemaVersion is the account layout the engine writes.
const SchemaVersion = 2

// Normalize fills defaults for records written by older layouts so later steps never check
// for missing fields. Version 1 records still carry the first-login flag instead of a signup
// bonus transaction, and only flagged failed withdrawals as processed.
func (e *Engine) Normalize(acct *models.Account, now time.Time) Changes {
	var ch Changes

	if acct.Transactions == nil {
		acct.Transactions = []models.Transaction{}
	}
	if acct.Investments == nil {
		acct.Investments = []models.Investment{}
	}
	if acct.ClaimedAchievements == nil {
		acct.ClaimedAchievements = []string{}
		ch.Account = true
	}
	if acct.UsedPromoCodes == nil {
		acct.UsedPromoCodes = map[string]time.Time{}
		ch.Account = true
	}
	if acct.KYCStatus == "" {
		acct.KYCStatus = models.KYCPending
		ch.Account = true
	}

	e.assignSequence(acct, &ch)

	if acct.SchemaVersion < SchemaVersion {
		markLegacySettled(acct, &ch)
	}

	if acct.IsFirstLogin {
		e.post(acct, &ch, models.Transaction{
			Type:        models.TxBonus,
			Status:      models.StatusSuccess,
			Amount:      e.catalog.SignupBonus,
			Date:        now,
			Description: "Signup bonus",
		})
		acct.IsFirstLogin = false
	}

	if acct.SchemaVersion < SchemaVersion {
		acct.SchemaVersion = SchemaVersion
		ch.Account = true
	}
	return ch
}

// assignSequence numbers unsequenced transactions in date order after the highest known
// sequence, then orders the slice by sequence.
func (e *Engine) assignSequence(acct *models.Account, ch *Changes) {
	var maxSeq int64
	var unsequenced []int
	for i, tx := range acct.Transactions {
		if tx.Seq == 0 {
			unsequenced = append(unsequenced, i)
		} else if tx.Seq > maxSeq {
			maxSeq = tx.Seq
		}
	}
	if acct.NextSeq < maxSeq {
		acct.NextSeq = maxSeq
		ch.Account = true
	}
	if len(unsequenced) > 0 {
		sort.SliceStable(unsequenced, func(a, b int) bool {
			return acct.Transactions[unsequenced[a]].Date.Before(acct.Transactions[unsequenced[b]].Date)
		})
		for _, i := range unsequenced {
			if acct.Transactions[i].ID == "" {
				acct.Transactions[i].ID = newID()
			}
			acct.NextSeq++
			acct.Transactions[i].Seq = acct.NextSeq
			acct.Transactions[i].AccountID = acct.ID
			ch.touchTx(acct.Transactions[i].ID)
		}
		ch.Account = true
	}
	sort.SliceStable(acct.Transactions, func(a, b int) bool {
		return acct.Transactions[a].Seq < acct.Transactions[b].Seq
	})
}

// markLegacySettled flags resolved deposits and withdrawals of an older record as processed.
// Their effect is already in the stored balance. Failed withdrawals keep their flag so one that
// was never refunded still gets its refund.
func markLegacySettled(acct *models.Account, ch *Changes) {
	for i := range acct.Transactions {
		tx := &acct.Transactions[i]
		if tx.IsPending() || tx.IsProcessed {
			continue
		}
		switch {
		case tx.Type == models.TxDeposit:
		case tx.Type == models.TxWithdrawal && tx.Status != models.StatusFailed:
		default:
			continue
		}
		tx.IsProcessed = true
		ch.touchTx(tx.ID)
	}
}
