package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the closed set of ledger entry kinds.
type TransactionType string

const (
	TxDeposit          TransactionType = "deposit"
	TxWithdrawal       TransactionType = "withdrawal"
	TxInvestment       TransactionType = "investment"
	TxBonus            TransactionType = "bonus"
	TxPromo            TransactionType = "promo"
	TxReturn           TransactionType = "return"
	TxCheckIn          TransactionType = "check-in"
	TxTreasureCost     TransactionType = "treasure_cost"
	TxTreasureWin      TransactionType = "treasure_win"
	TxWithdrawalRefund TransactionType = "withdrawal_refund"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxInvestment, TxBonus, TxPromo, TxReturn,
		TxCheckIn, TxTreasureCost, TxTreasureWin, TxWithdrawalRefund:
		return true
	}
	return false
}

// TransactionStatus is pending, success or failed. No transition leaves success or failed.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	StatusSuccess TransactionStatus = "success"
	StatusFailed  TransactionStatus = "failed"
)

// Transaction is a single ledger entry of an account. Seq orders entries by creation.
type Transaction struct {
	ID          string            `gorm:"primaryKey;size:36" json:"id"`
	AccountID   uint              `gorm:"index:idx_tx_account_seq,priority:1;not null" json:"-"`
	Seq         int64             `gorm:"index:idx_tx_account_seq,priority:2;not null" json:"seq"`
	Type        TransactionType   `gorm:"size:32;not null" json:"type"`
	Status      TransactionStatus `gorm:"size:16;index;not null" json:"status"`
	Amount      decimal.Decimal   `gorm:"type:decimal(18,4);not null" json:"amount"`
	Date        time.Time         `gorm:"not null" json:"date"`
	Description string            `gorm:"size:255" json:"description"`
	Reference   string            `gorm:"size:128" json:"reference,omitempty"`
	IsProcessed bool              `gorm:"not null;default:false" json:"is_processed"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
}

// IsPending reports whether the transaction is still awaiting resolution.
func (t Transaction) IsPending() bool {
	return t.Status == StatusPending
}
