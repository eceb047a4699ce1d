package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// KYC states of an account.
const (
	KYCPending  = "Pending"
	KYCVerified = "Verified"
)

// BankAccount is the payout destination a user binds once.
type BankAccount struct {
	Name     string `gorm:"column:bank_holder;size:128" json:"name"`
	BankName string `gorm:"column:bank_name;size:128" json:"bank_name"`
	UpiID    string `gorm:"column:bank_upi_id;size:128" json:"upi_id"`
}

// Empty reports whether no bank account has been bound.
func (b BankAccount) Empty() bool {
	return b.UpiID == "" && b.BankName == "" && b.Name == ""
}

// Account is the persisted per-user wallet. Balance is a cache of the transaction fold and is
// reconciled against it on every derivation pass.
type Account struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	UserID        uint   `gorm:"uniqueIndex;not null" json:"user_id"`
	SchemaVersion int    `gorm:"not null;default:0" json:"-"`
	Name          string `gorm:"size:64" json:"name"`
	Email         string `gorm:"size:255" json:"email"`

	Balance       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"balance"`
	TotalDeposits decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_deposits"`
	TodaysReturn  decimal.Decimal `gorm:"-" json:"todays_return"`

	ReferralCode string `gorm:"size:16;uniqueIndex" json:"referral_code"`
	ReferredBy   string `gorm:"size:16" json:"-"`

	LoginStreak     int        `gorm:"not null;default:0" json:"login_streak"`
	LastLoginDate   *time.Time `json:"last_login_date"`
	CheckInStreak   int        `gorm:"not null;default:0" json:"check_in_streak"`
	LastCheckInDate *time.Time `json:"last_check_in_date"`

	IsFirstLogin        bool `gorm:"not null;default:false" json:"-"`
	FirstInvestmentMade bool `gorm:"not null;default:false" json:"first_investment_made"`
	IsBanned            bool `gorm:"not null;default:false" json:"is_banned"`

	ClaimedAchievements []string             `gorm:"serializer:json;type:text" json:"claimed_achievements"`
	UsedPromoCodes      map[string]time.Time `gorm:"serializer:json;type:text" json:"used_promo_codes"`

	LinkedBankAccount BankAccount `gorm:"embedded" json:"linked_bank_account"`
	WithdrawalPinHash string      `gorm:"size:255" json:"-"`
	KYCStatus         string      `gorm:"size:16" json:"kyc_status"`

	NextSeq            int64           `gorm:"not null;default:0" json:"-"`
	CheckpointSeq      int64           `gorm:"not null;default:0" json:"-"`
	CheckpointBalance  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"-"`
	CheckpointDeposits decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"-"`
	LastDerivedAt      *time.Time      `json:"last_derived_at"`

	Transactions []Transaction `gorm:"foreignKey:AccountID" json:"transactions"`
	Investments  []Investment  `gorm:"foreignKey:AccountID" json:"investments"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasWithdrawalPin reports whether a PIN has been set.
func (a *Account) HasWithdrawalPin() bool {
	return a.WithdrawalPinHash != ""
}

// FindTransaction returns the index of the transaction with id, or -1.
func (a *Account) FindTransaction(id string) int {
	for i := range a.Transactions {
		if a.Transactions[i].ID == id {
			return i
		}
	}
	return -1
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (a *Account) BeforeUpdate(tx *gorm.DB) error {
	a.UpdatedAt = time.Now()
	return nil
}
