package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Investment is a purchased plan paying daily returns until StartDate + Duration days.
type Investment struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	AccountID      uint            `gorm:"index;not null" json:"-"`
	PlanID         int             `gorm:"index;not null" json:"plan_id"`
	PlanName       string          `gorm:"size:128" json:"plan_name"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	ExpectedReturn decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"expected_return"`
	Duration       int             `gorm:"not null" json:"duration"`
	StartDate      time.Time       `gorm:"not null" json:"start_date"`
	LastPayoutDate time.Time       `gorm:"not null" json:"last_payout_date"`
}

// EndDate is the instant after which the investment accrues nothing further.
func (i Investment) EndDate() time.Time {
	return i.StartDate.AddDate(0, 0, i.Duration)
}

// Completed reports whether the investment has run its full duration at now.
func (i Investment) Completed(now time.Time) bool {
	return !now.Before(i.EndDate())
}
