package ledger

import (
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

// PromoPolicy selects how the one-promo-per-day limit is enforced.
type PromoPolicy string

const (
	// PromoGlobalDaily allows at most one code of any kind per calendar day.
	PromoGlobalDaily PromoPolicy = "global_daily"
	// PromoPerCode only forbids reusing a code; different codes may be used the same day.
	PromoPerCode PromoPolicy = "per_code"
)

// Valid reports whether p names a known policy.
func (p PromoPolicy) Valid() bool {
	return p == PromoGlobalDaily || p == PromoPerCode
}

// Rules carries the tunable constants of the ledger.
type Rules struct {
	DepositGrace        time.Duration
	WithdrawalFailAfter time.Duration
	Location            *time.Location
	PromoPolicy         PromoPolicy

	TreasureCost         decimal.Decimal
	TreasureRewardMin    int
	TreasureRewardMax    int
	CheckInRewardMin     int
	CheckInRewardMax     int
	AchievementRewardMin int
	AchievementRewardMax int

	// Epsilon is the tolerated drift between the stored and the recomputed balance.
	Epsilon decimal.Decimal
}

// DefaultLocation is the calendar used for day boundaries.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// DefaultRules returns the canonical constants.
func DefaultRules() Rules {
	return Rules{
		DepositGrace:         2 * time.Minute,
		WithdrawalFailAfter:  48 * time.Hour,
		Location:             DefaultLocation(),
		PromoPolicy:          PromoGlobalDaily,
		TreasureCost:         decimal.NewFromInt(10),
		TreasureRewardMin:    1,
		TreasureRewardMax:    5,
		CheckInRewardMin:     1,
		CheckInRewardMax:     10,
		AchievementRewardMin: 5,
		AchievementRewardMax: 50,
		Epsilon:              decimal.RequireFromString("0.001"),
	}
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// StartOfDay returns midnight of t's calendar day.
func (r Rules) StartOfDay(t time.Time) time.Time {
	loc := r.location()
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysBetween counts calendar-day boundaries crossed going from a to b. Negative when b is
// on an earlier day.
func (r Rules) DaysBetween(a, b time.Time) int {
	loc := r.location()
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// SameDay reports whether a and b fall on the same calendar day.
func (r Rules) SameDay(a, b time.Time) bool {
	return r.DaysBetween(a, b) == 0
}
