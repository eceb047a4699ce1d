package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cppla/bharatinvest/ledger"
)

func TestApplyJSONSections_ReadsLedgerAndScheduler(t *testing.T) {
	raw := map[string]any{
		"app": map[string]any{"AppPort": "9000", "AdminUsernames": []any{"root"}},
		"ledger": map[string]any{
			"DepositGraceSec":     float64(30),
			"WithdrawalFailHours": float64(24),
			"PromoPolicy":         "per_code",
			"TreasureCost":        12.5,
		},
		"recorder":  map[string]any{"SQLitePath": "data/audit.db"},
		"scheduler": map[string]any{"SweepCron": "*/30 * * * * *"},
	}
	var c AppConfig
	applyJSONSections(raw, &c)
	applyDefaults(&c)

	if c.AppPort != "9000" || len(c.AdminUsernames) != 1 {
		t.Fatalf("app section not read: %+v", c)
	}
	if c.RecorderPath != "data/audit.db" || c.SweepCron != "*/30 * * * * *" || c.SweepBatch != 500 {
		t.Fatalf("recorder/scheduler not read: %q %q %d", c.RecorderPath, c.SweepCron, c.SweepBatch)
	}

	r := c.LedgerRules()
	if r.DepositGrace != 30*time.Second || r.WithdrawalFailAfter != 24*time.Hour {
		t.Errorf("windows = %v %v", r.DepositGrace, r.WithdrawalFailAfter)
	}
	if r.PromoPolicy != ledger.PromoPerCode {
		t.Errorf("policy = %s", r.PromoPolicy)
	}
	if !r.TreasureCost.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("treasure cost = %s", r.TreasureCost)
	}
	if r.Location.String() != "Asia/Kolkata" {
		t.Errorf("location = %s", r.Location)
	}
}

func TestLedgerRules_IgnoresInvalidValues(t *testing.T) {
	c := AppConfig{PromoPolicy: "weekly", Location: "Mars/Olympus", CheckInRewardMin: 9, CheckInRewardMax: 3}
	r := c.LedgerRules()
	def := ledger.DefaultRules()
	if r.PromoPolicy != def.PromoPolicy {
		t.Errorf("policy = %s", r.PromoPolicy)
	}
	if r.CheckInRewardMin != def.CheckInRewardMin || r.CheckInRewardMax != def.CheckInRewardMax {
		t.Errorf("inverted range accepted: %d..%d", r.CheckInRewardMin, r.CheckInRewardMax)
	}
	if r.Location.String() != def.Location.String() {
		t.Errorf("location = %s", r.Location)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" a, ,b ,c")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("got %v", got)
	}
}
