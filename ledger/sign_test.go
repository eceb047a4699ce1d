package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cppla/bharatinvest/models"
)

func TestEffect_SignTable(t *testing.T) {
	cases := []struct {
		typ    models.TransactionType
		status models.TransactionStatus
		want   string
	}{
		{models.TxDeposit, models.StatusSuccess, "10"},
		{models.TxDeposit, models.StatusPending, "0"},
		{models.TxDeposit, models.StatusFailed, "0"},
		{models.TxReturn, models.StatusSuccess, "10"},
		{models.TxBonus, models.StatusSuccess, "10"},
		{models.TxPromo, models.StatusSuccess, "10"},
		{models.TxTreasureWin, models.StatusSuccess, "10"},
		{models.TxWithdrawalRefund, models.StatusSuccess, "10"},
		{models.TxCheckIn, models.StatusSuccess, "10"},
		{models.TxWithdrawal, models.StatusSuccess, "-10"},
		{models.TxWithdrawal, models.StatusPending, "-10"},
		{models.TxWithdrawal, models.StatusFailed, "-10"},
		{models.TxInvestment, models.StatusSuccess, "-10"},
		{models.TxTreasureCost, models.StatusSuccess, "-10"},
		{models.TxInvestment, models.StatusPending, "0"},
	}
	for _, tc := range cases {
		got := Effect(models.Transaction{Type: tc.typ, Status: tc.status, Amount: dec("10")})
		if !got.Equal(dec(tc.want)) {
			t.Errorf("%s/%s = %s, want %s", tc.typ, tc.status, got, tc.want)
		}
	}
}

func TestDailyReturn_RoundsToPaise(t *testing.T) {
	got := DailyReturn(models.Investment{Amount: dec("100"), ExpectedReturn: dec("410"), Duration: 30})
	if !got.Equal(dec("10.33")) {
		t.Fatalf("daily return = %s", got)
	}
	if !DailyReturn(models.Investment{Duration: 0}).IsZero() {
		t.Fatal("zero-duration plan must not pay")
	}
}

func TestPayoutOn_FinalDayCarriesRemainder(t *testing.T) {
	inv := models.Investment{Amount: dec("100"), ExpectedReturn: dec("410"), Duration: 30}
	if got := PayoutOn(inv, 1); !got.Equal(dec("10.33")) {
		t.Errorf("day 1 = %s", got)
	}
	if got := PayoutOn(inv, 29); !got.Equal(dec("10.33")) {
		t.Errorf("day 29 = %s", got)
	}
	if got := PayoutOn(inv, 30); !got.Equal(dec("10.43")) {
		t.Errorf("day 30 = %s, want 10.43", got)
	}
	total := decimal.Zero
	for n := 1; n <= inv.Duration; n++ {
		total = total.Add(PayoutOn(inv, n))
	}
	if !total.Equal(dec("310")) {
		t.Errorf("payouts sum to %s, want 310", total)
	}
}

func TestAudit_DetectsTamperedCheckpoint(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := funded(t, e, freshAccount(t, e), "400")
	acct, _ = e.Derive(acct, t0)
	assertConsistent(t, acct)

	acct.CheckpointBalance = acct.CheckpointBalance.Add(dec("50"))
	rep := Audit(&acct, DefaultRules().Epsilon)
	if rep.Consistent {
		t.Fatal("tampered checkpoint passed audit")
	}
	if !rep.ReplayedBalance.Equal(dec("425")) {
		t.Fatalf("replayed = %s", rep.ReplayedBalance)
	}
}
