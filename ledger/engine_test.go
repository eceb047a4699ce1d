package ledger

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cppla/bharatinvest/models"
)

func TestDerive_IdempotentReplay(t *testing.T) {
	e, clock := newTestEngine(t)
	acct := funded(t, e, freshAccount(t, e), "1000")

	res, err := e.AddInvestment(acct, 2)
	if err != nil {
		t.Fatalf("invest: %v", err)
	}
	res, err = e.RequestDeposit(res.Account, dec("400"), "UTR123456789")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	res, err = e.AddTransaction(res.Account, models.TxWithdrawal, dec("100"), "withdrawal", "me@upi")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	raw := res.Account
	raw.Balance = raw.Balance.Add(dec("7.5"))

	clock.advance(5*24*time.Hour + 3*time.Hour)
	now := clock.Now()
	first, ch := e.Derive(raw, now)
	if ch.Empty() {
		t.Fatal("first pass should change the account")
	}
	second, ch2 := e.Derive(first, now)
	if !ch2.Empty() {
		t.Fatalf("second pass changed: %+v", ch2)
	}
	if mustJSON(t, first) != mustJSON(t, second) {
		t.Fatal("second pass output differs from first")
	}
	assertConsistent(t, second)
}

func TestDerive_DoesNotMutateInput(t *testing.T) {
	e, clock := newTestEngine(t)
	acct := freshAccount(t, e)
	res, _ := e.RequestDeposit(acct, dec("200"), "UTR123456789")
	before := mustJSON(t, res.Account)

	clock.advance(time.Hour)
	e.Derive(res.Account, clock.Now())
	if mustJSON(t, res.Account) != before {
		t.Fatal("derive mutated its input")
	}
}

func TestDerive_DepositGraceWindow(t *testing.T) {
	cases := []struct {
		name string
		age  time.Duration
		want models.TransactionStatus
	}{
		{"after window", 2*time.Minute + time.Second, models.StatusSuccess},
		{"inside window", 2*time.Minute - time.Second, models.StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			res, err := e.RequestDeposit(freshAccount(t, e), dec("200"), "UTR123456789")
			if err != nil {
				t.Fatalf("deposit: %v", err)
			}
			out, _ := e.Derive(res.Account, t0.Add(tc.age))
			tx := out.Transactions[out.FindTransaction(res.TransactionID)]
			if tx.Status != tc.want {
				t.Fatalf("status = %s, want %s", tx.Status, tc.want)
			}
			if tc.want == models.StatusSuccess {
				assertBalance(t, out, "225")
				if !out.TotalDeposits.Equal(dec("200")) {
					t.Errorf("total deposits = %s", out.TotalDeposits)
				}
				if !tx.IsProcessed {
					t.Error("settled deposit must be processed")
				}
			} else {
				assertBalance(t, out, "25")
			}
			assertConsistent(t, out)
		})
	}
}

func TestDerive_WithdrawalFailsAndRefundsOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := funded(t, e, freshAccount(t, e), "600")
	res, err := e.AddTransaction(acct, models.TxWithdrawal, dec("600"), "withdrawal", "me@upi")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	assertBalance(t, res.Account, "25")

	early, _ := e.Derive(res.Account, t0.Add(47*time.Hour))
	if early.Transactions[early.FindTransaction(res.TransactionID)].Status != models.StatusPending {
		t.Fatal("withdrawal resolved too early")
	}

	now := t0.Add(48 * time.Hour)
	out, _ := e.Derive(early, now)
	if out.Transactions[out.FindTransaction(res.TransactionID)].Status != models.StatusFailed {
		t.Fatal("withdrawal should have failed")
	}
	if countType(out, models.TxWithdrawalRefund) != 1 {
		t.Fatalf("expected one refund, got %d", countType(out, models.TxWithdrawalRefund))
	}
	assertBalance(t, out, "625")

	again, ch := e.Derive(out, now.Add(time.Hour))
	if countType(again, models.TxWithdrawalRefund) != 1 {
		t.Fatal("refund applied twice")
	}
	if len(ch.Transactions) != 0 {
		t.Fatalf("unexpected transaction writes %v", ch.Transactions)
	}
	assertConsistent(t, again)
}

func TestDerive_PayoutScenario(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	acct.Investments = append(acct.Investments, models.Investment{
		ID: "inv-1", PlanID: 1, PlanName: "Starter Plan",
		Amount: dec("100"), ExpectedReturn: dec("410"), Duration: 30,
		StartDate: t0, LastPayoutDate: t0,
	})

	now := t0.AddDate(0, 0, 3)
	out, ch := e.Derive(acct, now)
	if n := countType(out, models.TxReturn); n != 3 {
		t.Fatalf("expected 3 returns, got %d", n)
	}
	day := e.Rules().StartOfDay(t0)
	k := 0
	for _, tx := range out.Transactions {
		if tx.Type != models.TxReturn {
			continue
		}
		k++
		if !tx.Amount.Equal(dec("10.33")) {
			t.Errorf("return amount = %s", tx.Amount)
		}
		if !tx.Date.Equal(day.AddDate(0, 0, k)) {
			t.Errorf("return %d dated %s", k, tx.Date)
		}
	}
	if !out.Investments[0].LastPayoutDate.Equal(now) {
		t.Fatalf("watermark = %s, want %s", out.Investments[0].LastPayoutDate, now)
	}
	if len(ch.Investments) != 1 {
		t.Fatalf("investment changes = %v", ch.Investments)
	}
	assertBalance(t, out, "55.99")
	if !out.TodaysReturn.Equal(dec("10.33")) {
		t.Errorf("todays return = %s", out.TodaysReturn)
	}
}

func TestDerive_WatermarkNeverRegressesAndCapsAtEnd(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	inv := models.Investment{
		ID: "inv-1", PlanID: 2, PlanName: "Solar Energy",
		Amount: dec("251"), ExpectedReturn: dec("753"), Duration: 30,
		StartDate: t0, LastPayoutDate: t0,
	}
	acct.Investments = append(acct.Investments, inv)

	mid, _ := e.Derive(acct, t0.AddDate(0, 0, 10).Add(5*time.Hour))
	w := mid.Investments[0].LastPayoutDate

	past, _ := e.Derive(mid, t0.AddDate(0, 0, 4))
	if !past.Investments[0].LastPayoutDate.Equal(w) {
		t.Fatal("watermark moved backwards")
	}

	later := t0.AddDate(0, 0, 45)
	done, _ := e.Derive(past, later)
	end := inv.EndDate()
	if !done.Investments[0].LastPayoutDate.Equal(end) {
		t.Fatalf("watermark = %s, want end %s", done.Investments[0].LastPayoutDate, end)
	}
	if n := countType(done, models.TxReturn); n != 30 {
		t.Fatalf("expected 30 returns over the plan, got %d", n)
	}
	paid := decimal.Zero
	var last models.Transaction
	for _, tx := range done.Transactions {
		if tx.Type == models.TxReturn {
			paid = paid.Add(tx.Amount)
			last = tx
		}
	}
	if !paid.Equal(dec("502")) {
		t.Errorf("plan paid %s in returns, want 502", paid)
	}
	if !last.Amount.Equal(dec("16.83")) {
		t.Errorf("final day paid %s, want 16.83", last.Amount)
	}
	if !done.TodaysReturn.IsZero() {
		t.Errorf("completed plan still reports %s today", done.TodaysReturn)
	}
	_, ch := e.Derive(done, later.AddDate(0, 0, 5))
	if len(ch.Investments) != 0 {
		t.Fatal("completed plan was touched again")
	}
}

func TestDerive_ReconcilesBalance(t *testing.T) {
	t.Run("surplus becomes adjustment", func(t *testing.T) {
		e, _ := newTestEngine(t)
		acct := freshAccount(t, e)
		acct.Balance = acct.Balance.Add(dec("50"))
		out, _ := e.Derive(acct, t0)
		assertBalance(t, out, "75")
		last := out.Transactions[len(out.Transactions)-1]
		if last.Type != models.TxBonus || !last.Amount.Equal(dec("50")) {
			t.Fatalf("expected 50 adjustment bonus, got %+v", last)
		}
		assertConsistent(t, out)
	})
	t.Run("shortfall is healed", func(t *testing.T) {
		e, _ := newTestEngine(t)
		acct := freshAccount(t, e)
		acct.Balance = dec("3")
		n := len(acct.Transactions)
		out, _ := e.Derive(acct, t0)
		assertBalance(t, out, "25")
		if len(out.Transactions) != n {
			t.Fatal("shortfall must not add transactions")
		}
	})
	t.Run("within epsilon left alone", func(t *testing.T) {
		e, _ := newTestEngine(t)
		acct := freshAccount(t, e)
		acct.Balance = dec("25.0005")
		_, ch := e.Derive(acct, t0)
		if !ch.Empty() {
			t.Fatalf("sub-epsilon drift changed the account: %+v", ch)
		}
	})
}

func TestDerive_LoginStreak(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	if acct.LoginStreak != 1 {
		t.Fatalf("first login streak = %d", acct.LoginStreak)
	}
	same, ch := e.Derive(acct, t0.Add(10*time.Hour))
	if same.LoginStreak != 1 || !ch.Empty() {
		t.Fatal("same-day login must be a no-op")
	}
	next, _ := e.Derive(same, t0.AddDate(0, 0, 1))
	if next.LoginStreak != 2 {
		t.Fatalf("next-day streak = %d", next.LoginStreak)
	}
	gap, _ := e.Derive(next, t0.AddDate(0, 0, 4))
	if gap.LoginStreak != 1 {
		t.Fatalf("streak after gap = %d", gap.LoginStreak)
	}
}

func TestDerive_LoginStreakUsesLocalCalendar(t *testing.T) {
	e, _ := newTestEngine(t)
	late := time.Date(2024, time.March, 10, 23, 50, 0, 0, ist)
	acct := freshAccount(t, e)
	acct.LastLoginDate = &late
	// 20 minutes later is already the next day in IST.
	out, _ := e.Derive(acct, late.Add(20*time.Minute))
	if out.LoginStreak != acct.LoginStreak+1 {
		t.Fatalf("streak = %d, want %d", out.LoginStreak, acct.LoginStreak+1)
	}
}

func TestDerive_CheckInStreakDecay(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	last := t0
	acct.LastCheckInDate = &last
	acct.CheckInStreak = 3

	out, _ := e.Derive(acct, t0.AddDate(0, 0, 1))
	if out.CheckInStreak != 3 {
		t.Fatalf("streak decayed after one day: %d", out.CheckInStreak)
	}
	out, _ = e.Derive(out, t0.AddDate(0, 0, 2))
	if out.CheckInStreak != 0 {
		t.Fatalf("streak = %d after two days", out.CheckInStreak)
	}
}

func TestDerive_AdminResolvedButUnprocessed(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := funded(t, e, freshAccount(t, e), "600")
	dep, _ := e.RequestDeposit(acct, dec("1000"), "UTR123456789")
	wd, _ := e.AddTransaction(dep.Account, models.TxWithdrawal, dec("510"), "withdrawal", "me@upi")
	acct = wd.Account
	acct.Transactions[acct.FindTransaction(dep.TransactionID)].Status = models.StatusSuccess
	acct.Transactions[acct.FindTransaction(wd.TransactionID)].Status = models.StatusFailed

	out, _ := e.Derive(acct, t0)
	assertBalance(t, out, "1625")
	if countType(out, models.TxWithdrawalRefund) != 1 {
		t.Fatal("rejected withdrawal not refunded")
	}
	if !out.TotalDeposits.Equal(dec("1600")) {
		t.Fatalf("total deposits = %s", out.TotalDeposits)
	}
	assertConsistent(t, out)
}

func TestDerive_CheckpointStopsAtPending(t *testing.T) {
	e, clock := newTestEngine(t)
	acct := funded(t, e, freshAccount(t, e), "600")
	acct, _ = e.Derive(acct, t0)
	if acct.CheckpointSeq != acct.NextSeq {
		t.Fatalf("checkpoint %d, want %d", acct.CheckpointSeq, acct.NextSeq)
	}

	wd, _ := e.AddTransaction(acct, models.TxWithdrawal, dec("510"), "withdrawal", "me@upi")
	promo, err := e.ApplyPromoCode(wd.Account, "GKCT")
	if err != nil {
		t.Fatalf("promo: %v", err)
	}
	out, _ := e.Derive(promo.Account, t0)
	held := out.Transactions[out.FindTransaction(wd.TransactionID)].Seq
	if out.CheckpointSeq >= held {
		t.Fatalf("checkpoint %d passed pending seq %d", out.CheckpointSeq, held)
	}
	assertBalance(t, out, "125")
	assertConsistent(t, out)

	clock.advance(49 * time.Hour)
	out, _ = e.Derive(out, clock.Now())
	if out.CheckpointSeq != out.NextSeq {
		t.Fatalf("checkpoint %d did not reach %d", out.CheckpointSeq, out.NextSeq)
	}
	assertBalance(t, out, "635")
	assertConsistent(t, out)
}

// Random interleavings of commands and derivation passes keep the stored balance equal to the
// replayed history.
func TestDerive_BalanceConservation(t *testing.T) {
	e, clock := newTestEngine(t)
	r := rand.New(rand.NewPCG(7, 11))
	acct := funded(t, e, freshAccount(t, e), "5000")
	promos := []string{"GDVT", "GFRT", "VFUT", "QWRT", "GKCT", "VHOP", "KCVT", "PBHY"}
	presets := []string{"200", "400", "600", "1000"}

	for step := 0; step < 300; step++ {
		var res Result
		var err error
		switch r.IntN(10) {
		case 0:
			res, err = e.RequestDeposit(acct, dec(presets[r.IntN(len(presets))]), "UTR123456789")
		case 1:
			res, err = e.AddTransaction(acct, models.TxWithdrawal, dec("510"), "withdrawal", "me@upi")
		case 2:
			res, err = e.ApplyPromoCode(acct, promos[r.IntN(len(promos))])
		case 3:
			res, err = e.ClaimDailyCheckIn(acct)
		case 4:
			res, err = e.OpenTreasureBox(acct)
		case 5:
			res, err = e.AddInvestment(acct, 2+r.IntN(7))
		case 6:
			err = errSkip
			for _, tx := range acct.Transactions {
				if tx.IsPending() {
					if r.IntN(2) == 0 {
						res, err = e.RemoveTransaction(acct, tx.ID)
					} else {
						res, err = e.ResolvePending(acct, tx.ID, r.IntN(2) == 0)
					}
					break
				}
			}
		default:
			clock.advance(time.Duration(r.IntN(30)) * time.Hour)
			acct, _ = e.Derive(acct, clock.Now())
			assertConsistent(t, acct)
			continue
		}
		if err != nil {
			if _, ok := AsRejection(err); !ok && err != errSkip {
				t.Fatalf("step %d: unexpected error %v", step, err)
			}
			continue
		}
		acct = res.Account
		assertConsistent(t, acct)
	}
}

var errSkip = &Rejection{Reason: "skip"}
