package ledger

import (
	"testing"
	"time"

	"github.com/cppla/bharatinvest/models"
)

func TestCreateAccount_CarriesSignupBonus(t *testing.T) {
	e, _ := newTestEngine(t)
	res := e.CreateAccount(9, "Ravi Kumar", "ravi@example.com", " priy1234 ")
	acct := res.Account
	assertBalance(t, acct, "25")
	if len(acct.Transactions) != 1 || acct.Transactions[0].Type != models.TxBonus {
		t.Fatalf("unexpected history %+v", acct.Transactions)
	}
	if acct.IsFirstLogin {
		t.Fatal("new accounts must not rely on the first-login flag")
	}
	if len(acct.ReferralCode) != 8 || acct.ReferralCode[:4] != "RAVI" {
		t.Fatalf("referral code = %q", acct.ReferralCode)
	}
	if acct.ReferredBy != "PRIY1234" {
		t.Fatalf("referred by = %q", acct.ReferredBy)
	}
	assertConsistent(t, acct)
}

func TestReferralCode_PadsShortNames(t *testing.T) {
	e, _ := newTestEngine(t)
	code := ReferralCode("Al", e.rand)
	if code[:4] != "ALXX" {
		t.Fatalf("code = %q", code)
	}
}

func TestApplyPromoCode_Scenario(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	acct.Balance = dec("0")
	acct.Transactions = acct.Transactions[:0]
	acct.CheckpointSeq, acct.CheckpointBalance = 0, dec("0")

	res, err := e.ApplyPromoCode(acct, "gdvt")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	assertBalance(t, res.Account, "5")
	if countType(res.Account, models.TxPromo) != 1 {
		t.Fatal("expected one promo transaction")
	}
	used, ok := res.Account.UsedPromoCodes["GDVT"]
	if !ok || !e.Rules().SameDay(used, t0) {
		t.Fatalf("used promo codes = %v", res.Account.UsedPromoCodes)
	}
}

func TestApplyPromoCode_OnePerDay(t *testing.T) {
	e, clock := newTestEngine(t)
	res, err := e.ApplyPromoCode(freshAccount(t, e), "GDVT")
	if err != nil {
		t.Fatalf("first code: %v", err)
	}
	_, err = e.ApplyPromoCode(res.Account, "GFRT")
	if !IsReason(err, ReasonUsedToday) {
		t.Fatalf("second code err = %v, want used_today", err)
	}
	_, err = e.ApplyPromoCode(res.Account, "GDVT")
	if !IsReason(err, ReasonUsedBefore) {
		t.Fatalf("reuse err = %v, want used_before", err)
	}

	clock.advance(24 * time.Hour)
	if _, err := e.ApplyPromoCode(res.Account, "GFRT"); err != nil {
		t.Fatalf("next day: %v", err)
	}
}

func TestApplyPromoCode_PerCodePolicy(t *testing.T) {
	e, _ := newTestEngine(t)
	e.rules.PromoPolicy = PromoPerCode
	res, err := e.ApplyPromoCode(freshAccount(t, e), "GDVT")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err = e.ApplyPromoCode(res.Account, "GFRT")
	if err != nil {
		t.Fatalf("distinct code same day: %v", err)
	}
	if _, err := e.ApplyPromoCode(res.Account, "gfrt"); !IsReason(err, ReasonUsedBefore) {
		t.Fatalf("reuse err = %v", err)
	}
}

func TestApplyPromoCode_Invalid(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.ApplyPromoCode(freshAccount(t, e), "FREE"); !IsReason(err, ReasonInvalid) {
		t.Fatalf("err = %v", err)
	}
}

func TestClaimAchievementReward_Idempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := funded(t, e, freshAccount(t, e), "600")
	if _, err := e.ClaimAchievementReward(acct, "First Investment"); !IsReason(err, ReasonNotEligible) {
		t.Fatalf("before investing err = %v", err)
	}

	inv, err := e.AddInvestment(acct, 2)
	if err != nil {
		t.Fatalf("invest: %v", err)
	}
	first, err := e.ClaimAchievementReward(inv.Account, "First Investment")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first.Amount.LessThan(dec("5")) || first.Amount.GreaterThan(dec("50")) {
		t.Fatalf("reward %s out of range", first.Amount)
	}

	before := first.Account
	_, err = e.ClaimAchievementReward(before, "First Investment")
	if !IsReason(err, ReasonAlreadyClaimed) {
		t.Fatalf("second claim err = %v", err)
	}
	if len(before.ClaimedAchievements) != 1 {
		t.Fatalf("claimed = %v", before.ClaimedAchievements)
	}
	assertConsistent(t, before)
}

func TestClaimAchievementReward_Thresholds(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	if _, err := e.ClaimAchievementReward(acct, "₹1000 Deposited"); !IsReason(err, ReasonNotEligible) {
		t.Fatalf("err = %v", err)
	}
	acct = funded(t, e, acct, "1000")
	if _, err := e.ClaimAchievementReward(acct, "₹1000 Deposited"); err != nil {
		t.Fatalf("deposit achievement: %v", err)
	}
	acct.LoginStreak = 7
	if _, err := e.ClaimAchievementReward(acct, "7-Day Streak"); err != nil {
		t.Fatalf("streak achievement: %v", err)
	}
	if _, err := e.ClaimAchievementReward(acct, "Moonshot"); !IsReason(err, ReasonNotFound) {
		t.Fatalf("unknown achievement err = %v", err)
	}
}

func TestAddInvestment(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	if _, err := e.AddInvestment(acct, 2); !IsReason(err, ReasonInsufficientBalance) {
		t.Fatalf("poor account err = %v", err)
	}
	acct = funded(t, e, acct, "1000")
	if _, err := e.AddInvestment(acct, 1); !IsReason(err, ReasonPlanUnavailable) {
		t.Fatalf("expired plan err = %v", err)
	}
	if _, err := e.AddInvestment(acct, 99); !IsReason(err, ReasonPlanNotFound) {
		t.Fatalf("unknown plan err = %v", err)
	}

	res, err := e.AddInvestment(acct, 2)
	if err != nil {
		t.Fatalf("invest: %v", err)
	}
	assertBalance(t, res.Account, "774")
	if !res.Account.FirstInvestmentMade {
		t.Fatal("first investment flag not set")
	}
	inv := res.Account.Investments[0]
	if !inv.StartDate.Equal(t0) || !inv.LastPayoutDate.Equal(t0) {
		t.Fatalf("investment dates %s %s", inv.StartDate, inv.LastPayoutDate)
	}
	if _, err := e.AddInvestment(res.Account, 2); !IsReason(err, ReasonPlanActive) {
		t.Fatalf("duplicate active plan err = %v", err)
	}
	assertConsistent(t, res.Account)
}

func TestRequestDeposit_Validation(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	if _, err := e.RequestDeposit(acct, dec("250"), "UTR123456789"); !IsReason(err, ReasonInvalidAmount) {
		t.Fatalf("non-preset err = %v", err)
	}
	if _, err := e.RequestDeposit(acct, dec("200"), "short"); !IsReason(err, ReasonInvalid) {
		t.Fatalf("short utr err = %v", err)
	}
	res, err := e.RequestDeposit(acct, dec("200"), "UTR123456789")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	assertBalance(t, res.Account, "25")
	tx := res.Account.Transactions[res.Account.FindTransaction(res.TransactionID)]
	if !tx.IsPending() || tx.Reference != "UTR123456789" {
		t.Fatalf("deposit tx = %+v", tx)
	}
}

func TestRequestWithdrawal(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := funded(t, e, freshAccount(t, e), "1000")

	if _, err := e.RequestWithdrawal(acct, dec("600"), "1234"); !IsReason(err, ReasonBankRequired) {
		t.Fatalf("no bank err = %v", err)
	}
	bound, err := e.BindBankAccount(acct, models.BankAccount{Name: "Priya", BankName: "SBI", UpiID: "priya@okaxis"})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if bound.Account.KYCStatus != models.KYCVerified {
		t.Fatal("binding should verify KYC")
	}
	if _, err := e.RequestWithdrawal(bound.Account, dec("600"), "1234"); !IsReason(err, ReasonPinRequired) {
		t.Fatalf("no pin err = %v", err)
	}
	pinned, err := e.SetWithdrawalPin(bound.Account, "1234")
	if err != nil {
		t.Fatalf("pin: %v", err)
	}
	acct = pinned.Account
	if _, err := e.RequestWithdrawal(acct, dec("600"), "4321"); !IsReason(err, ReasonPinMismatch) {
		t.Fatalf("wrong pin err = %v", err)
	}
	if _, err := e.RequestWithdrawal(acct, dec("500"), "1234"); !IsReason(err, ReasonBelowMinimum) {
		t.Fatalf("small amount err = %v", err)
	}
	if _, err := e.RequestWithdrawal(acct, dec("5000"), "1234"); !IsReason(err, ReasonInsufficientBalance) {
		t.Fatalf("large amount err = %v", err)
	}
	res, err := e.RequestWithdrawal(acct, dec("600"), "1234")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	assertBalance(t, res.Account, "425")
	tx := res.Account.Transactions[res.Account.FindTransaction(res.TransactionID)]
	if tx.Reference != "priya@okaxis" || !tx.IsPending() {
		t.Fatalf("withdrawal tx = %+v", tx)
	}
	assertConsistent(t, res.Account)
}

func TestRemoveTransaction(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := funded(t, e, freshAccount(t, e), "600")
	wd, _ := e.AddTransaction(acct, models.TxWithdrawal, dec("600"), "withdrawal", "me@upi")

	res, err := e.RemoveTransaction(wd.Account, wd.TransactionID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	assertBalance(t, res.Account, "625")
	if res.Account.FindTransaction(wd.TransactionID) >= 0 {
		t.Fatal("transaction still present")
	}
	if len(res.Changes.Removed) != 1 || res.Changes.Removed[0] != wd.TransactionID {
		t.Fatalf("removed = %v", res.Changes.Removed)
	}
	if len(res.Changes.Transactions) != 0 {
		t.Fatalf("removed transaction still scheduled for upsert: %v", res.Changes.Transactions)
	}

	if _, err := e.RemoveTransaction(res.Account, "missing"); !IsReason(err, ReasonNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	bonus := res.Account.Transactions[0].ID
	if _, err := e.RemoveTransaction(res.Account, bonus); !IsReason(err, ReasonNotPending) {
		t.Fatalf("settled err = %v", err)
	}
}

func TestClaimDailyCheckIn(t *testing.T) {
	e, clock := newTestEngine(t)
	acct := freshAccount(t, e)
	if !e.CanCheckIn(acct, clock.Now()) {
		t.Fatal("fresh account should be able to check in")
	}
	res, err := e.ClaimDailyCheckIn(acct)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if res.Amount.LessThan(dec("1")) || res.Amount.GreaterThan(dec("10")) {
		t.Fatalf("reward %s out of range", res.Amount)
	}
	if res.Account.CheckInStreak != 1 {
		t.Fatalf("streak = %d", res.Account.CheckInStreak)
	}
	if _, err := e.ClaimDailyCheckIn(res.Account); !IsReason(err, ReasonAlreadyCheckedIn) {
		t.Fatalf("same day err = %v", err)
	}

	clock.advance(24 * time.Hour)
	next, err := e.ClaimDailyCheckIn(res.Account)
	if err != nil {
		t.Fatalf("next day: %v", err)
	}
	if next.Account.CheckInStreak != 2 {
		t.Fatalf("streak = %d", next.Account.CheckInStreak)
	}

	clock.advance(72 * time.Hour)
	gap, err := e.ClaimDailyCheckIn(next.Account)
	if err != nil {
		t.Fatalf("after gap: %v", err)
	}
	if gap.Account.CheckInStreak != 1 {
		t.Fatalf("streak after gap = %d", gap.Account.CheckInStreak)
	}
	assertConsistent(t, gap.Account)
}

func TestOpenTreasureBox(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	res, err := e.OpenTreasureBox(acct)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	want := dec("15").Add(res.Amount)
	if !res.Account.Balance.Equal(want) {
		t.Fatalf("balance = %s, want %s", res.Account.Balance, want)
	}
	if countType(res.Account, models.TxTreasureCost) != 1 || countType(res.Account, models.TxTreasureWin) != 1 {
		t.Fatal("expected one cost and one win")
	}

	acct.Balance = dec("9.99")
	if _, err := e.OpenTreasureBox(acct); !IsReason(err, ReasonInsufficientBalance) {
		t.Fatalf("poor err = %v", err)
	}
}

func TestBindBankAccount_RejectsBadUpi(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.BindBankAccount(freshAccount(t, e), models.BankAccount{Name: "Priya", BankName: "SBI", UpiID: "priya"})
	if !IsReason(err, ReasonInvalid) {
		t.Fatalf("err = %v", err)
	}
}

func TestSetWithdrawalPin(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	for _, bad := range []string{"", "123", "12345", "12a4"} {
		if _, err := e.SetWithdrawalPin(acct, bad); !IsReason(err, ReasonInvalidPin) {
			t.Errorf("pin %q err = %v", bad, err)
		}
	}
	res, err := e.SetWithdrawalPin(acct, "0420")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if res.Account.WithdrawalPinHash == "0420" {
		t.Fatal("pin stored in plaintext")
	}
	if !VerifyWithdrawalPin(res.Account, "0420") || VerifyWithdrawalPin(res.Account, "0421") {
		t.Fatal("pin verification mismatch")
	}
}

func TestResolvePending(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	dep, _ := e.RequestDeposit(acct, dec("600"), "UTR123456789")

	res, err := e.ResolvePending(dep.Account, dep.TransactionID, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	assertBalance(t, res.Account, "625")
	if _, err := e.ResolvePending(res.Account, dep.TransactionID, true); !IsReason(err, ReasonNotPending) {
		t.Fatalf("second resolve err = %v", err)
	}

	wd, _ := e.AddTransaction(res.Account, models.TxWithdrawal, dec("600"), "withdrawal", "me@upi")
	rej, err := e.ResolvePending(wd.Account, wd.TransactionID, false)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	assertBalance(t, rej.Account, "625")
	if countType(rej.Account, models.TxWithdrawalRefund) != 1 {
		t.Fatal("rejected withdrawal not refunded")
	}
	out, _ := e.Derive(rej.Account, t0)
	if countType(out, models.TxWithdrawalRefund) != 1 {
		t.Fatal("derive refunded again")
	}
	assertConsistent(t, out)
}

func TestAdminCredit_RecordedOnNextDerive(t *testing.T) {
	e, _ := newTestEngine(t)
	res, err := e.AdminCredit(freshAccount(t, e), dec("100"))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	out, _ := e.Derive(res.Account, t0)
	assertBalance(t, out, "125")
	if countType(out, models.TxBonus) != 2 {
		t.Fatalf("expected signup bonus plus adjustment, got %d bonuses", countType(out, models.TxBonus))
	}
	assertConsistent(t, out)
}

func TestCommands_RejectBannedAccounts(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := funded(t, e, freshAccount(t, e), "1000")
	acct.IsBanned = true
	checks := map[string]error{}
	_, checks["invest"] = e.AddInvestment(acct, 2)
	_, checks["promo"] = e.ApplyPromoCode(acct, "GDVT")
	_, checks["checkin"] = e.ClaimDailyCheckIn(acct)
	_, checks["treasure"] = e.OpenTreasureBox(acct)
	_, checks["deposit"] = e.RequestDeposit(acct, dec("200"), "UTR123456789")
	for name, err := range checks {
		if !IsReason(err, ReasonBanned) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestRejection_LeavesInputUntouched(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := freshAccount(t, e)
	res, _ := e.ApplyPromoCode(acct, "GDVT")
	before := mustJSON(t, res.Account)
	if _, err := e.ApplyPromoCode(res.Account, "GFRT"); err == nil {
		t.Fatal("expected rejection")
	}
	if mustJSON(t, res.Account) != before {
		t.Fatal("rejected command mutated the account")
	}
}
