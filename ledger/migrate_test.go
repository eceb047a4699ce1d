package ledger

import (
	"testing"
	"time"

	"github.com/cppla/bharatinvest/models"
)

func TestNormalize_LegacyRecord(t *testing.T) {
	e, _ := newTestEngine(t)
	legacy := models.Account{
		ID:           7,
		Name:         "Old Timer",
		IsFirstLogin: true,
		Balance:      dec("105"),
		Transactions: []models.Transaction{
			{ID: "a", Type: models.TxDeposit, Status: models.StatusSuccess, IsProcessed: true, Amount: dec("100"), Date: t0.Add(-2 * time.Hour)},
			{ID: "b", Type: models.TxPromo, Status: models.StatusSuccess, Amount: dec("5"), Date: t0.Add(-3 * time.Hour)},
		},
	}

	out, ch := e.Derive(legacy, t0)
	if ch.Empty() {
		t.Fatal("legacy record should be rewritten")
	}
	if out.IsFirstLogin {
		t.Fatal("first-login flag not cleared")
	}
	if out.SchemaVersion != SchemaVersion {
		t.Fatalf("schema version = %d", out.SchemaVersion)
	}
	if out.KYCStatus != models.KYCPending {
		t.Fatalf("kyc = %q", out.KYCStatus)
	}
	if out.UsedPromoCodes == nil || out.ClaimedAchievements == nil {
		t.Fatal("collections left nil")
	}
	if out.Transactions[0].ID != "b" || out.Transactions[0].Seq != 1 || out.Transactions[1].Seq != 2 {
		t.Fatalf("sequence not assigned in date order: %+v", out.Transactions)
	}
	if countType(out, models.TxBonus) != 1 {
		t.Fatal("signup bonus not appended")
	}
	assertBalance(t, out, "130")
	if !out.TotalDeposits.Equal(dec("100")) {
		t.Fatalf("total deposits = %s", out.TotalDeposits)
	}
	assertConsistent(t, out)

	again, ch := e.Derive(out, t0)
	if !ch.Empty() {
		t.Fatalf("migrated record changed again: %+v", ch)
	}
	if countType(again, models.TxBonus) != 1 {
		t.Fatal("signup bonus applied twice")
	}
}

func TestNormalize_RaisesNextSeq(t *testing.T) {
	e, _ := newTestEngine(t)
	acct := models.Account{
		NextSeq: 1,
		Transactions: []models.Transaction{
			{ID: "x", Seq: 5, Type: models.TxBonus, Status: models.StatusSuccess, Amount: dec("1"), Date: t0},
		},
	}
	e.Normalize(&acct, t0)
	if acct.NextSeq != 5 {
		t.Fatalf("next seq = %d", acct.NextSeq)
	}
}

func TestNormalize_LegacyDepositCreditedOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	legacy := models.Account{
		ID:      8,
		Balance: dec("200"),
		Transactions: []models.Transaction{
			{ID: "d", Type: models.TxDeposit, Status: models.StatusSuccess, Amount: dec("200"), Date: t0.Add(-24 * time.Hour)},
		},
	}

	out, _ := e.Derive(legacy, t0)
	assertBalance(t, out, "200")
	if !out.TotalDeposits.Equal(dec("200")) {
		t.Fatalf("total deposits = %s", out.TotalDeposits)
	}
	if n := countType(out, models.TxBonus); n != 0 {
		t.Fatalf("expected no balance adjustment, got %d bonus entries", n)
	}
	if !out.Transactions[0].IsProcessed {
		t.Fatal("legacy deposit not marked processed")
	}
	assertConsistent(t, out)
}

func TestNormalize_LegacyWithdrawalsAndPendingDeposit(t *testing.T) {
	e, clock := newTestEngine(t)
	legacy := models.Account{
		ID:      9,
		Balance: dec("200"),
		Transactions: []models.Transaction{
			{ID: "d1", Type: models.TxDeposit, Status: models.StatusSuccess, Amount: dec("500"), Date: t0.Add(-96 * time.Hour)},
			{ID: "w1", Type: models.TxWithdrawal, Status: models.StatusSuccess, Amount: dec("100"), Date: t0.Add(-90 * time.Hour)},
			{ID: "w2", Type: models.TxWithdrawal, Status: models.StatusFailed, Amount: dec("200"), Date: t0.Add(-80 * time.Hour)},
			{ID: "d2", Type: models.TxDeposit, Status: models.StatusPending, Amount: dec("400"), Date: t0.Add(-time.Minute)},
		},
	}

	out, _ := e.Derive(legacy, t0)
	if n := countType(out, models.TxWithdrawalRefund); n != 1 {
		t.Fatalf("refunds = %d, want 1", n)
	}
	assertBalance(t, out, "400")
	if n := countType(out, models.TxBonus); n != 0 {
		t.Fatalf("expected no balance adjustment, got %d bonus entries", n)
	}
	assertConsistent(t, out)

	clock.advance(5 * time.Minute)
	later, _ := e.Derive(out, clock.Now())
	assertBalance(t, later, "800")
	if !later.TotalDeposits.Equal(dec("900")) {
		t.Fatalf("total deposits = %s", later.TotalDeposits)
	}
	if n := countType(later, models.TxWithdrawalRefund); n != 1 {
		t.Fatalf("refunds = %d after second pass", n)
	}
	assertConsistent(t, later)
}
