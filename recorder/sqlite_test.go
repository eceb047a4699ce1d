package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSQLiteRecorder_RecordAndRecent(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	base := time.Date(2024, time.March, 10, 10, 0, 0, 0, time.UTC)
	events := []Event{
		{UserID: 1, Kind: KindDerive, Outcome: "ok", Balance: decimal.NewFromInt(25), Writes: 2, At: base},
		{UserID: 1, Kind: KindCommand, Command: "promo", Outcome: "ok", TransactionID: "tx-1", Amount: decimal.NewFromInt(5), Balance: decimal.NewFromInt(30), Writes: 2, At: base.Add(time.Minute)},
		{UserID: 2, Kind: KindCommand, Command: "checkin", Outcome: "already_checked_in", At: base},
	}
	for i := range events {
		if err := r.Record(&events[i]); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := r.Recent(1, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Command != "promo" || !got[0].Amount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("newest event = %+v", got[0])
	}
	if !got[1].At.Equal(base) {
		t.Fatalf("timestamp round trip = %s", got[1].At)
	}
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	if err := r.Record(&Event{}); err != nil {
		t.Fatal(err)
	}
	if evts, _ := r.Recent(1, 1); len(evts) != 0 {
		t.Fatal("noop recorder returned events")
	}
}
