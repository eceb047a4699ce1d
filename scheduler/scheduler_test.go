package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/cppla/bharatinvest/models"
)

type fakeRefresher struct {
	due       []uint
	failing   map[uint]bool
	refreshed []uint
}

func (f *fakeRefresher) Due(context.Context, int) ([]uint, error) { return f.due, nil }

func (f *fakeRefresher) Refresh(_ context.Context, id uint) (models.Account, error) {
	if f.failing[id] {
		return models.Account{}, errors.New("boom")
	}
	f.refreshed = append(f.refreshed, id)
	return models.Account{UserID: id}, nil
}

func TestSweep_RefreshesDueAccounts(t *testing.T) {
	f := &fakeRefresher{due: []uint{1, 2, 3}, failing: map[uint]bool{2: true}}
	s := NewScheduler(context.Background(), f, nil, 0)
	if n := s.Sweep(); n != 2 {
		t.Fatalf("refreshed %d, want 2", n)
	}
	if len(f.refreshed) != 2 || f.refreshed[0] != 1 || f.refreshed[1] != 3 {
		t.Fatalf("refreshed = %v", f.refreshed)
	}
}

func TestSweep_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeRefresher{due: []uint{1, 2}}
	if n := NewScheduler(ctx, f, nil, 10).Sweep(); n != 0 {
		t.Fatalf("refreshed %d after cancel", n)
	}
}

func TestRegisterAll_RejectsBadCronExpression(t *testing.T) {
	s := NewScheduler(context.Background(), &fakeRefresher{}, nil, 10)
	if err := s.RegisterAll("not a cron"); err == nil {
		t.Fatal("expected error")
	}
	if err := s.RegisterAll("0 * * * * *"); err != nil {
		t.Fatalf("valid cron expression: %v", err)
	}
}
