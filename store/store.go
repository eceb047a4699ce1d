package store

import (
	"context"
	"errors"

	"github.com/cppla/bharatinvest/ledger"
	"github.com/cppla/bharatinvest/models"
)

var (
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("account not found")
	// ErrUnavailable wraps I/O failures of the backing store. Callers may retry.
	ErrUnavailable = errors.New("store unavailable")
)

// Store persists accounts together with their transactions and investments.
type Store interface {
	// Load returns the raw account of a user with transactions ordered by sequence.
	Load(ctx context.Context, userID uint) (models.Account, error)
	// Create inserts a new account and its initial transactions, assigning acct.ID.
	Create(ctx context.Context, acct *models.Account) error
	// Apply writes only what ch names: the account row, upserted records and removed ids.
	Apply(ctx context.Context, acct models.Account, ch ledger.Changes) error
	// FindByReferralCode resolves the owner of a referral code.
	FindByReferralCode(ctx context.Context, code string) (models.Account, error)
	// ListDue returns users with pending transactions or investments still accruing.
	ListDue(ctx context.Context, limit int) ([]uint, error)
	// Subscribe calls fn with the fresh record after every write to the user's account,
	// including the caller's own.
	Subscribe(ctx context.Context, userID uint, fn func(models.Account)) (func(), error)
}

// pickTransactions returns the records of acct whose ids are listed, stamped with the account id.
func pickTransactions(acct models.Account, ids []string) []models.Transaction {
	out := make([]models.Transaction, 0, len(ids))
	for _, id := range ids {
		if i := acct.FindTransaction(id); i >= 0 {
			tx := acct.Transactions[i]
			tx.AccountID = acct.ID
			out = append(out, tx)
		}
	}
	return out
}

func pickInvestments(acct models.Account, ids []string) []models.Investment {
	out := make([]models.Investment, 0, len(ids))
	for _, id := range ids {
		for _, inv := range acct.Investments {
			if inv.ID == id {
				inv.AccountID = acct.ID
				out = append(out, inv)
				break
			}
		}
	}
	return out
}
