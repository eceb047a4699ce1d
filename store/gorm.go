package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/bharatinvest/ledger"
	"github.com/cppla/bharatinvest/models"
)

// GormStore keeps accounts in MySQL.
type GormStore struct {
	db       *gorm.DB
	notifier *Notifier
}

// NewGormStore creates a store. notifier may be nil, in which case Subscribe never fires.
func NewGormStore(db *gorm.DB, notifier *Notifier) *GormStore {
	return &GormStore{db: db, notifier: notifier}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func (s *GormStore) loadWhere(ctx context.Context, query string, args ...any) (models.Account, error) {
	var acct models.Account
	err := s.db.WithContext(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Preload("Investments", func(db *gorm.DB) *gorm.DB { return db.Order("start_date ASC") }).
		Where(query, args...).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		return models.Account{}, unavailable("load account", err)
	}
	return acct, nil
}

func (s *GormStore) Load(ctx context.Context, userID uint) (models.Account, error) {
	return s.loadWhere(ctx, "user_id = ?", userID)
}

func (s *GormStore) FindByReferralCode(ctx context.Context, code string) (models.Account, error) {
	return s.loadWhere(ctx, "referral_code = ?", code)
}

func (s *GormStore) Create(ctx context.Context, acct *models.Account) error {
	if err := s.db.WithContext(ctx).Create(acct).Error; err != nil {
		return unavailable("create account", err)
	}
	return nil
}

func (s *GormStore) Apply(ctx context.Context, acct models.Account, ch ledger.Changes) error {
	if ch.Empty() {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ch.Account {
			row := acct
			row.Transactions, row.Investments = nil, nil
			if err := tx.Omit(clause.Associations).Save(&row).Error; err != nil {
				return err
			}
		}
		if rows := pickTransactions(acct, ch.Transactions); len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
				return err
			}
		}
		if rows := pickInvestments(acct, ch.Investments); len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
				return err
			}
		}
		if len(ch.Removed) > 0 {
			if err := tx.Where("account_id = ? AND id IN ?", acct.ID, ch.Removed).Delete(&models.Transaction{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("apply changes", err)
	}
	if s.notifier != nil {
		s.notifier.Publish(ctx, acct.UserID)
	}
	return nil
}

func (s *GormStore) ListDue(ctx context.Context, limit int) ([]uint, error) {
	db := s.db.WithContext(ctx)
	pending := db.Model(&models.Transaction{}).Select("account_id").Where("status = ?", models.StatusPending)
	accruing := db.Model(&models.Investment{}).Select("account_id").
		Where("last_payout_date < DATE_ADD(start_date, INTERVAL duration DAY)")

	var ids []uint
	err := db.Model(&models.Account{}).
		Where("is_banned = ?", false).
		Where("id IN (?) OR id IN (?)", pending, accruing).
		Order("id ASC").
		Limit(limit).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, unavailable("list due accounts", err)
	}
	return ids, nil
}

func (s *GormStore) Subscribe(ctx context.Context, userID uint, fn func(models.Account)) (func(), error) {
	if s.notifier == nil {
		return func() {}, nil
	}
	return s.notifier.Subscribe(ctx, userID, func() {
		acct, err := s.Load(ctx, userID)
		if err == nil {
			fn(acct)
		}
	})
}
