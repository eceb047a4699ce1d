package store

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cppla/bharatinvest/models"
)

var (
	// ErrUserNotFound is returned when no identity matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrConflict is returned when a unique name or email is already taken.
	ErrConflict = errors.New("already exists")
)

// UserStore persists identities. Emails are compared case-insensitively.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id uint) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByProvider(ctx context.Context, provider, providerID string) (models.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	UpdatePassword(ctx context.Context, id uint, hash string) error
	ListUsers(ctx context.Context, page, pageSize int) ([]models.User, int64, error)
}

// Summary aggregates platform-wide figures.
type Summary struct {
	Users              int64           `json:"users"`
	Accounts           int64           `json:"accounts"`
	ActiveInvestments  int64           `json:"active_investments"`
	PendingDeposits    int64           `json:"pending_deposits"`
	PendingWithdrawals int64           `json:"pending_withdrawals"`
	TotalInvested      decimal.Decimal `json:"total_invested"`
}

// Reporter computes the platform summary.
type Reporter interface {
	Summary(ctx context.Context) (Summary, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	if err != nil {
		return unavailable("create user", err)
	}
	return nil
}

func (s *GormStore) userWhere(ctx context.Context, query string, args ...any) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where(query, args...).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, unavailable("load user", err)
	}
	return u, nil
}

func (s *GormStore) UserByID(ctx context.Context, id uint) (models.User, error) {
	return s.userWhere(ctx, "id = ?", id)
}

func (s *GormStore) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.userWhere(ctx, "email = ?", normalizeEmail(email))
}

func (s *GormStore) UserByProvider(ctx context.Context, provider, providerID string) (models.User, error) {
	return s.userWhere(ctx, "provider = ? AND provider_id = ?", provider, providerID)
}

func (s *GormStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return false, unavailable("count users", err)
	}
	return n > 0, nil
}

func (s *GormStore) UpdatePassword(ctx context.Context, id uint, hash string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return unavailable("update password", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *GormStore) ListUsers(ctx context.Context, page, pageSize int) ([]models.User, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, unavailable("count users", err)
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		return nil, 0, unavailable("list users", err)
	}
	return users, total, nil
}

func (s *GormStore) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&sum.Users).Error; err != nil {
		return Summary{}, unavailable("summary", err)
	}
	if err := db.Model(&models.Account{}).Count(&sum.Accounts).Error; err != nil {
		return Summary{}, unavailable("summary", err)
	}
	if err := db.Model(&models.Investment{}).
		Where("last_payout_date < DATE_ADD(start_date, INTERVAL duration DAY)").
		Count(&sum.ActiveInvestments).Error; err != nil {
		return Summary{}, unavailable("summary", err)
	}
	pending := db.Model(&models.Transaction{}).Where("status = ?", models.StatusPending)
	if err := pending.Session(&gorm.Session{}).Where("type = ?", models.TxDeposit).Count(&sum.PendingDeposits).Error; err != nil {
		return Summary{}, unavailable("summary", err)
	}
	if err := pending.Session(&gorm.Session{}).Where("type = ?", models.TxWithdrawal).Count(&sum.PendingWithdrawals).Error; err != nil {
		return Summary{}, unavailable("summary", err)
	}
	var invested decimal.NullDecimal
	if err := db.Model(&models.Investment{}).Select("SUM(amount)").Scan(&invested).Error; err != nil {
		return Summary{}, unavailable("summary", err)
	}
	if invested.Valid {
		sum.TotalInvested = invested.Decimal
	}
	return sum, nil
}
