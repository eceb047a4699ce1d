package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cppla/bharatinvest/ledger"
	"github.com/cppla/bharatinvest/models"
)

// MemoryStore is a thread-safe in-process store.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   uint
	accounts map[uint]*models.Account // user id -> account
	codes    map[string]uint          // referral code -> user id
	users    map[uint]models.User
	userSeq  uint

	subMu  sync.Mutex
	subSeq int
	subs   map[uint]map[int]func(models.Account)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uint]*models.Account),
		codes:    make(map[string]uint),
		users:    make(map[uint]models.User),
		subs:     make(map[uint]map[int]func(models.Account)),
	}
}

func (s *MemoryStore) Load(ctx context.Context, userID uint) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return ledger.Clone(*acct), nil
}

func (s *MemoryStore) FindByReferralCode(ctx context.Context, code string) (models.Account, error) {
	s.mu.RLock()
	uid, ok := s.codes[code]
	s.mu.RUnlock()
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return s.Load(ctx, uid)
}

func (s *MemoryStore) Create(ctx context.Context, acct *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	acct.ID = s.nextID
	for i := range acct.Transactions {
		acct.Transactions[i].AccountID = acct.ID
	}
	for i := range acct.Investments {
		acct.Investments[i].AccountID = acct.ID
	}
	cp := ledger.Clone(*acct)
	s.accounts[acct.UserID] = &cp
	if acct.ReferralCode != "" {
		s.codes[acct.ReferralCode] = acct.UserID
	}
	return nil
}

// Apply stores the account as given. Records are kept whole, so only the presence of changes
// matters here.
func (s *MemoryStore) Apply(ctx context.Context, acct models.Account, ch ledger.Changes) error {
	if ch.Empty() {
		return nil
	}
	s.mu.Lock()
	if _, ok := s.accounts[acct.UserID]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	cp := ledger.Clone(acct)
	s.accounts[acct.UserID] = &cp
	s.mu.Unlock()

	s.notify(acct.UserID, cp)
	return nil
}

func (s *MemoryStore) ListDue(ctx context.Context, limit int) ([]uint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uint
	for uid, acct := range s.accounts {
		if limit > 0 && len(ids) >= limit {
			break
		}
		if !acct.IsBanned && due(acct) {
			ids = append(ids, uid)
		}
	}
	return ids, nil
}

func due(acct *models.Account) bool {
	for _, tx := range acct.Transactions {
		if tx.IsPending() {
			return true
		}
	}
	for _, inv := range acct.Investments {
		if inv.LastPayoutDate.Before(inv.EndDate()) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) Subscribe(ctx context.Context, userID uint, fn func(models.Account)) (func(), error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subSeq++
	id := s.subSeq
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]func(models.Account))
	}
	s.subs[userID][id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs[userID], id)
	}, nil
}

func (s *MemoryStore) notify(userID uint, acct models.Account) {
	s.subMu.Lock()
	fns := make([]func(models.Account), 0, len(s.subs[userID]))
	for _, fn := range s.subs[userID] {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ledger.Clone(acct))
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = normalizeEmail(u.Email)
	for _, other := range s.users {
		if other.Username == u.Username || (u.Email != "" && other.Email == u.Email) {
			return ErrConflict
		}
	}
	s.userSeq++
	u.ID = s.userSeq
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) findUser(match func(models.User) bool) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

func (s *MemoryStore) UserByID(ctx context.Context, id uint) (models.User, error) {
	return s.findUser(func(u models.User) bool { return u.ID == id })
}

func (s *MemoryStore) UserByEmail(ctx context.Context, email string) (models.User, error) {
	email = normalizeEmail(email)
	return s.findUser(func(u models.User) bool { return u.Email == email })
}

func (s *MemoryStore) UserByProvider(ctx context.Context, provider, providerID string) (models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Provider == provider && u.ProviderID == providerID })
}

func (s *MemoryStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := s.findUser(func(u models.User) bool { return u.Username == username })
	return err == nil, nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, id uint, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, page, pageSize int) ([]models.User, int64, error) {
	s.mu.RLock()
	all := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u)
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []models.User{}, total, nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], total, nil
}

func (s *MemoryStore) Summary(ctx context.Context) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := Summary{Users: int64(len(s.users)), Accounts: int64(len(s.accounts))}
	for _, acct := range s.accounts {
		for _, inv := range acct.Investments {
			sum.TotalInvested = sum.TotalInvested.Add(inv.Amount)
			if inv.LastPayoutDate.Before(inv.EndDate()) {
				sum.ActiveInvestments++
			}
		}
		for _, tx := range acct.Transactions {
			if !tx.IsPending() {
				continue
			}
			switch tx.Type {
			case models.TxDeposit:
				sum.PendingDeposits++
			case models.TxWithdrawal:
				sum.PendingWithdrawals++
			}
		}
	}
	return sum, nil
}
