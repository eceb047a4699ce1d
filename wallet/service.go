package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cppla/bharatinvest/ledger"
	"github.com/cppla/bharatinvest/models"
	"github.com/cppla/bharatinvest/recorder"
	"github.com/cppla/bharatinvest/store"
)

const (
	lockTTL          = 10 * time.Second
	referralAttempts = 5
)

// Service drives the ledger against the store: every mutation loads the account, derives it to
// the current instant, applies the command and persists the union of both change sets.
type Service struct {
	store    store.Store
	engine   *ledger.Engine
	locker   *redislock.Client
	recorder recorder.Recorder
	logger   *zap.Logger
}

// NewService wires the service. locker may be nil, in which case concurrent writers race and the
// last write wins.
func NewService(st store.Store, engine *ledger.Engine, locker *redislock.Client, rec recorder.Recorder, logger *zap.Logger) *Service {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, engine: engine, locker: locker, recorder: rec, logger: logger}
}

// Engine exposes the ledger engine for read-only helpers such as catalogs and rules.
func (s *Service) Engine() *ledger.Engine { return s.engine }

func (s *Service) lock(ctx context.Context, userID uint) func() {
	if s.locker == nil {
		return func() {}
	}
	key := fmt.Sprintf("lock:account:%d", userID)
	lock, err := s.locker.Obtain(ctx, key, lockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 40),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			s.logger.Warn("could not obtain account lock; proceeding without lock", zap.Uint("user_id", userID))
		} else {
			s.logger.Warn("error obtaining account lock; proceeding without lock", zap.Uint("user_id", userID), zap.Error(err))
		}
		return func() {}
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			s.logger.Warn("release account lock failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
}

func (s *Service) derived(ctx context.Context, userID uint) (models.Account, ledger.Changes, error) {
	raw, err := s.store.Load(ctx, userID)
	if err != nil {
		return models.Account{}, ledger.Changes{}, err
	}
	acct, ch := s.engine.Derive(raw, s.engine.Now())
	return acct, ch, nil
}

func (s *Service) persist(ctx context.Context, acct models.Account, ch ledger.Changes) error {
	if ch.Empty() {
		return nil
	}
	return s.store.Apply(ctx, acct, ch)
}

func writes(ch ledger.Changes) int {
	n := len(ch.Transactions) + len(ch.Investments) + len(ch.Removed)
	if ch.Account {
		n++
	}
	return n
}

func (s *Service) record(evt recorder.Event) {
	evt.At = s.engine.Now()
	if err := s.recorder.Record(&evt); err != nil {
		s.logger.Warn("record ledger event failed", zap.Uint("user_id", evt.UserID), zap.Error(err))
	}
}

type command func(acct models.Account) (ledger.Result, error)

// run executes cmd on the freshly derived account. A rejected command still persists the
// derivation pass that preceded it.
func (s *Service) run(ctx context.Context, userID uint, name string, cmd command) (ledger.Result, error) {
	unlock := s.lock(ctx, userID)
	defer unlock()

	acct, ch, err := s.derived(ctx, userID)
	if err != nil {
		return ledger.Result{}, err
	}
	res, cmdErr := cmd(acct)
	if cmdErr != nil {
		if err := s.persist(ctx, acct, ch); err != nil {
			return ledger.Result{}, err
		}
		outcome := "error"
		if r, ok := ledger.AsRejection(cmdErr); ok {
			outcome = r.Reason
		}
		s.record(recorder.Event{UserID: userID, Kind: recorder.KindCommand, Command: name, Outcome: outcome, Balance: acct.Balance, Writes: writes(ch)})
		return ledger.Result{}, cmdErr
	}

	ch.Merge(res.Changes)
	res.Changes = ch
	if err := s.persist(ctx, res.Account, ch); err != nil {
		return ledger.Result{}, err
	}
	s.record(recorder.Event{
		UserID:        userID,
		Kind:          recorder.KindCommand,
		Command:       name,
		Outcome:       "ok",
		TransactionID: res.TransactionID,
		Amount:        res.Amount,
		Balance:       res.Account.Balance,
		Writes:        writes(ch),
	})
	return res, nil
}

// Refresh derives the account to now and persists the result when anything changed.
func (s *Service) Refresh(ctx context.Context, userID uint) (models.Account, error) {
	unlock := s.lock(ctx, userID)
	defer unlock()

	acct, ch, err := s.derived(ctx, userID)
	if err != nil {
		return models.Account{}, err
	}
	if ch.Empty() {
		return acct, nil
	}
	if err := s.persist(ctx, acct, ch); err != nil {
		return models.Account{}, err
	}
	s.record(recorder.Event{UserID: userID, Kind: recorder.KindDerive, Outcome: "ok", Balance: acct.Balance, Writes: writes(ch)})
	return acct, nil
}

// View returns the current account of a user.
func (s *Service) View(ctx context.Context, userID uint) (models.Account, error) {
	return s.Refresh(ctx, userID)
}

// Transaction looks up one transaction for a receipt.
func (s *Service) Transaction(ctx context.Context, userID uint, id string) (models.Transaction, error) {
	acct, err := s.View(ctx, userID)
	if err != nil {
		return models.Transaction{}, err
	}
	i := acct.FindTransaction(id)
	if i < 0 {
		return models.Transaction{}, &ledger.Rejection{Reason: ledger.ReasonNotFound, Message: "transaction not found"}
	}
	return acct.Transactions[i], nil
}

// CheckReferral verifies that code belongs to an existing account.
func (s *Service) CheckReferral(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	_, err := s.store.FindByReferralCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return &ledger.Rejection{Reason: ledger.ReasonInvalid, Message: "unknown referral code"}
	}
	return err
}

// Signup opens the account of a newly registered user and pays the referrer, if any.
func (s *Service) Signup(ctx context.Context, userID uint, name, email, referredBy string) (models.Account, error) {
	var res ledger.Result
	for attempt := 0; ; attempt++ {
		res = s.engine.CreateAccount(userID, name, email, referredBy)
		_, err := s.store.FindByReferralCode(ctx, res.Account.ReferralCode)
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if err != nil {
			return models.Account{}, err
		}
		if attempt+1 >= referralAttempts {
			return models.Account{}, fmt.Errorf("allocate referral code for user %d: exhausted attempts", userID)
		}
	}

	acct := res.Account
	if err := s.store.Create(ctx, &acct); err != nil {
		return models.Account{}, err
	}
	s.record(recorder.Event{UserID: userID, Kind: recorder.KindCommand, Command: "signup", Outcome: "ok", TransactionID: res.TransactionID, Amount: res.Amount, Balance: acct.Balance, Writes: writes(res.Changes)})

	if acct.ReferredBy != "" {
		referrer, err := s.store.FindByReferralCode(ctx, acct.ReferredBy)
		if err == nil {
			_, err = s.run(ctx, referrer.UserID, "referral", func(a models.Account) (ledger.Result, error) {
				return s.engine.CreditReferral(a, name)
			})
		}
		if err != nil {
			s.logger.Warn("referral bonus not credited", zap.Uint("user_id", userID), zap.String("code", acct.ReferredBy), zap.Error(err))
		}
	}
	return acct, nil
}

func (s *Service) Invest(ctx context.Context, userID uint, planID int) (ledger.Result, error) {
	return s.run(ctx, userID, "invest", func(a models.Account) (ledger.Result, error) {
		return s.engine.AddInvestment(a, planID)
	})
}

func (s *Service) RequestDeposit(ctx context.Context, userID uint, amount decimal.Decimal, utr string) (ledger.Result, error) {
	return s.run(ctx, userID, "deposit", func(a models.Account) (ledger.Result, error) {
		return s.engine.RequestDeposit(a, amount, utr)
	})
}

func (s *Service) RequestWithdrawal(ctx context.Context, userID uint, amount decimal.Decimal, pin string) (ledger.Result, error) {
	return s.run(ctx, userID, "withdraw", func(a models.Account) (ledger.Result, error) {
		return s.engine.RequestWithdrawal(a, amount, pin)
	})
}

// CancelTransaction removes a pending request of the user.
func (s *Service) CancelTransaction(ctx context.Context, userID uint, id string) (ledger.Result, error) {
	return s.run(ctx, userID, "cancel", func(a models.Account) (ledger.Result, error) {
		return s.engine.RemoveTransaction(a, id)
	})
}

func (s *Service) ApplyPromo(ctx context.Context, userID uint, code string) (ledger.Result, error) {
	return s.run(ctx, userID, "promo", func(a models.Account) (ledger.Result, error) {
		return s.engine.ApplyPromoCode(a, code)
	})
}

func (s *Service) CheckIn(ctx context.Context, userID uint) (ledger.Result, error) {
	return s.run(ctx, userID, "checkin", s.engine.ClaimDailyCheckIn)
}

func (s *Service) ClaimAchievement(ctx context.Context, userID uint, label string) (ledger.Result, error) {
	return s.run(ctx, userID, "achievement", func(a models.Account) (ledger.Result, error) {
		return s.engine.ClaimAchievementReward(a, label)
	})
}

func (s *Service) OpenTreasure(ctx context.Context, userID uint) (ledger.Result, error) {
	return s.run(ctx, userID, "treasure", s.engine.OpenTreasureBox)
}

func (s *Service) BindBank(ctx context.Context, userID uint, details models.BankAccount) (ledger.Result, error) {
	return s.run(ctx, userID, "bind_bank", func(a models.Account) (ledger.Result, error) {
		return s.engine.BindBankAccount(a, details)
	})
}

func (s *Service) SetPin(ctx context.Context, userID uint, pin string) (ledger.Result, error) {
	return s.run(ctx, userID, "set_pin", func(a models.Account) (ledger.Result, error) {
		return s.engine.SetWithdrawalPin(a, pin)
	})
}

// Resolve approves or rejects a pending deposit or withdrawal on behalf of an admin.
func (s *Service) Resolve(ctx context.Context, userID uint, txID string, approve bool) (ledger.Result, error) {
	return s.run(ctx, userID, "resolve", func(a models.Account) (ledger.Result, error) {
		return s.engine.ResolvePending(a, txID, approve)
	})
}

// AdminCredit raises the balance out of band and immediately derives the adjustment.
func (s *Service) AdminCredit(ctx context.Context, userID uint, amount decimal.Decimal) (ledger.Result, error) {
	return s.run(ctx, userID, "admin_credit", func(a models.Account) (ledger.Result, error) {
		res, err := s.engine.AdminCredit(a, amount)
		if err != nil {
			return res, err
		}
		acct, ch := s.engine.Derive(res.Account, s.engine.Now())
		ch.Merge(res.Changes)
		res.Account, res.Changes = acct, ch
		if n := len(acct.Transactions); n > 0 {
			res.TransactionID = acct.Transactions[n-1].ID
		}
		return res, nil
	})
}

// SetBanned toggles the ban flag. Banned accounts keep deriving but reject commands.
func (s *Service) SetBanned(ctx context.Context, userID uint, banned bool) (ledger.Result, error) {
	name := "unban"
	if banned {
		name = "ban"
	}
	return s.run(ctx, userID, name, func(a models.Account) (ledger.Result, error) {
		acct := ledger.Clone(a)
		acct.IsBanned = banned
		return ledger.Result{Account: acct, Changes: ledger.Changes{Account: a.IsBanned != banned}}, nil
	})
}

// AuditTrail is the integrity report of an account plus its recent activity.
type AuditTrail struct {
	Report ledger.AuditReport `json:"report"`
	Events []recorder.Event   `json:"events"`
}

// Audit replays the full history of an account.
func (s *Service) Audit(ctx context.Context, userID uint, limit int) (AuditTrail, error) {
	acct, err := s.View(ctx, userID)
	if err != nil {
		return AuditTrail{}, err
	}
	events, err := s.recorder.Recent(userID, limit)
	if err != nil {
		s.logger.Warn("load ledger events failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return AuditTrail{Report: ledger.Audit(&acct, s.engine.Rules().Epsilon), Events: events}, nil
}

// Subscribe pushes the derived account to fn after every write. The pushed view is not persisted;
// the next View or sweep does that.
func (s *Service) Subscribe(ctx context.Context, userID uint, fn func(models.Account)) (func(), error) {
	return s.store.Subscribe(ctx, userID, func(raw models.Account) {
		acct, _ := s.engine.Derive(raw, s.engine.Now())
		fn(acct)
	})
}

// Due lists users the sweep should refresh.
func (s *Service) Due(ctx context.Context, limit int) ([]uint, error) {
	return s.store.ListDue(ctx, limit)
}
