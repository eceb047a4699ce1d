package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/cppla/bharatinvest/catalog"
	"github.com/cppla/bharatinvest/models"
)

// UTRLength is the length of a bank transfer reference attached to a deposit.
const UTRLength = 12

// Result is the outcome of a successful command.
type Result struct {
	Account       models.Account
	Changes       Changes
	TransactionID string
	Amount        decimal.Decimal
}

func guard(acct *models.Account) error {
	if acct.IsBanned {
		return reject(ReasonBanned, "account is banned")
	}
	return nil
}

// CreateAccount opens an account carrying its signup bonus.
func (e *Engine) CreateAccount(userID uint, name, email, referredBy string) Result {
	now := e.clock.Now()
	acct := models.Account{
		UserID:              userID,
		SchemaVersion:       SchemaVersion,
		Name:                name,
		Email:               email,
		ReferralCode:        ReferralCode(name, e.rand),
		ReferredBy:          strings.ToUpper(strings.TrimSpace(referredBy)),
		KYCStatus:           models.KYCPending,
		ClaimedAchievements: []string{},
		UsedPromoCodes:      map[string]time.Time{},
		Transactions:        []models.Transaction{},
		Investments:         []models.Investment{},
	}
	var ch Changes
	tx := e.post(&acct, &ch, models.Transaction{
		Type:        models.TxBonus,
		Status:      models.StatusSuccess,
		Amount:      e.catalog.SignupBonus,
		Date:        now,
		Description: "Signup bonus",
	})
	return Result{Account: acct, Changes: ch, TransactionID: tx.ID, Amount: tx.Amount}
}

// AddInvestment buys plan planID out of the balance.
func (e *Engine) AddInvestment(in models.Account, planID int) (Result, error) {
	if err := guard(&in); err != nil {
		return Result{}, err
	}
	plan, ok := e.catalog.Plan(planID)
	if !ok {
		return Result{}, reject(ReasonPlanNotFound, "plan %d does not exist", planID)
	}
	if !plan.Purchasable() {
		return Result{}, reject(ReasonPlanUnavailable, "%s is no longer offered", plan.Title)
	}
	now := e.clock.Now()
	for _, inv := range in.Investments {
		if inv.PlanID == planID && !inv.Completed(now) {
			return Result{}, reject(ReasonPlanActive, "%s is already active", plan.Title)
		}
	}
	if in.Balance.LessThan(plan.Amount) {
		return Result{}, reject(ReasonInsufficientBalance, "balance %s is below %s", in.Balance.StringFixed(2), plan.Amount.StringFixed(2))
	}

	acct := Clone(in)
	var ch Changes
	inv := models.Investment{
		ID:             newID(),
		AccountID:      acct.ID,
		PlanID:         plan.ID,
		PlanName:       plan.Title,
		Amount:         plan.Amount,
		ExpectedReturn: plan.Returns,
		Duration:       plan.Duration,
		StartDate:      now,
		LastPayoutDate: now,
	}
	acct.Investments = append(acct.Investments, inv)
	ch.touchInvestment(inv.ID)
	tx := e.post(&acct, &ch, models.Transaction{
		Type:        models.TxInvestment,
		Status:      models.StatusSuccess,
		Amount:      plan.Amount,
		Date:        now,
		Description: "Investment in " + plan.Title,
		Reference:   inv.ID,
	})
	acct.FirstInvestmentMade = true
	return Result{Account: acct, Changes: ch, TransactionID: tx.ID, Amount: plan.Amount}, nil
}

// AddTransaction files a pending deposit or withdrawal request. A withdrawal holds its amount
// immediately; a deposit is credited once it resolves.
func (e *Engine) AddTransaction(in models.Account, kind models.TransactionType, amount decimal.Decimal, description, reference string) (Result, error) {
	if err := guard(&in); err != nil {
		return Result{}, err
	}
	if kind != models.TxDeposit && kind != models.TxWithdrawal {
		return Result{}, reject(ReasonInvalid, "%s cannot be requested", kind)
	}
	if !amount.IsPositive() {
		return Result{}, reject(ReasonInvalidAmount, "amount must be positive")
	}
	if kind == models.TxWithdrawal && in.Balance.LessThan(amount) {
		return Result{}, reject(ReasonInsufficientBalance, "balance %s is below %s", in.Balance.StringFixed(2), amount.StringFixed(2))
	}

	acct := Clone(in)
	var ch Changes
	tx := e.post(&acct, &ch, models.Transaction{
		Type:        kind,
		Status:      models.StatusPending,
		Amount:      amount,
		Date:        e.clock.Now(),
		Description: description,
		Reference:   reference,
	})
	return Result{Account: acct, Changes: ch, TransactionID: tx.ID, Amount: amount}, nil
}

// RequestDeposit files a deposit of one of the preset amounts against a 12 character UTR.
func (e *Engine) RequestDeposit(in models.Account, amount decimal.Decimal, utr string) (Result, error) {
	if !e.catalog.IsDepositPreset(amount) {
		return Result{}, reject(ReasonInvalidAmount, "%s is not an offered deposit amount", amount.StringFixed(2))
	}
	utr = strings.TrimSpace(utr)
	if len(utr) != UTRLength {
		return Result{}, reject(ReasonInvalid, "UTR must be %d characters", UTRLength)
	}
	return e.AddTransaction(in, models.TxDeposit, amount, "Deposit via UPI", utr)
}

// RequestWithdrawal files a withdrawal to the bound UPI id after checking the PIN.
func (e *Engine) RequestWithdrawal(in models.Account, amount decimal.Decimal, pin string) (Result, error) {
	if err := guard(&in); err != nil {
		return Result{}, err
	}
	if in.LinkedBankAccount.Empty() {
		return Result{}, reject(ReasonBankRequired, "bind a bank account first")
	}
	if !in.HasWithdrawalPin() {
		return Result{}, reject(ReasonPinRequired, "set a withdrawal PIN first")
	}
	if !VerifyWithdrawalPin(in, pin) {
		return Result{}, reject(ReasonPinMismatch, "incorrect PIN")
	}
	if amount.LessThan(e.catalog.MinWithdrawal) {
		return Result{}, reject(ReasonBelowMinimum, "minimum withdrawal is %s", e.catalog.MinWithdrawal.StringFixed(2))
	}
	return e.AddTransaction(in, models.TxWithdrawal, amount, "Withdrawal to "+in.LinkedBankAccount.UpiID, in.LinkedBankAccount.UpiID)
}

// RemoveTransaction cancels a pending request, releasing any withdrawal hold.
func (e *Engine) RemoveTransaction(in models.Account, id string) (Result, error) {
	idx := in.FindTransaction(id)
	if idx < 0 {
		return Result{}, reject(ReasonNotFound, "transaction %s not found", id)
	}
	if !in.Transactions[idx].IsPending() {
		return Result{}, reject(ReasonNotPending, "transaction %s is %s", id, in.Transactions[idx].Status)
	}

	acct := Clone(in)
	tx := acct.Transactions[idx]
	acct.Transactions = slices.Delete(acct.Transactions, idx, idx+1)
	acct.Balance = acct.Balance.Sub(Effect(tx))
	var ch Changes
	ch.remove(tx.ID)
	ch.Account = true
	return Result{Account: acct, Changes: ch, TransactionID: tx.ID, Amount: tx.Amount}, nil
}

// ApplyPromoCode redeems a promo code under the configured daily policy.
func (e *Engine) ApplyPromoCode(in models.Account, code string) (Result, error) {
	if err := guard(&in); err != nil {
		return Result{}, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	value, ok := e.catalog.PromoValue(code)
	if !ok {
		return Result{}, reject(ReasonInvalid, "unknown promo code")
	}
	if _, used := in.UsedPromoCodes[code]; used {
		return Result{}, reject(ReasonUsedBefore, "%s was already redeemed", code)
	}
	now := e.clock.Now()
	if e.rules.PromoPolicy != PromoPerCode {
		for _, at := range in.UsedPromoCodes {
			if e.rules.SameDay(at, now) {
				return Result{}, reject(ReasonUsedToday, "one promo code per day")
			}
		}
	}

	acct := Clone(in)
	if acct.UsedPromoCodes == nil {
		acct.UsedPromoCodes = map[string]time.Time{}
	}
	var ch Changes
	tx := e.post(&acct, &ch, models.Transaction{
		Type:        models.TxPromo,
		Status:      models.StatusSuccess,
		Amount:      value,
		Date:        now,
		Description: "Promo code " + code,
	})
	acct.UsedPromoCodes[code] = now
	return Result{Account: acct, Changes: ch, TransactionID: tx.ID, Amount: value}, nil
}

// CanCheckIn reports whether the daily check-in is open at now.
func (e *Engine) CanCheckIn(acct models.Account, now time.Time) bool {
	return acct.LastCheckInDate == nil || !e.rules.SameDay(*acct.LastCheckInDate, now)
}

// ClaimDailyCheckIn pays the daily check-in reward and extends the streak.
func (e *Engine) ClaimDailyCheckIn(in models.Account) (Result, error) {
	if err := guard(&in); err != nil {
		return Result{}, err
	}
	now := e.clock.Now()
	if !e.CanCheckIn(in, now) {
		return Result{}, reject(ReasonAlreadyCheckedIn, "already checked in today")
	}

	acct := Clone(in)
	if acct.LastCheckInDate != nil && e.rules.DaysBetween(*acct.LastCheckInDate, now) == 1 {
		acct.CheckInStreak++
	} else {
		acct.CheckInStreak = 1
	}
	t := now
	acct.LastCheckInDate = &t

	reward := decimal.NewFromInt(int64(between(e.rand, e.rules.CheckInRewardMin, e.rules.CheckInRewardMax)))
	var ch Changes
	tx := e.post(&acct, &ch, models.Transaction{
		Type:        models.TxCheckIn,
		Status:      models.StatusSuccess,
		Amount:      reward,
		Date:        now,
		Description: fmt.Sprintf("Daily check-in (day %d)", acct.CheckInStreak),
	})
	return Result{Account: acct, Changes: ch, TransactionID: tx.ID, Amount: reward}, nil
}

// Earned reports whether the condition behind a is currently met.
func Earned(acct models.Account, a catalog.Achievement) bool {
	switch a.Kind {
	case catalog.AchievementFirstInvestment:
		return acct.FirstInvestmentMade
	case catalog.AchievementTotalDeposits:
		return acct.TotalDeposits.GreaterThanOrEqual(a.Threshold)
	case catalog.AchievementLoginStreak:
		return decimal.NewFromInt(int64(acct.LoginStreak)).GreaterThanOrEqual(a.Threshold)
	}
	return false
}

// ClaimAchievementReward pays a one-time reward for an earned achievement.
func (e *Engine) ClaimAchievementReward(in models.Account, label string) (Result, error) {
	if err := guard(&in); err != nil {
		return Result{}, err
	}
	a, ok := e.catalog.Achievement(label)
	if !ok {
		return Result{}, reject(ReasonNotFound, "unknown achievement %q", label)
	}
	if slices.Contains(in.ClaimedAchievements, a.Label) {
		return Result{}, reject(ReasonAlreadyClaimed, "%s already claimed", a.Label)
	}
	if !Earned(in, a) {
		return Result{}, reject(ReasonNotEligible, "%s not yet earned", a.Label)
	}

	acct := Clone(in)
	reward := decimal.NewFromInt(int64(between(e.rand, e.rules.AchievementRewardMin, e.rules.AchievementRewardMax)))
	var ch Changes
	tx := e.post(&acct, &ch, models.Transaction{
		Type:        models.TxBonus,
		Status:      models.StatusSuccess,
		Amount:      reward,
		Date:        e.clock.Now(),
		Description: "Achievement: " + a.Label,
	})
	acct.ClaimedAchievements = append(acct.ClaimedAchievements, a.Label)
	return Result{Account: acct, Changes: ch, TransactionID: tx.ID, Amount: reward}, nil
}

// OpenTreasureBox charges the box cost and pays a random reward.
func (e *Engine) OpenTreasureBox(in models.Account) (Result, error) {
	if err := guard(&in); err != nil {
		return Result{}, err
	}
	cost := e.rules.TreasureCost
	if in.Balance.LessThan(cost) {
		return Result{}, reject(ReasonInsufficientBalance, "a box costs %s", cost.StringFixed(2))
	}

	acct := Clone(in)
	now := e.clock.Now()
	var ch Changes
	e.post(&acct, &ch, models.Transaction{
		Type:        models.TxTreasureCost,
		Status:      models.StatusSuccess,
		Amount:      cost,
		Date:        now,
		Description: "Treasure box",
	})
	reward := decimal.NewFromInt(int64(between(e.rand, e.rules.TreasureRewardMin, e.rules.TreasureRewardMax)))
	win := e.post(&acct, &ch, models.Transaction{
		Type:        models.TxTreasureWin,
		Status:      models.StatusSuccess,
		Amount:      reward,
		Date:        now,
		Description: "Treasure box reward",
	})
	return Result{Account: acct, Changes: ch, TransactionID: win.ID, Amount: reward}, nil
}

// BindBankAccount stores the payout destination and marks KYC verified. Callers decide whether
// rebinding is allowed.
func (e *Engine) BindBankAccount(in models.Account, details models.BankAccount) (Result, error) {
	if err := guard(&in); err != nil {
		return Result{}, err
	}
	details.Name = strings.TrimSpace(details.Name)
	details.BankName = strings.TrimSpace(details.BankName)
	details.UpiID = strings.TrimSpace(details.UpiID)
	if details.Name == "" || details.BankName == "" {
		return Result{}, reject(ReasonInvalid, "account holder and bank name are required")
	}
	if !strings.Contains(details.UpiID, "@") {
		return Result{}, reject(ReasonInvalid, "UPI id must contain @")
	}

	acct := Clone(in)
	acct.LinkedBankAccount = details
	acct.KYCStatus = models.KYCVerified
	return Result{Account: acct, Changes: Changes{Account: true}}, nil
}

// SetWithdrawalPin stores a bcrypt hash of a 4 digit PIN.
func (e *Engine) SetWithdrawalPin(in models.Account, pin string) (Result, error) {
	if err := guard(&in); err != nil {
		return Result{}, err
	}
	if !validPin(pin) {
		return Result{}, reject(ReasonInvalidPin, "PIN must be 4 digits")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return Result{}, fmt.Errorf("hash pin: %w", err)
	}
	acct := Clone(in)
	acct.WithdrawalPinHash = string(hash)
	return Result{Account: acct, Changes: Changes{Account: true}}, nil
}

// VerifyWithdrawalPin compares pin with the stored hash.
func VerifyWithdrawalPin(acct models.Account, pin string) bool {
	if !acct.HasWithdrawalPin() || !validPin(pin) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(acct.WithdrawalPinHash), []byte(pin)) == nil
}

func validPin(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CreditReferral pays the referral bonus to the referrer of newUser.
func (e *Engine) CreditReferral(in models.Account, newUser string) (Result, error) {
	if err := guard(&in); err != nil {
		return Result{}, err
	}
	acct := Clone(in)
	var ch Changes
	tx := e.post(&acct, &ch, models.Transaction{
		Type:        models.TxBonus,
		Status:      models.StatusSuccess,
		Amount:      e.catalog.ReferralBonus,
		Date:        e.clock.Now(),
		Description: "Referral bonus for inviting " + newUser,
	})
	return Result{Account: acct, Changes: ch, TransactionID: tx.ID, Amount: tx.Amount}, nil
}

// ResolvePending approves or rejects a pending deposit or withdrawal ahead of its timer.
func (e *Engine) ResolvePending(in models.Account, id string, approve bool) (Result, error) {
	idx := in.FindTransaction(id)
	if idx < 0 {
		return Result{}, reject(ReasonNotFound, "transaction %s not found", id)
	}
	orig := in.Transactions[idx]
	if !orig.IsPending() {
		return Result{}, reject(ReasonNotPending, "transaction %s is %s", id, orig.Status)
	}
	if orig.Type != models.TxDeposit && orig.Type != models.TxWithdrawal {
		return Result{}, reject(ReasonInvalid, "%s cannot be resolved", orig.Type)
	}

	acct := Clone(in)
	now := e.clock.Now()
	tx := &acct.Transactions[idx]
	tx.Status = models.StatusFailed
	if approve {
		tx.Status = models.StatusSuccess
	}
	t := now
	tx.ResolvedAt = &t
	var ch Changes
	ch.touchTx(tx.ID)
	ch.Account = true
	e.settle(&acct, now, &ch)
	return Result{Account: acct, Changes: ch, TransactionID: id, Amount: orig.Amount}, nil
}

// AdminCredit raises the stored balance without a transaction. The next derivation records the
// surplus as a balance adjustment.
func (e *Engine) AdminCredit(in models.Account, amount decimal.Decimal) (Result, error) {
	if !amount.IsPositive() {
		return Result{}, reject(ReasonInvalidAmount, "amount must be positive")
	}
	acct := Clone(in)
	acct.Balance = acct.Balance.Add(amount)
	return Result{Account: acct, Changes: Changes{Account: true}, Amount: amount}, nil
}
