package ledger

import (
	"errors"
	"fmt"
)

// Rejection reasons. A rejected command leaves the account untouched.
const (
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonPlanNotFound        = "plan_not_found"
	ReasonPlanUnavailable     = "plan_unavailable"
	ReasonPlanActive          = "plan_active"
	ReasonInvalidAmount       = "invalid_amount"
	ReasonBelowMinimum        = "below_minimum"
	ReasonPinRequired         = "pin_required"
	ReasonPinMismatch         = "pin_mismatch"
	ReasonNotFound            = "not_found"
	ReasonNotPending          = "not_pending"
	ReasonInvalid             = "invalid"
	ReasonUsedBefore          = "used_before"
	ReasonUsedToday           = "used_today"
	ReasonAlreadyCheckedIn    = "already_checked_in"
	ReasonNotEligible         = "not_eligible"
	ReasonAlreadyClaimed      = "already_claimed"
	ReasonBanned              = "banned"
	ReasonInvalidPin          = "invalid_pin"
	ReasonBankRequired        = "bank_required"
)

// Rejection is a validation or precondition failure of a command.
type Rejection struct {
	Reason  string
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return r.Reason
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func reject(reason, format string, args ...any) error {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a *Rejection.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// IsReason reports whether err is a rejection with the given reason.
func IsReason(err error, reason string) bool {
	r, ok := AsRejection(err)
	return ok && r.Reason == reason
}
