package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bharatinvest/ledger"
	"github.com/cppla/bharatinvest/middleware"
	"github.com/cppla/bharatinvest/store"
	"github.com/cppla/bharatinvest/utils"
)

type rejectionStatus struct {
	status int
	code   int
}

var rejectionStatuses = map[string]rejectionStatus{
	ledger.ReasonInvalid:             {http.StatusBadRequest, 40020},
	ledger.ReasonInvalidAmount:       {http.StatusBadRequest, 40021},
	ledger.ReasonBelowMinimum:        {http.StatusBadRequest, 40022},
	ledger.ReasonInvalidPin:          {http.StatusBadRequest, 40023},
	ledger.ReasonPinRequired:         {http.StatusBadRequest, 40024},
	ledger.ReasonPinMismatch:         {http.StatusBadRequest, 40025},
	ledger.ReasonBankRequired:        {http.StatusBadRequest, 40026},
	ledger.ReasonPlanUnavailable:     {http.StatusBadRequest, 40027},
	ledger.ReasonInsufficientBalance: {http.StatusConflict, 40920},
	ledger.ReasonPlanActive:          {http.StatusConflict, 40921},
	ledger.ReasonNotPending:          {http.StatusConflict, 40922},
	ledger.ReasonUsedBefore:          {http.StatusConflict, 40923},
	ledger.ReasonUsedToday:           {http.StatusConflict, 40924},
	ledger.ReasonAlreadyCheckedIn:    {http.StatusConflict, 40925},
	ledger.ReasonAlreadyClaimed:      {http.StatusConflict, 40926},
	ledger.ReasonNotEligible:         {http.StatusConflict, 40927},
	ledger.ReasonBanned:              {http.StatusForbidden, 40320},
	ledger.ReasonNotFound:            {http.StatusNotFound, 40420},
	ledger.ReasonPlanNotFound:        {http.StatusNotFound, 40421},
}

// respondError maps ledger rejections and store failures onto the response envelope.
func respondError(ctx *gin.Context, err error) {
	if r, ok := ledger.AsRejection(err); ok {
		st, known := rejectionStatuses[r.Reason]
		if !known {
			st = rejectionStatus{http.StatusBadRequest, 40020}
		}
		utils.Reject(ctx, st.status, st.code, r.Message, r.Reason)
		return
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "account not found")
	case errors.Is(err, store.ErrUnavailable):
		utils.Sugar.Warnf("store unavailable path=%s err=%v", ctx.FullPath(), err)
		utils.Unavailable(ctx, 50310, "service temporarily unavailable, please retry", storeRetryAfter, nil)
	default:
		utils.Sugar.Errorf("request failed path=%s err=%v", ctx.FullPath(), err)
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal error")
	}
}

const storeRetryAfter = 5 * time.Second

// maxPage keeps (page-1)*pageSize far from overflow.
const maxPage = 1 << 20

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(strings.TrimSpace(pageStr)); err == nil && p > 0 {
		page = min(p, maxPage)
	}
	if s, err := strconv.Atoi(strings.TrimSpace(sizeStr)); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

// window returns the bounds of page within n items.
func window(n, page, pageSize int) (int, int) {
	if page < 1 || pageSize < 1 || page-1 > n/pageSize {
		return n, n
	}
	start := min((page-1)*pageSize, n)
	return start, min(start+pageSize, n)
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

// paramUserID reads a user id path parameter.
func paramUserID(ctx *gin.Context) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("uid")), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// cachedEnvelope matches the success envelope so cached bytes can be served as is.
type cachedEnvelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}
