package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bharatinvest/store"
	"github.com/cppla/bharatinvest/utils"
)

const statsCacheKey = "cache:stats"

// StatsController provides platform statistics such as user counts and pending requests.
type StatsController struct {
	reporter store.Reporter
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(reporter store.Reporter) *StatsController {
	return &StatsController{reporter: reporter}
}

// GetStats returns aggregate statistics for the platform.
func (s *StatsController) GetStats(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes(ctx.Request.Context(), statsCacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}
	sum, err := s.reporter.Summary(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	payload := gin.H{
		"user_count":          sum.Users,
		"account_count":       sum.Accounts,
		"active_investments":  sum.ActiveInvestments,
		"total_invested":      sum.TotalInvested,
		"pending_deposits":    sum.PendingDeposits,
		"pending_withdrawals": sum.PendingWithdrawals,
	}
	utils.CacheSetJSON(ctx.Request.Context(), statsCacheKey, cachedEnvelope{Code: 0, Message: "success", Data: payload}, time.Minute)
	utils.Success(ctx, payload)
}
