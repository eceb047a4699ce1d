package controllers

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bharatinvest/catalog"
	"github.com/cppla/bharatinvest/ledger"
	"github.com/cppla/bharatinvest/utils"
	"github.com/cppla/bharatinvest/wallet"
)

// RewardsController handles promo codes, daily check-in, achievements and the treasure box.
type RewardsController struct {
	wallet *wallet.Service
}

// NewRewardsController creates a new controller instance.
func NewRewardsController(w *wallet.Service) *RewardsController {
	return &RewardsController{wallet: w}
}

// ApplyPromo redeems a promo code.
func (r *RewardsController) ApplyPromo(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req struct {
		Code string `json:"code" binding:"required,max=32"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}
	res, err := r.wallet.ApplyPromo(ctx.Request.Context(), userID, strings.TrimSpace(req.Code))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, commandResponse(res))
}

// CheckIn records today's check-in and pays a random reward.
func (r *RewardsController) CheckIn(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	res, err := r.wallet.CheckIn(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	out := commandResponse(res)
	out["check_in_streak"] = res.Account.CheckInStreak
	utils.Success(ctx, out)
}

// CheckInStatus returns the caller's streaks and whether a check-in is available today.
func (r *RewardsController) CheckInStatus(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	acct, err := r.wallet.View(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	engine := r.wallet.Engine()
	utils.Success(ctx, gin.H{
		"check_in_streak":    acct.CheckInStreak,
		"last_check_in_date": acct.LastCheckInDate,
		"login_streak":       acct.LoginStreak,
		"can_check_in":       engine.CanCheckIn(acct, engine.Now()),
	})
}

type achievementView struct {
	catalog.Achievement
	Earned  bool `json:"earned"`
	Claimed bool `json:"claimed"`
}

// ListAchievements returns every achievement with the caller's progress.
func (r *RewardsController) ListAchievements(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	acct, err := r.wallet.View(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	all := r.wallet.Engine().Catalog().Achievements
	items := make([]achievementView, 0, len(all))
	for _, a := range all {
		items = append(items, achievementView{
			Achievement: a,
			Earned:      ledger.Earned(acct, a),
			Claimed:     slices.Contains(acct.ClaimedAchievements, a.Label),
		})
	}
	utils.Success(ctx, gin.H{"items": items})
}

// ClaimAchievement pays the reward of an earned achievement once.
func (r *RewardsController) ClaimAchievement(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req struct {
		Label string `json:"label" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid request payload")
		return
	}
	res, err := r.wallet.ClaimAchievement(ctx.Request.Context(), userID, strings.TrimSpace(req.Label))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, commandResponse(res))
}

// OpenTreasure spends the treasure cost for a random reward.
func (r *RewardsController) OpenTreasure(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	res, err := r.wallet.OpenTreasure(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	out := commandResponse(res)
	out["cost"] = r.wallet.Engine().Rules().TreasureCost
	utils.Success(ctx, out)
}
