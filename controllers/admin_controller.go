package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/cppla/bharatinvest/middleware"
	"github.com/cppla/bharatinvest/models"
	"github.com/cppla/bharatinvest/store"
	"github.com/cppla/bharatinvest/utils"
	"github.com/cppla/bharatinvest/wallet"
)

const defaultAuditLimit = 50

// AdminController exposes operator actions. Routes are guarded by middleware.AdminRequired.
type AdminController struct {
	wallet *wallet.Service
	users  store.UserStore
}

func NewAdminController(w *wallet.Service, users store.UserStore) *AdminController {
	return &AdminController{wallet: w, users: users}
}

// Resolve approves or rejects a pending deposit or withdrawal.
func (a *AdminController) Resolve(ctx *gin.Context) {
	uid, ok := paramUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid user id")
		return
	}
	var req struct {
		Approve *bool `json:"approve" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40051, "approve must be true or false")
		return
	}
	res, err := a.wallet.Resolve(ctx.Request.Context(), uid, strings.TrimSpace(ctx.Param("id")), *req.Approve)
	if err != nil {
		respondError(ctx, err)
		return
	}
	i := res.Account.FindTransaction(ctx.Param("id"))
	var tx models.Transaction
	if i >= 0 {
		tx = res.Account.Transactions[i]
	}
	utils.Sugar.Infof("admin %v resolved tx=%s user=%d approve=%v", ctx.GetString(middleware.ContextUsernameKey), tx.ID, uid, *req.Approve)
	utils.Success(ctx, gin.H{"transaction": tx, "balance": res.Account.Balance})
}

// Credit raises a user's balance out of band. The next derivation records it as a bonus.
func (a *AdminController) Credit(ctx *gin.Context) {
	uid, ok := paramUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid user id")
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40052, "invalid request payload")
		return
	}
	res, err := a.wallet.AdminCredit(ctx.Request.Context(), uid, req.Amount)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Sugar.Infof("admin %v credited user=%d amount=%s", ctx.GetString(middleware.ContextUsernameKey), uid, req.Amount)
	utils.Success(ctx, commandResponse(res))
}

// SetBanned bans or unbans a user.
func (a *AdminController) SetBanned(ctx *gin.Context) {
	uid, ok := paramUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid user id")
		return
	}
	var req struct {
		Banned *bool `json:"banned" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40053, "banned must be true or false")
		return
	}
	res, err := a.wallet.SetBanned(ctx.Request.Context(), uid, *req.Banned)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if res.Account.IsBanned {
		utils.RevokeSessions(uid)
	}
	utils.Success(ctx, gin.H{"user_id": uid, "is_banned": res.Account.IsBanned})
}

// Audit replays a user's history and returns recent recorded activity.
func (a *AdminController) Audit(ctx *gin.Context) {
	uid, ok := paramUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid user id")
		return
	}
	limit := defaultAuditLimit
	if n, err := strconv.Atoi(ctx.Query("limit")); err == nil && n > 0 && n <= 500 {
		limit = n
	}
	trail, err := a.wallet.Audit(ctx.Request.Context(), uid, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, trail)
}

// ListUsers returns paginated users including register IP
func (a *AdminController) ListUsers(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	users, total, err := a.users.ListUsers(ctx.Request.Context(), page, pageSize)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to retrieve users")
		return
	}
	items := make([]gin.H, 0, len(users))
	for _, u := range users {
		items = append(items, userResponse(u))
	}
	utils.SuccessPage(ctx, items, page, pageSize, total)
}
