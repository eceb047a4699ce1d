package controllers

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/cppla/bharatinvest/export"
	"github.com/cppla/bharatinvest/ledger"
	"github.com/cppla/bharatinvest/models"
	"github.com/cppla/bharatinvest/store"
	"github.com/cppla/bharatinvest/utils"
	"github.com/cppla/bharatinvest/wallet"
)

const (
	viewCacheTTL    = 15 * time.Second
	streamKeepalive = 25 * time.Second
)

// WalletController serves the account view and the money-moving commands.
type WalletController struct {
	wallet *wallet.Service
}

func NewWalletController(w *wallet.Service) *WalletController {
	return &WalletController{wallet: w}
}

type accountResponse struct {
	models.Account
	HasWithdrawalPin bool `json:"has_withdrawal_pin"`
	CanCheckIn       bool `json:"can_check_in"`
}

func (w *WalletController) render(acct models.Account) accountResponse {
	engine := w.wallet.Engine()
	return accountResponse{
		Account:          acct,
		HasWithdrawalPin: acct.HasWithdrawalPin(),
		CanCheckIn:       engine.CanCheckIn(acct, engine.Now()),
	}
}

// commandResponse is returned by every successful mutation.
func commandResponse(res ledger.Result) gin.H {
	return gin.H{
		"transaction_id": res.TransactionID,
		"amount":         res.Amount,
		"balance":        res.Account.Balance,
	}
}

// Account returns the derived account of the caller.
func (w *WalletController) Account(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	key := store.ViewCacheKey(userID)
	if b, ok := utils.CacheGetBytes(ctx.Request.Context(), key); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}
	acct, err := w.wallet.View(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	payload := w.render(acct)
	utils.CacheSetJSON(ctx.Request.Context(), key, cachedEnvelope{Code: 0, Message: "success", Data: payload}, viewCacheTTL)
	utils.Success(ctx, payload)
}

// Stream pushes the account view as server-sent events after every write.
func (w *WalletController) Stream(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	reqCtx := ctx.Request.Context()
	acct, err := w.wallet.View(reqCtx, userID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	// Only the newest view matters; stale ones are dropped.
	updates := make(chan models.Account, 1)
	unsubscribe, err := w.wallet.Subscribe(reqCtx, userID, func(a models.Account) {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- a:
		default:
		}
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	defer unsubscribe()

	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("X-Accel-Buffering", "no")
	ctx.SSEvent("account", w.render(acct))
	ctx.Writer.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	ctx.Stream(func(_ io.Writer) bool {
		select {
		case <-reqCtx.Done():
			return false
		case a := <-updates:
			ctx.SSEvent("account", w.render(a))
			return true
		case t := <-keepalive.C:
			ctx.SSEvent("ping", t.Unix())
			return true
		}
	})
}

// ListTransactions returns the caller's transactions, newest first.
func (w *WalletController) ListTransactions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	acct, err := w.wallet.View(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	kind := models.TransactionType(strings.TrimSpace(ctx.Query("type")))
	status := models.TransactionStatus(strings.TrimSpace(ctx.Query("status")))
	items := make([]models.Transaction, 0, len(acct.Transactions))
	for _, tx := range acct.Transactions {
		if kind != "" && tx.Type != kind {
			continue
		}
		if status != "" && tx.Status != status {
			continue
		}
		items = append(items, tx)
	}
	slices.SortStableFunc(items, func(a, b models.Transaction) int {
		switch {
		case a.Seq > b.Seq:
			return -1
		case a.Seq < b.Seq:
			return 1
		}
		return 0
	})

	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	start, end := window(len(items), page, pageSize)
	utils.SuccessPage(ctx, items[start:end], page, pageSize, int64(len(items)))
}

// GetTransaction returns one transaction as a receipt.
func (w *WalletController) GetTransaction(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	tx, err := w.wallet.Transaction(ctx.Request.Context(), userID, strings.TrimSpace(ctx.Param("id")))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"transaction":    tx,
		"balance_effect": ledger.Effect(tx),
	})
}

// ExportTransactions streams the caller's statement as a spreadsheet.
func (w *WalletController) ExportTransactions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	acct, err := w.wallet.View(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	engine := w.wallet.Engine()
	now := engine.Now()
	name := fmt.Sprintf("statement-%s.xlsx", now.In(engine.Rules().Location).Format("20060102"))
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	ctx.Header("Content-Type", export.ContentType)
	ctx.Status(http.StatusOK)
	if err := export.WriteStatement(ctx.Writer, acct, engine.Rules().Location, now); err != nil {
		utils.Sugar.Errorf("write statement user=%d err=%v", userID, err)
		_ = ctx.Error(err)
	}
}

// CancelTransaction deletes a pending deposit or withdrawal request.
func (w *WalletController) CancelTransaction(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	res, err := w.wallet.CancelTransaction(ctx.Request.Context(), userID, strings.TrimSpace(ctx.Param("id")))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"balance": res.Account.Balance})
}

// Invest buys a plan.
func (w *WalletController) Invest(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req struct {
		PlanID int `json:"plan_id" binding:"required,gt=0"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}
	res, err := w.wallet.Invest(ctx.Request.Context(), userID, req.PlanID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, commandResponse(res))
}

type investmentView struct {
	models.Investment
	EndDate     time.Time       `json:"end_date"`
	DailyReturn decimal.Decimal `json:"daily_return"`
	Status      string          `json:"status"`
}

// ListInvestments returns active investments first, then completed ones.
func (w *WalletController) ListInvestments(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	acct, err := w.wallet.View(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	now := w.wallet.Engine().Now()
	active := make([]investmentView, 0, len(acct.Investments))
	var completed []investmentView
	for _, inv := range acct.Investments {
		v := investmentView{Investment: inv, EndDate: inv.EndDate(), DailyReturn: ledger.DailyReturn(inv), Status: "active"}
		if inv.Completed(now) {
			v.Status = "completed"
			completed = append(completed, v)
			continue
		}
		active = append(active, v)
	}
	utils.Success(ctx, gin.H{"items": append(active, completed...)})
}

// RequestDeposit files a pending deposit against a bank transfer reference.
func (w *WalletController) RequestDeposit(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		UTR    string          `json:"utr" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid request payload")
		return
	}
	res, err := w.wallet.RequestDeposit(ctx.Request.Context(), userID, req.Amount, strings.TrimSpace(req.UTR))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, commandResponse(res))
}

// RequestWithdrawal holds the amount until an admin pays it out or the request fails.
func (w *WalletController) RequestWithdrawal(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Pin    string          `json:"pin"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40012, "invalid request payload")
		return
	}
	res, err := w.wallet.RequestWithdrawal(ctx.Request.Context(), userID, req.Amount, strings.TrimSpace(req.Pin))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, commandResponse(res))
}

// BindBankAccount links the payout destination. An account binds once.
func (w *WalletController) BindBankAccount(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req struct {
		Name     string `json:"name" binding:"required"`
		BankName string `json:"bank_name" binding:"required"`
		UpiID    string `json:"upi_id" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40013, "invalid request payload")
		return
	}
	acct, err := w.wallet.View(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if !acct.LinkedBankAccount.Empty() {
		utils.Error(ctx, http.StatusConflict, 40930, "bank account already linked")
		return
	}
	res, err := w.wallet.BindBank(ctx.Request.Context(), userID, models.BankAccount{
		Name:     utils.PlainText(req.Name, 128),
		BankName: utils.PlainText(req.BankName, 128),
		UpiID:    utils.PlainText(req.UpiID, 128),
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"linked_bank_account": res.Account.LinkedBankAccount,
		"kyc_status":          res.Account.KYCStatus,
	})
}

// SetWithdrawalPin sets the 4 digit PIN. It cannot be changed afterwards.
func (w *WalletController) SetWithdrawalPin(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req struct {
		Pin     string `json:"pin" binding:"required"`
		Confirm string `json:"confirm" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40014, "invalid request payload")
		return
	}
	if req.Pin != req.Confirm {
		utils.Error(ctx, http.StatusBadRequest, 40015, "PINs do not match")
		return
	}
	acct, err := w.wallet.View(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if acct.HasWithdrawalPin() {
		utils.Error(ctx, http.StatusConflict, 40931, "withdrawal PIN already set")
		return
	}
	if _, err := w.wallet.SetPin(ctx.Request.Context(), userID, strings.TrimSpace(req.Pin)); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"has_withdrawal_pin": true})
}
