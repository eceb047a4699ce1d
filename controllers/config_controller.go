package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/bharatinvest/catalog"
	"github.com/cppla/bharatinvest/config"
	"github.com/cppla/bharatinvest/utils"
)

// ConfigController serves the catalogs and environment-driven UI configuration.
type ConfigController struct {
	catalog *catalog.Catalog
}

func NewConfigController(cat *catalog.Catalog) *ConfigController {
	return &ConfigController{catalog: cat}
}

type planView struct {
	catalog.Plan
	Purchasable bool `json:"purchasable"`
}

// GetPlans lists the investment plans.
func (c *ConfigController) GetPlans(ctx *gin.Context) {
	items := make([]planView, 0, len(c.catalog.Plans))
	for _, p := range c.catalog.Plans {
		items = append(items, planView{Plan: p, Purchasable: p.Purchasable()})
	}
	utils.Success(ctx, gin.H{"items": items})
}

// GetDepositAmounts returns the deposit presets and the withdrawal minimum.
func (c *ConfigController) GetDepositAmounts(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"amounts":        c.catalog.DepositAmounts,
		"min_withdrawal": c.catalog.MinWithdrawal,
	})
}

// GetNotice returns announcement/notice content configured via config.
func (c *ConfigController) GetNotice(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"title": cfg.NoticeTitle,
		"html":  cfg.NoticeHTML,
	})
}
