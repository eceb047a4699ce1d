package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// BadgeExpired marks a plan that is still listed but can no longer be bought.
const BadgeExpired = "Expired"

// AchievementKind names the account condition an achievement is earned by.
type AchievementKind string

const (
	AchievementFirstInvestment AchievementKind = "first_investment"
	AchievementTotalDeposits   AchievementKind = "total_deposits"
	AchievementLoginStreak     AchievementKind = "login_streak"
)

// Plan is an investment product. Returns is principal plus total profit.
type Plan struct {
	ID       int             `json:"id"`
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Returns  decimal.Decimal `json:"returns"`
	Duration int             `json:"duration"`
	Badge    string          `json:"badge,omitempty"`
}

// Purchasable reports whether new investments may be opened on the plan.
func (p Plan) Purchasable() bool {
	return p.Badge != BadgeExpired
}

// Achievement is a one-time reward unlocked by an account condition.
type Achievement struct {
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Kind        AchievementKind `json:"kind"`
	Threshold   decimal.Decimal `json:"threshold"`
}

// Catalog holds the read-only tables the ledger consumes.
type Catalog struct {
	Plans          []Plan
	PromoCodes     map[string]decimal.Decimal
	DepositAmounts []decimal.Decimal
	MinWithdrawal  decimal.Decimal
	SignupBonus    decimal.Decimal
	ReferralBonus  decimal.Decimal
	Achievements   []Achievement
}

type rawPlan struct {
	ID       int     `yaml:"id" validate:"required,gt=0"`
	Title    string  `yaml:"title" validate:"required"`
	Amount   float64 `yaml:"amount" validate:"gt=0"`
	Returns  float64 `yaml:"returns" validate:"gtfield=Amount"`
	Duration int     `yaml:"duration" validate:"gt=0"`
	Badge    string  `yaml:"badge" validate:"omitempty,oneof=Popular 'Best Value' Hot 'Limited Offer' Expired"`
}

type rawAchievement struct {
	Label       string  `yaml:"label" validate:"required"`
	Description string  `yaml:"description"`
	Kind        string  `yaml:"kind" validate:"required,oneof=first_investment total_deposits login_streak"`
	Threshold   float64 `yaml:"threshold" validate:"gte=0"`
}

type rawCatalog struct {
	SignupBonus    float64            `yaml:"signup_bonus" validate:"gte=0"`
	ReferralBonus  float64            `yaml:"referral_bonus" validate:"gte=0"`
	MinWithdrawal  float64            `yaml:"min_withdrawal" validate:"gt=0"`
	DepositAmounts []float64          `yaml:"deposit_amounts" validate:"min=1,dive,gt=0"`
	Plans          []rawPlan          `yaml:"plans" validate:"min=1,dive"`
	PromoCodes     map[string]float64 `yaml:"promo_codes" validate:"dive,keys,min=4,max=10,endkeys,gt=0"`
	Achievements   []rawAchievement   `yaml:"achievements" validate:"dive"`
}

var validate = validator.New()

// Load reads a catalog file. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	data := defaultYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validate.Struct(&raw); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	c := &Catalog{
		PromoCodes:    make(map[string]decimal.Decimal, len(raw.PromoCodes)),
		MinWithdrawal: decimal.NewFromFloat(raw.MinWithdrawal),
		SignupBonus:   decimal.NewFromFloat(raw.SignupBonus),
		ReferralBonus: decimal.NewFromFloat(raw.ReferralBonus),
	}
	seen := make(map[int]bool, len(raw.Plans))
	for _, p := range raw.Plans {
		if seen[p.ID] {
			return nil, fmt.Errorf("validate catalog: duplicate plan id %d", p.ID)
		}
		seen[p.ID] = true
		c.Plans = append(c.Plans, Plan{
			ID:       p.ID,
			Title:    p.Title,
			Amount:   decimal.NewFromFloat(p.Amount),
			Returns:  decimal.NewFromFloat(p.Returns),
			Duration: p.Duration,
			Badge:    p.Badge,
		})
	}
	for code, v := range raw.PromoCodes {
		c.PromoCodes[strings.ToUpper(code)] = decimal.NewFromFloat(v)
	}
	for _, v := range raw.DepositAmounts {
		c.DepositAmounts = append(c.DepositAmounts, decimal.NewFromFloat(v))
	}
	for _, a := range raw.Achievements {
		c.Achievements = append(c.Achievements, Achievement{
			Label:       a.Label,
			Description: a.Description,
			Kind:        AchievementKind(a.Kind),
			Threshold:   decimal.NewFromFloat(a.Threshold),
		})
	}
	return c, nil
}

// Plan looks up a plan by id.
func (c *Catalog) Plan(id int) (Plan, bool) {
	for _, p := range c.Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// PromoValue looks up a promo code, case-insensitively.
func (c *Catalog) PromoValue(code string) (decimal.Decimal, bool) {
	v, ok := c.PromoCodes[strings.ToUpper(strings.TrimSpace(code))]
	return v, ok
}

// Achievement looks up an achievement by its label.
func (c *Catalog) Achievement(label string) (Achievement, bool) {
	for _, a := range c.Achievements {
		if a.Label == label {
			return a, true
		}
	}
	return Achievement{}, false
}

// IsDepositPreset reports whether amount is one of the offered deposit amounts.
func (c *Catalog) IsDepositPreset(amount decimal.Decimal) bool {
	for _, v := range c.DepositAmounts {
		if v.Equal(amount) {
			return true
		}
	}
	return false
}
