package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PlanFree     = "free"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

// Plan describes a sellable tier. MaxSignups of zero means unlimited.
type Plan struct {
	ID            string   `mapstructure:"id" json:"id"`
	Name          string   `mapstructure:"name" json:"name"`
	Description   string   `mapstructure:"description" json:"description"`
	PriceCents    int64    `mapstructure:"priceCents" json:"price_cents"`
	Currency      string   `mapstructure:"currency" json:"currency"`
	Interval      string   `mapstructure:"interval" json:"interval"`
	MaxSignups    int64    `mapstructure:"maxSignups" json:"max_signups"`
	Features      []string `mapstructure:"features" json:"features"`
	StripePriceID string   `mapstructure:"stripePriceId" json:"stripe_price_id,omitempty"`
}

type PlanConfig struct {
	Plans []Plan `mapstructure:"plans" json:"plans"`
}

func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		Plans: []Plan{
			{
				ID:          PlanFree,
				Name:        "Free",
				Description: "Everything you need to validate an idea.",
				Currency:    "usd",
				Interval:    "month",
				MaxSignups:  100,
				Features: []string{
					"1 waitlist",
					"Up to 100 signups",
					"Referral tracking",
					"Basic analytics",
				},
			},
			{
				ID:          PlanPro,
				Name:        "Pro",
				Description: "For growing products.",
				PriceCents:  1900,
				Currency:    "usd",
				Interval:    "month",
				Features: []string{
					"Unlimited signups",
					"Custom branding",
					"Drip emails",
					"CSV export",
					"Advanced analytics",
				},
			},
			{
				ID:          PlanBusiness,
				Name:        "Business",
				Description: "For teams running many launches.",
				PriceCents:  4900,
				Currency:    "usd",
				Interval:    "month",
				Features: []string{
					"Everything in Pro",
					"Unlimited waitlists",
					"API access",
					"Webhooks",
					"Priority support",
				},
			},
		},
	}
}

// Find returns the plan with the given id.
func (c PlanConfig) Find(id string) (Plan, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, plan := range c.Plans {
		if plan.ID == id {
			return plan, true
		}
	}
	return Plan{}, false
}

// FindByPriceID maps a provider price id back to its plan.
func (c PlanConfig) FindByPriceID(priceID string) (Plan, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return Plan{}, false
	}
	for _, plan := range c.Plans {
		if plan.StripePriceID == priceID {
			return plan, true
		}
	}
	return Plan{}, false
}

// SignupLimit returns the signup cap for a tier. Unknown tiers fall back to the free cap.
func (c PlanConfig) SignupLimit(tier string) int64 {
	if plan, ok := c.Find(tier); ok {
		return plan.MaxSignups
	}
	if plan, ok := c.Find(PlanFree); ok {
		return plan.MaxSignups
	}
	return 0
}

type PlanConfigHolder struct {
	current atomic.Value // holds PlanConfig
}

// NewStaticPlanConfigHolder wraps a fixed catalog.
func NewStaticPlanConfigHolder(cfg PlanConfig) *PlanConfigHolder {
	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPlanConfigHolder(appCfg Config) (*PlanConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/waitlist/config") // Volume-mounted config
	v.AddConfigPath("/etc/waitlist")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("WAITLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultPlanConfig()
	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}
	if found {
		if err := v.UnmarshalKey("catalog", &cfg); err != nil {
			return nil, err
		}
	}
	cfg = withPriceIDs(cfg, appCfg.Stripe)
	if err := validatePlanConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPlanConfigHolder(cfg)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanConfig
		if err := v.UnmarshalKey("catalog", &updated); err != nil {
			zap.L().Warn("plan config reload failed", zap.Error(err))
			return
		}
		updated = withPriceIDs(updated, appCfg.Stripe)
		if err := validatePlanConfig(updated); err != nil {
			zap.L().Warn("invalid plan config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("plan config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PlanConfigHolder) Get() PlanConfig {
	return h.current.Load().(PlanConfig)
}

func withPriceIDs(cfg PlanConfig, stripe StripeConfig) PlanConfig {
	plans := make([]Plan, len(cfg.Plans))
	copy(plans, cfg.Plans)
	for i := range plans {
		plans[i].ID = strings.ToLower(strings.TrimSpace(plans[i].ID))
		if plans[i].StripePriceID != "" {
			continue
		}
		switch plans[i].ID {
		case PlanPro:
			plans[i].StripePriceID = stripe.ProPriceID
		case PlanBusiness:
			plans[i].StripePriceID = stripe.BusinessPriceID
		}
	}
	cfg.Plans = plans
	return cfg
}

func validatePlanConfig(cfg PlanConfig) error {
	if len(cfg.Plans) == 0 {
		return errors.New("catalog.plans cannot be empty")
	}
	seen := map[string]struct{}{}
	for _, plan := range cfg.Plans {
		if plan.ID == "" {
			return errors.New("catalog.plans[].id is required")
		}
		if _, ok := seen[plan.ID]; ok {
			return fmt.Errorf("duplicate plan %q", plan.ID)
		}
		seen[plan.ID] = struct{}{}
		if plan.MaxSignups < 0 {
			return fmt.Errorf("plan %q maxSignups cannot be negative", plan.ID)
		}
	}
	free, ok := cfg.Find(PlanFree)
	if !ok {
		return errors.New("catalog must define the free plan")
	}
	if free.MaxSignups <= 0 {
		return errors.New("free plan must have a positive signup cap")
	}
	return nil
}
