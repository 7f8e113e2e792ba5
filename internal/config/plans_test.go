package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlanConfigIsValid(t *testing.T) {
	cfg := withPriceIDs(DefaultPlanConfig(), StripeConfig{ProPriceID: "price_pro", BusinessPriceID: "price_biz"})
	require.NoError(t, validatePlanConfig(cfg))

	assert.Equal(t, int64(100), cfg.SignupLimit(PlanFree))
	assert.Equal(t, int64(0), cfg.SignupLimit(PlanPro))
	assert.Equal(t, int64(0), cfg.SignupLimit(PlanBusiness))
	assert.Equal(t, int64(100), cfg.SignupLimit("enterprise"))

	plan, ok := cfg.FindByPriceID("price_biz")
	require.True(t, ok)
	assert.Equal(t, PlanBusiness, plan.ID)

	_, ok = cfg.FindByPriceID("")
	assert.False(t, ok)
}

func TestValidatePlanConfigRejectsMissingFree(t *testing.T) {
	err := validatePlanConfig(PlanConfig{Plans: []Plan{{ID: PlanPro}}})
	assert.Error(t, err)

	err = validatePlanConfig(PlanConfig{Plans: []Plan{{ID: PlanFree, MaxSignups: 0}}})
	assert.Error(t, err)

	err = validatePlanConfig(PlanConfig{Plans: []Plan{{ID: PlanFree, MaxSignups: 10}, {ID: PlanFree, MaxSignups: 10}}})
	assert.Error(t, err)
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, parseList(" a:9092, ,b:9092 "))
	assert.Empty(t, parseList(""))
}
