package service

import (
	"testing"

	"github.com/smallbiznis/firmbill/internal/config"
	entitlementdomain "github.com/smallbiznis/firmbill/internal/entitlement/domain"
	usagedomain "github.com/smallbiznis/firmbill/internal/usage/domain"
	"github.com/stretchr/testify/assert"
)

func limitOf(v int64) *int64 { return &v }

func TestClassifyCategorySeverity(t *testing.T) {
	policy := config.DefaultPolicyConfig()

	tests := []struct {
		name         string
		limit        *int64
		used         int64
		wantSeverity usagedomain.Severity
		wantPercent  float64
		wantDisplay  float64
	}{
		{name: "well under limit", limit: limitOf(100), used: 10, wantSeverity: usagedomain.SeverityNormal, wantPercent: 10, wantDisplay: 10},
		{name: "just below warning", limit: limitOf(100), used: 69, wantSeverity: usagedomain.SeverityNormal, wantPercent: 69, wantDisplay: 69},
		{name: "warning boundary inclusive", limit: limitOf(100), used: 70, wantSeverity: usagedomain.SeverityWarning, wantPercent: 70, wantDisplay: 70},
		{name: "just below critical", limit: limitOf(100), used: 89, wantSeverity: usagedomain.SeverityWarning, wantPercent: 89, wantDisplay: 89},
		{name: "critical boundary inclusive", limit: limitOf(100), used: 90, wantSeverity: usagedomain.SeverityCritical, wantPercent: 90, wantDisplay: 90},
		{name: "critical example", limit: limitOf(100), used: 95, wantSeverity: usagedomain.SeverityCritical, wantPercent: 95, wantDisplay: 95},
		{name: "overrun keeps raw percent", limit: limitOf(100), used: 134, wantSeverity: usagedomain.SeverityCritical, wantPercent: 134, wantDisplay: 100},
		{name: "unlimited never alerts", limit: nil, used: 1_000_000, wantSeverity: usagedomain.SeverityNormal, wantPercent: 0, wantDisplay: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := classifyCategory(entitlementdomain.ResourceLimit{
				Category: entitlementdomain.CategoryClients,
				Limit:    tt.limit,
			}, tt.used, policy)

			assert.Equal(t, tt.wantSeverity, alert.Severity)
			assert.Equal(t, tt.wantPercent, alert.Percent)
			assert.Equal(t, tt.wantDisplay, alert.DisplayPercent)
			assert.Equal(t, tt.limit == nil, alert.Unlimited)
			assert.Equal(t, tt.used, alert.Used)
		})
	}
}

func TestClassifyCategoryZeroLimit(t *testing.T) {
	policy := config.DefaultPolicyConfig()

	alert := classifyCategory(entitlementdomain.ResourceLimit{
		Category: entitlementdomain.CategoryOffices,
		Limit:    limitOf(0),
	}, 0, policy)
	assert.Equal(t, usagedomain.SeverityNormal, alert.Severity)

	alert = classifyCategory(entitlementdomain.ResourceLimit{
		Category: entitlementdomain.CategoryOffices,
		Limit:    limitOf(0),
	}, 1, policy)
	assert.Equal(t, usagedomain.SeverityCritical, alert.Severity)
}
