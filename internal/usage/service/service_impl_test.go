package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/firmbill/internal/clock"
	"github.com/smallbiznis/firmbill/internal/config"
	entitlementdomain "github.com/smallbiznis/firmbill/internal/entitlement/domain"
	usagedomain "github.com/smallbiznis/firmbill/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type entitlementMock struct {
	mock.Mock
}

func (m *entitlementMock) ActiveSubscription(ctx context.Context, firmID snowflake.ID) (entitlementdomain.Subscription, error) {
	args := m.Called(ctx, firmID)
	return args.Get(0).(entitlementdomain.Subscription), args.Error(1)
}

func (m *entitlementMock) ResolveLimits(ctx context.Context, firmID snowflake.ID) ([]entitlementdomain.ResourceLimit, error) {
	args := m.Called(ctx, firmID)
	res := args.Get(0)
	if res == nil {
		return nil, args.Error(1)
	}
	return res.([]entitlementdomain.ResourceLimit), args.Error(1)
}

func newLedger(t *testing.T, entitlements entitlementdomain.Service) usagedomain.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&usagedomain.UsageRecord{}))

	node, _ := snowflake.NewNode(1)
	return NewService(ServiceParam{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clock.NewFakeClock(time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)),
		Entitlements: entitlements,
		Policy:       config.NewStaticPolicyHolder(config.DefaultPolicyConfig()),
	})
}

func TestIncrementAccumulates(t *testing.T) {
	svc := newLedger(t, nil)
	node, _ := snowflake.NewNode(2)
	firmID := node.Generate()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Increment(ctx, usagedomain.IncrementRequest{
			FirmID:   firmID,
			PeriodID: "2026-08",
			Category: entitlementdomain.CategoryESignatures,
			Delta:    3,
		})
		require.NoError(t, err)
	}

	record, err := svc.Increment(ctx, usagedomain.IncrementRequest{
		FirmID:   firmID,
		PeriodID: "2026-08",
		Category: entitlementdomain.CategoryESignatures,
		Delta:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(16), record.Used)

	// A new period starts a fresh counter; the old one is untouched.
	fresh, err := svc.Increment(ctx, usagedomain.IncrementRequest{
		FirmID:   firmID,
		PeriodID: "2026-09",
		Category: entitlementdomain.CategoryESignatures,
		Delta:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.Used)

	records, err := svc.Read(ctx, firmID, "2026-08")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(16), records[0].Used)
}

func TestIncrementValidation(t *testing.T) {
	svc := newLedger(t, nil)
	node, _ := snowflake.NewNode(2)
	firmID := node.Generate()
	ctx := context.Background()

	_, err := svc.Increment(ctx, usagedomain.IncrementRequest{
		FirmID: firmID, PeriodID: "2026-08", Category: entitlementdomain.CategorySMS, Delta: 0,
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidDelta)

	_, err = svc.Increment(ctx, usagedomain.IncrementRequest{
		FirmID: firmID, PeriodID: "2026-08", Category: entitlementdomain.CategorySMS, Delta: -4,
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidDelta)

	_, err = svc.Increment(ctx, usagedomain.IncrementRequest{
		FirmID: firmID, PeriodID: "2026-08", Category: "mystery", Delta: 1,
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidCategory)

	_, err = svc.Increment(ctx, usagedomain.IncrementRequest{
		FirmID: 0, PeriodID: "2026-08", Category: entitlementdomain.CategorySMS, Delta: 1,
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidFirm)

	_, err = svc.Increment(ctx, usagedomain.IncrementRequest{
		FirmID: firmID, PeriodID: "  ", Category: entitlementdomain.CategorySMS, Delta: 1,
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidPeriod)
}

func TestCorrectOverwritesCounter(t *testing.T) {
	svc := newLedger(t, nil)
	node, _ := snowflake.NewNode(2)
	firmID := node.Generate()
	ctx := context.Background()

	_, err := svc.Increment(ctx, usagedomain.IncrementRequest{
		FirmID: firmID, PeriodID: "2026-08", Category: entitlementdomain.CategoryClients, Delta: 42,
	})
	require.NoError(t, err)

	record, err := svc.Correct(ctx, usagedomain.CorrectRequest{
		FirmID: firmID, PeriodID: "2026-08", Category: entitlementdomain.CategoryClients, Used: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(30), record.Used)

	_, err = svc.Correct(ctx, usagedomain.CorrectRequest{
		FirmID: firmID, PeriodID: "2026-08", Category: entitlementdomain.CategoryClients, Used: -1,
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidUsage)
}

func TestClassifyAgainstLimits(t *testing.T) {
	node, _ := snowflake.NewNode(2)
	firmID := node.Generate()
	planID := node.Generate()

	entitlements := new(entitlementMock)
	entitlements.On("ResolveLimits", mock.Anything, firmID).Return([]entitlementdomain.ResourceLimit{
		{PlanID: planID, Category: entitlementdomain.CategoryClients, Limit: limitOf(100)},
		{PlanID: planID, Category: entitlementdomain.CategoryStorageGB, Limit: limitOf(50)},
		{PlanID: planID, Category: entitlementdomain.CategoryAPICalls, Limit: nil},
	}, nil)

	svc := newLedger(t, entitlements)
	ctx := context.Background()

	seed := []struct {
		category entitlementdomain.Category
		delta    int64
	}{
		{entitlementdomain.CategoryClients, 95},
		{entitlementdomain.CategoryStorageGB, 10},
		{entitlementdomain.CategoryAPICalls, 999_999},
	}
	for _, s := range seed {
		_, err := svc.Increment(ctx, usagedomain.IncrementRequest{
			FirmID: firmID, PeriodID: "2026-08", Category: s.category, Delta: s.delta,
		})
		require.NoError(t, err)
	}

	resp, err := svc.Classify(ctx, firmID, "2026-08")
	require.NoError(t, err)
	require.Len(t, resp.Alerts, 3)
	assert.True(t, resp.HasCritical)

	bySeverity := map[entitlementdomain.Category]usagedomain.Severity{}
	for _, alert := range resp.Alerts {
		bySeverity[alert.Category] = alert.Severity
	}
	assert.Equal(t, usagedomain.SeverityCritical, bySeverity[entitlementdomain.CategoryClients])
	assert.Equal(t, usagedomain.SeverityNormal, bySeverity[entitlementdomain.CategoryStorageGB])
	assert.Equal(t, usagedomain.SeverityNormal, bySeverity[entitlementdomain.CategoryAPICalls])
}

func TestClassifyWithNoUsageYet(t *testing.T) {
	node, _ := snowflake.NewNode(2)
	firmID := node.Generate()
	planID := node.Generate()

	entitlements := new(entitlementMock)
	entitlements.On("ResolveLimits", mock.Anything, firmID).Return([]entitlementdomain.ResourceLimit{
		{PlanID: planID, Category: entitlementdomain.CategoryUsers, Limit: limitOf(25)},
	}, nil)

	svc := newLedger(t, entitlements)

	resp, err := svc.Classify(context.Background(), firmID, "2026-08")
	require.NoError(t, err)
	require.Len(t, resp.Alerts, 1)
	assert.False(t, resp.HasCritical)
	assert.Equal(t, int64(0), resp.Alerts[0].Used)
	assert.Equal(t, usagedomain.SeverityNormal, resp.Alerts[0].Severity)
}
