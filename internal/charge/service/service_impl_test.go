package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/firmbill/internal/billingperiod"
	chargedomain "github.com/smallbiznis/firmbill/internal/charge/domain"
	"github.com/smallbiznis/firmbill/internal/clock"
	"github.com/smallbiznis/firmbill/internal/locking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func int64Ptr(v int64) *int64 { return &v }

func newEngine(t *testing.T) (chargedomain.Service, snowflake.ID, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&chargedomain.BillingRule{}, &chargedomain.BillingCharge{}))

	node, _ := snowflake.NewNode(1)
	fake := clock.NewFakeClock(time.Date(2026, time.August, 10, 9, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Locker: locking.NewKeyedMutex(),
	})
	return svc, node.Generate(), fake
}

func seedRule(t *testing.T, svc chargedomain.Service, firmID snowflake.ID, req chargedomain.UpdateRuleRequest) {
	t.Helper()
	req.FirmID = firmID
	if req.BillingFrequency == "" {
		req.BillingFrequency = billingperiod.FrequencyMonthly
	}
	_, err := svc.UpdateRule(context.Background(), req)
	require.NoError(t, err)
}

func augustPeriod() billingperiod.Period {
	period, _ := billingperiod.For(time.Date(2026, time.August, 10, 0, 0, 0, 0, time.UTC), billingperiod.FrequencyMonthly)
	return period
}

func TestProposeAutomaticApproval(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType: chargedomain.ApprovalTypeAutomatic,
		UserApprovalType:   chargedomain.ApprovalTypeManual,
	})

	charge, err := svc.Propose(context.Background(), chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeOffice,
		Quantity:   2,
		UnitPrice:  9900,
		Period:     augustPeriod(),
	})
	require.NoError(t, err)
	assert.Equal(t, chargedomain.ChargeStatusApproved, charge.Status)
	assert.False(t, charge.RequiresApproval)
	assert.Equal(t, int64(19800), charge.TotalAmount)
}

func TestProposeManualApproval(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType: chargedomain.ApprovalTypeManual,
		UserApprovalType:   chargedomain.ApprovalTypeManual,
	})

	charge, err := svc.Propose(context.Background(), chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeUser,
		Quantity:   1,
		UnitPrice:  2500,
		Period:     augustPeriod(),
	})
	require.NoError(t, err)
	assert.Equal(t, chargedomain.ChargeStatusPending, charge.Status)
	assert.True(t, charge.RequiresApproval)
}

func TestProposeThresholdCumulative(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType:  chargedomain.ApprovalTypeManual,
		UserApprovalType:    chargedomain.ApprovalTypeThreshold,
		MaxUsersAutoApprove: int64Ptr(5),
	})
	ctx := context.Background()

	propose := func(qty int64) *chargedomain.BillingCharge {
		charge, err := svc.Propose(ctx, chargedomain.ProposeChargeRequest{
			FirmID:     firmID,
			ChargeType: chargedomain.ChargeTypeUser,
			Quantity:   qty,
			UnitPrice:  2500,
			Period:     augustPeriod(),
		})
		require.NoError(t, err)
		return charge
	}

	// 3 of 5: within budget.
	first := propose(3)
	assert.Equal(t, chargedomain.ChargeStatusApproved, first.Status)

	// 3 + 3 > 5: over budget, goes to pending.
	second := propose(3)
	assert.Equal(t, chargedomain.ChargeStatusPending, second.Status)
	assert.True(t, second.RequiresApproval)

	// Pending charges consume no budget, 3 + 2 = 5 still fits.
	third := propose(2)
	assert.Equal(t, chargedomain.ChargeStatusApproved, third.Status)
}

func TestProposeThresholdWithoutCap(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType: chargedomain.ApprovalTypeThreshold,
		UserApprovalType:   chargedomain.ApprovalTypeManual,
	})

	charge, err := svc.Propose(context.Background(), chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeOffice,
		Quantity:   1,
		UnitPrice:  9900,
		Period:     augustPeriod(),
	})
	require.NoError(t, err)
	assert.Equal(t, chargedomain.ChargeStatusPending, charge.Status)
}

func TestProposeMonthlyAmountCap(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType:      chargedomain.ApprovalTypeThreshold,
		MaxOfficesAutoApprove:   int64Ptr(10),
		UserApprovalType:        chargedomain.ApprovalTypeManual,
		AutoBillingEnabled:      true,
		MonthlyBillingThreshold: int64Ptr(25000),
	})
	ctx := context.Background()

	first, err := svc.Propose(ctx, chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeOffice,
		Quantity:   2,
		UnitPrice:  9900,
		Period:     augustPeriod(),
	})
	require.NoError(t, err)
	assert.Equal(t, chargedomain.ChargeStatusApproved, first.Status)

	// 19800 cleared + 9900 > 25000: the dollar cap overrides the count cap.
	second, err := svc.Propose(ctx, chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeOffice,
		Quantity:   1,
		UnitPrice:  9900,
		Period:     augustPeriod(),
	})
	require.NoError(t, err)
	assert.Equal(t, chargedomain.ChargeStatusPending, second.Status)
}

func TestProposeValidation(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType: chargedomain.ApprovalTypeAutomatic,
		UserApprovalType:   chargedomain.ApprovalTypeAutomatic,
	})
	ctx := context.Background()

	_, err := svc.Propose(ctx, chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeUser,
		Quantity:   0,
		UnitPrice:  2500,
		Period:     augustPeriod(),
	})
	assert.ErrorIs(t, err, chargedomain.ErrInvalidQuantity)

	_, err = svc.Propose(ctx, chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeUser,
		Quantity:   -3,
		UnitPrice:  2500,
		Period:     augustPeriod(),
	})
	assert.ErrorIs(t, err, chargedomain.ErrInvalidQuantity)

	_, err = svc.Propose(ctx, chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: "seat",
		Quantity:   1,
		UnitPrice:  2500,
		Period:     augustPeriod(),
	})
	assert.ErrorIs(t, err, chargedomain.ErrInvalidChargeType)

	_, err = svc.Propose(ctx, chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeUser,
		Quantity:   1,
		UnitPrice:  -1,
		Period:     augustPeriod(),
	})
	assert.ErrorIs(t, err, chargedomain.ErrInvalidUnitPrice)

	// Nothing was persisted by the rejected proposals.
	resp, err := svc.List(ctx, chargedomain.ListChargesRequest{FirmID: firmID})
	require.NoError(t, err)
	assert.Empty(t, resp.Charges)
}

func TestProposeWithoutRule(t *testing.T) {
	svc, firmID, _ := newEngine(t)

	_, err := svc.Propose(context.Background(), chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeUser,
		Quantity:   1,
		UnitPrice:  2500,
		Period:     augustPeriod(),
	})
	assert.ErrorIs(t, err, chargedomain.ErrRuleNotFound)
}

func TestProposeIdempotencyKey(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType: chargedomain.ApprovalTypeAutomatic,
		UserApprovalType:   chargedomain.ApprovalTypeAutomatic,
	})
	ctx := context.Background()

	req := chargedomain.ProposeChargeRequest{
		FirmID:         firmID,
		ChargeType:     chargedomain.ChargeTypeUser,
		Quantity:       1,
		UnitPrice:      2500,
		Period:         augustPeriod(),
		IdempotencyKey: "req-42",
	}

	first, err := svc.Propose(ctx, req)
	require.NoError(t, err)

	second, err := svc.Propose(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	resp, err := svc.List(ctx, chargedomain.ListChargesRequest{FirmID: firmID})
	require.NoError(t, err)
	assert.Len(t, resp.Charges, 1)
}

func TestChargeLifecycle(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType: chargedomain.ApprovalTypeManual,
		UserApprovalType:   chargedomain.ApprovalTypeManual,
	})
	ctx := context.Background()

	charge, err := svc.Propose(ctx, chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeOffice,
		Quantity:   1,
		UnitPrice:  9900,
		Period:     augustPeriod(),
	})
	require.NoError(t, err)
	require.Equal(t, chargedomain.ChargeStatusPending, charge.Status)

	// Billing a pending charge skips approval.
	_, err = svc.MarkBilled(ctx, charge.ID)
	assert.ErrorIs(t, err, chargedomain.ErrInvalidTransition)

	approved, err := svc.Approve(ctx, charge.ID)
	require.NoError(t, err)
	assert.Equal(t, chargedomain.ChargeStatusApproved, approved.Status)

	// Approve is not idempotent.
	_, err = svc.Approve(ctx, charge.ID)
	assert.ErrorIs(t, err, chargedomain.ErrInvalidTransition)

	_, err = svc.MarkPaid(ctx, charge.ID)
	assert.ErrorIs(t, err, chargedomain.ErrInvalidTransition)

	billed, err := svc.MarkBilled(ctx, charge.ID)
	require.NoError(t, err)
	assert.Equal(t, chargedomain.ChargeStatusBilled, billed.Status)

	_, err = svc.Cancel(ctx, charge.ID)
	assert.ErrorIs(t, err, chargedomain.ErrInvalidTransition)

	paid, err := svc.MarkPaid(ctx, charge.ID)
	require.NoError(t, err)
	assert.Equal(t, chargedomain.ChargeStatusPaid, paid.Status)

	// Paid is terminal.
	_, err = svc.Cancel(ctx, charge.ID)
	assert.ErrorIs(t, err, chargedomain.ErrInvalidTransition)
	_, err = svc.MarkBilled(ctx, charge.ID)
	assert.ErrorIs(t, err, chargedomain.ErrInvalidTransition)
}

func TestCancelFromPendingAndApproved(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType: chargedomain.ApprovalTypeManual,
		UserApprovalType:   chargedomain.ApprovalTypeManual,
	})
	ctx := context.Background()

	pending, err := svc.Propose(ctx, chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeUser,
		Quantity:   1,
		UnitPrice:  2500,
		Period:     augustPeriod(),
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, chargedomain.ChargeStatusCancelled, cancelled.Status)

	// Cancelled is terminal.
	_, err = svc.Approve(ctx, pending.ID)
	assert.ErrorIs(t, err, chargedomain.ErrInvalidTransition)
	_, err = svc.Cancel(ctx, pending.ID)
	assert.ErrorIs(t, err, chargedomain.ErrInvalidTransition)

	other, err := svc.Propose(ctx, chargedomain.ProposeChargeRequest{
		FirmID:     firmID,
		ChargeType: chargedomain.ChargeTypeUser,
		Quantity:   1,
		UnitPrice:  2500,
		Period:     augustPeriod(),
	})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, other.ID)
	require.NoError(t, err)

	cancelled, err = svc.Cancel(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, chargedomain.ChargeStatusCancelled, cancelled.Status)
}

func TestTransitionUnknownCharge(t *testing.T) {
	svc, _, _ := newEngine(t)

	_, err := svc.Approve(context.Background(), snowflake.ID(987654321))
	assert.ErrorIs(t, err, chargedomain.ErrChargeNotFound)
}

func TestConcurrentThresholdProposals(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType:  chargedomain.ApprovalTypeManual,
		UserApprovalType:    chargedomain.ApprovalTypeThreshold,
		MaxUsersAutoApprove: int64Ptr(5),
	})
	ctx := context.Background()

	// Two simultaneous proposals of 3 against a budget of 5. Exactly one
	// may clear, the firm lock serializes them.
	results := make([]*chargedomain.BillingCharge, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Propose(ctx, chargedomain.ProposeChargeRequest{
				FirmID:     firmID,
				ChargeType: chargedomain.ChargeTypeUser,
				Quantity:   3,
				UnitPrice:  2500,
				Period:     augustPeriod(),
			})
		}(i)
	}
	wg.Wait()

	approved, pending := 0, 0
	for i := range results {
		require.NoError(t, errs[i])
		switch results[i].Status {
		case chargedomain.ChargeStatusApproved:
			approved++
		case chargedomain.ChargeStatusPending:
			pending++
		}
	}
	assert.Equal(t, 1, approved)
	assert.Equal(t, 1, pending)
}

func TestListChargesPagination(t *testing.T) {
	svc, firmID, fake := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType: chargedomain.ApprovalTypeAutomatic,
		UserApprovalType:   chargedomain.ApprovalTypeAutomatic,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Propose(ctx, chargedomain.ProposeChargeRequest{
			FirmID:     firmID,
			ChargeType: chargedomain.ChargeTypeUser,
			Quantity:   1,
			UnitPrice:  2500,
			Period:     augustPeriod(),
		})
		require.NoError(t, err)
		fake.Advance(time.Minute)
	}

	first, err := svc.List(ctx, chargedomain.ListChargesRequest{FirmID: firmID, PageSize: 3})
	require.NoError(t, err)
	assert.Len(t, first.Charges, 3)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := svc.List(ctx, chargedomain.ListChargesRequest{
		FirmID:    firmID,
		PageSize:  3,
		PageToken: first.NextPageToken,
	})
	require.NoError(t, err)
	assert.Len(t, second.Charges, 2)
	assert.False(t, second.HasMore)
}

func TestListChargesStatusFilter(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	seedRule(t, svc, firmID, chargedomain.UpdateRuleRequest{
		OfficeApprovalType: chargedomain.ApprovalTypeAutomatic,
		UserApprovalType:   chargedomain.ApprovalTypeManual,
	})
	ctx := context.Background()

	for _, chargeType := range []chargedomain.ChargeType{chargedomain.ChargeTypeOffice, chargedomain.ChargeTypeUser} {
		_, err := svc.Propose(ctx, chargedomain.ProposeChargeRequest{
			FirmID:     firmID,
			ChargeType: chargeType,
			Quantity:   1,
			UnitPrice:  9900,
			Period:     augustPeriod(),
		})
		require.NoError(t, err)
	}

	resp, err := svc.List(ctx, chargedomain.ListChargesRequest{
		FirmID: firmID,
		Status: chargedomain.ChargeStatusPending,
	})
	require.NoError(t, err)
	require.Len(t, resp.Charges, 1)
	assert.Equal(t, chargedomain.ChargeTypeUser, resp.Charges[0].ChargeType)
}

func TestUpdateRuleValidation(t *testing.T) {
	svc, firmID, _ := newEngine(t)
	ctx := context.Background()

	_, err := svc.UpdateRule(ctx, chargedomain.UpdateRuleRequest{
		FirmID:             firmID,
		OfficeApprovalType: "always",
		UserApprovalType:   chargedomain.ApprovalTypeManual,
		BillingFrequency:   billingperiod.FrequencyMonthly,
	})
	assert.ErrorIs(t, err, chargedomain.ErrInvalidApprovalType)

	_, err = svc.UpdateRule(ctx, chargedomain.UpdateRuleRequest{
		FirmID:             firmID,
		OfficeApprovalType: chargedomain.ApprovalTypeManual,
		UserApprovalType:   chargedomain.ApprovalTypeManual,
		BillingFrequency:   "weekly",
	})
	assert.ErrorIs(t, err, billingperiod.ErrInvalidFrequency)

	rule, err := svc.UpdateRule(ctx, chargedomain.UpdateRuleRequest{
		FirmID:              firmID,
		OfficeApprovalType:  chargedomain.ApprovalTypeManual,
		UserApprovalType:    chargedomain.ApprovalTypeThreshold,
		MaxUsersAutoApprove: int64Ptr(5),
		BillingFrequency:    billingperiod.FrequencyQuarterly,
	})
	require.NoError(t, err)
	assert.Equal(t, billingperiod.FrequencyQuarterly, rule.BillingFrequency)

	// Upsert replaces the existing row.
	rule, err = svc.UpdateRule(ctx, chargedomain.UpdateRuleRequest{
		FirmID:             firmID,
		OfficeApprovalType: chargedomain.ApprovalTypeAutomatic,
		UserApprovalType:   chargedomain.ApprovalTypeManual,
		BillingFrequency:   billingperiod.FrequencyMonthly,
	})
	require.NoError(t, err)
	assert.Equal(t, chargedomain.ApprovalTypeAutomatic, rule.OfficeApprovalType)
	assert.Nil(t, rule.MaxUsersAutoApprove)
}
