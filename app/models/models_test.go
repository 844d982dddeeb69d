package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceStatusTransitions(t *testing.T) {
	tests := []struct {
		from InvoiceStatus
		to   InvoiceStatus
		want bool
	}{
		{InvoiceStatusPending, InvoiceStatusProcessing, true},
		{InvoiceStatusPending, InvoiceStatusFailed, true},
		{InvoiceStatusPending, InvoiceStatusPaid, false},
		{InvoiceStatusProcessing, InvoiceStatusPaid, true},
		{InvoiceStatusProcessing, InvoiceStatusPending, false},
		{InvoiceStatusPaid, InvoiceStatusFailed, false},
		{InvoiceStatusFailed, InvoiceStatusPaid, false},
		{InvoiceStatusCancelled, InvoiceStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	all := []InvoiceStatus{InvoiceStatusPending, InvoiceStatusProcessing, InvoiceStatusPaid, InvoiceStatusFailed, InvoiceStatusCancelled}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestUsageCurrentFor(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	u := Usage{
		PeriodStart:  MonthStart(now),
		CurrentMonth: UsageCounters{EventsCreated: 4},
	}
	assert.Equal(t, int64(4), u.CurrentFor(now).EventsCreated)

	nextMonth := time.Date(2026, 4, 1, 0, 0, 1, 0, time.UTC)
	assert.Equal(t, UsageCounters{}, u.CurrentFor(nextMonth))
}

func TestMonthStartUsesUTC(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	local := time.Date(2026, 5, 1, 0, 30, 0, 0, lagos)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), MonthStart(local))
}

func TestBillingCycleDays(t *testing.T) {
	assert.Equal(t, 30, Plan{BillingCycle: BillingCycleMonthly}.CycleDays())
	assert.Equal(t, 365, Plan{BillingCycle: BillingCycleYearly}.CycleDays())
}
