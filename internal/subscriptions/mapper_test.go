package subscriptions

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
)

func TestMapGatewayStatus_KnownValues(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  enums.SubscriptionStatus
	}{
		{name: "active", value: "active", want: enums.SubscriptionStatusActive},
		{name: "trialing", value: "TRIALING", want: enums.SubscriptionStatusTrialing},
		{name: "past due", value: "past_due", want: enums.SubscriptionStatusPastDue},
		{name: "unpaid suspends", value: "unpaid", want: enums.SubscriptionStatusSuspended},
		{name: "paused suspends", value: "paused", want: enums.SubscriptionStatusSuspended},
		{name: "canceled", value: "canceled", want: enums.SubscriptionStatusCanceled},
		{name: "incomplete expired", value: "incomplete_expired", want: enums.SubscriptionStatusIncompleteExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MapGatewayStatus(tc.value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestMapGatewayStatus_RejectsUnknown(t *testing.T) {
	if _, err := MapGatewayStatus("brand_new_status"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if _, err := MapGatewayStatus("suspended"); err == nil {
		t.Fatal("suspended is a local-only status")
	}
}

func TestResolveStatus(t *testing.T) {
	if got, ok := ResolveStatus(enums.SubscriptionStatusSuspended, enums.SubscriptionStatusPastDue); !ok || got != enums.SubscriptionStatusSuspended {
		t.Fatalf("suspended must survive gateway past_due, got %s %v", got, ok)
	}
	if got, ok := ResolveStatus(enums.SubscriptionStatusActive, enums.SubscriptionStatusCanceled); !ok || got != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled, got %s %v", got, ok)
	}
	if got, ok := ResolveStatus(enums.SubscriptionStatusCanceled, enums.SubscriptionStatusActive); ok || got != enums.SubscriptionStatusCanceled {
		t.Fatalf("canceled is terminal, got %s %v", got, ok)
	}
	for _, local := range []enums.SubscriptionStatus{enums.SubscriptionStatusActive, enums.SubscriptionStatusTrialing} {
		remote, err := MapGatewayStatus("unpaid")
		if err != nil {
			t.Fatal(err)
		}
		if got, ok := ResolveStatus(local, remote); !ok || got != enums.SubscriptionStatusSuspended {
			t.Fatalf("gateway unpaid must suspend a %s row, got %s %v", local, got, ok)
		}
	}
	if got, ok := ResolveStatus("", enums.SubscriptionStatusActive); !ok || got != enums.SubscriptionStatusActive {
		t.Fatalf("new rows take the gateway status, got %s %v", got, ok)
	}
}

func TestApplySnapshot(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	canceled := start.Add(48 * time.Hour)
	sub := &models.Subscription{Status: enums.SubscriptionStatusActive}
	err := ApplySnapshot(sub, &gateway.Subscription{
		ID:                 "sub_1",
		CustomerID:         "cus_1",
		Status:             "canceled",
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.AddDate(0, 1, 0),
		CancelAtPeriodEnd:  true,
		CanceledAt:         &canceled,
	})
	if err != nil {
		t.Fatalf("ApplySnapshot returned error: %v", err)
	}
	if sub.GatewaySubscriptionID() != "sub_1" || sub.GatewayCustomerID() != "cus_1" {
		t.Fatalf("unexpected handles %+v", sub)
	}
	if sub.Status != enums.SubscriptionStatusActive {
		t.Fatal("ApplySnapshot must not touch status")
	}
	if !sub.CancelAtPeriodEnd || sub.CanceledAt == nil || !sub.CurrentPeriodEnd.Equal(start.AddDate(0, 1, 0)) {
		t.Fatalf("unexpected period fields %+v", sub)
	}
}

func TestUserIDFromMetadata(t *testing.T) {
	id := uuid.New()
	got, err := UserIDFromMetadata(map[string]string{MetadataUserID: " " + id.String() + " "})
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := UserIDFromMetadata(map[string]string{}); err == nil {
		t.Fatal("expected missing metadata error")
	}
	if _, err := PlanIDFromMetadata(map[string]string{MetadataPlanID: "nope"}); err == nil {
		t.Fatal("expected invalid uuid error")
	}
}
