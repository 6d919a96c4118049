package v1

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   PurchaseEvent
		wantErr string
	}{
		{
			name:  "valid cart event",
			event: PurchaseEvent{UserID: "user-1", EventType: EventCart},
		},
		{
			name:  "valid purchase event",
			event: PurchaseEvent{UserID: "user-1", EventType: EventPurchase},
		},
		{
			name:    "missing userId",
			event:   PurchaseEvent{EventType: EventCart},
			wantErr: "userId is required",
		},
		{
			name:    "missing eventType",
			event:   PurchaseEvent{UserID: "user-1"},
			wantErr: "eventType is required",
		},
		{
			name:    "unknown eventType",
			event:   PurchaseEvent{UserID: "user-1", EventType: "checkout_started"},
			wantErr: `unknown eventType "checkout_started"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tc.wantErr)
		})
	}
}

func TestKnownEventType(t *testing.T) {
	require.True(t, KnownEventType(EventCart))
	require.True(t, KnownEventType(EventBeginCheckout))
	require.True(t, KnownEventType(EventAddPaymentInfo))
	require.True(t, KnownEventType(EventPurchase))
	require.True(t, KnownEventType(EventError))
	require.False(t, KnownEventType(""))
	require.False(t, KnownEventType("recovery"))
}

func TestRecoveryMarked(t *testing.T) {
	require.False(t, (&PurchaseEvent{}).RecoveryMarked())
	require.False(t, (&PurchaseEvent{Metadata: map[string]any{}}).RecoveryMarked())
	require.False(t, (&PurchaseEvent{Metadata: map[string]any{MetadataRecoverySent: "true"}}).RecoveryMarked())
	require.False(t, (&PurchaseEvent{Metadata: map[string]any{MetadataRecoverySent: false}}).RecoveryMarked())
	require.True(t, (&PurchaseEvent{Metadata: map[string]any{MetadataRecoverySent: true}}).RecoveryMarked())
}
