package fulfillment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool       { return &b }
func strPtr(s string) *string    { return &s }
func statusPtr(s Status) *Status { return &s }

func TestMergeAppendsUnknownNames(t *testing.T) {
	items := LineItems{{Name: "A", Available: true, Status: ItemPending}}

	merged := items.merge([]ItemReport{
		{Name: "B", Available: boolPtr(false)},
	})

	assert.Len(t, merged, 2)
	assert.Equal(t, "A", merged[0].Name)
	assert.Equal(t, "B", merged[1].Name)
	assert.False(t, merged[1].Available)
}

func TestMergePreservesDescriptiveFields(t *testing.T) {
	items := LineItems{{
		Name: "Amoxicillin", Available: true,
		Dosage: "500mg", Frequency: "twice daily",
	}}

	merged := items.merge([]ItemReport{
		{Name: "Amoxicillin", Available: boolPtr(false)},
	})

	assert.Len(t, merged, 1)
	assert.False(t, merged[0].Available)
	assert.Equal(t, "500mg", merged[0].Dosage)
	assert.Equal(t, "twice daily", merged[0].Frequency)
}

func TestMergeOverridesWhenGiven(t *testing.T) {
	items := LineItems{{Name: "Amoxicillin", Available: true, Dosage: "500mg"}}

	merged := items.merge([]ItemReport{
		{Name: "Amoxicillin", Dosage: strPtr("250mg")},
	})

	assert.Equal(t, "250mg", merged[0].Dosage)
	assert.True(t, merged[0].Available, "availability untouched when not reported")
}

func TestMergeDuplicateNamesLastWriteWins(t *testing.T) {
	merged := LineItems{}.merge([]ItemReport{
		{Name: "A", Available: boolPtr(true), Dosage: strPtr("100mg")},
		{Name: "A", Available: boolPtr(false)},
	})

	assert.Len(t, merged, 1)
	assert.False(t, merged[0].Available)
	assert.Equal(t, "100mg", merged[0].Dosage, "earlier field survives when the later report omits it")
}

func TestMergeDefaultsAvailableTrue(t *testing.T) {
	merged := LineItems{}.merge([]ItemReport{{Name: "X-Ray Chest"}})

	assert.Len(t, merged, 1)
	assert.True(t, merged[0].Available)
	assert.Equal(t, ItemPending, merged[0].Status)
}

func TestItemStatusDerivation(t *testing.T) {
	tests := []struct {
		requestStatus Status
		want          ItemStatus
	}{
		{StatusConfirmed, ItemConfirmed},
		{StatusReadyForPickup, ItemReadyForPickup},
		{StatusCompleted, ItemCollected},
		{StatusPending, ItemPending},
		{StatusPendingPatientConfirmation, ItemPending},
		{StatusPartiallyFulfilled, ItemPending},
		{StatusOutOfStock, ItemPending},
		{StatusCancelled, ItemPending},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, itemStatusFor(tt.requestStatus), "request status %s", tt.requestStatus)
	}
}

// Unavailable always wins over the request-status mapping, whatever the
// request status is.
func TestSyncItemStatusesUnavailableWins(t *testing.T) {
	for _, s := range allStatuses {
		r := &Request{
			Status: s,
			Items: LineItems{
				{Name: "A", Available: true},
				{Name: "B", Available: false},
			},
		}
		r.syncItemStatuses()

		assert.Equal(t, itemStatusFor(s), r.Items[0].Status, "request status %s", s)
		assert.Equal(t, ItemUnavailable, r.Items[1].Status, "request status %s", s)
	}
}
