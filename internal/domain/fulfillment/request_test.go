package fulfillment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest(t *testing.T, items ...ItemReport) *Request {
	t.Helper()
	r, err := New(&CreateRequestCommand{
		Type:               TypeMedication,
		PatientID:          uuid.New(),
		AssignedProviderID: uuid.New(),
		Items:              items,
		CreatedBy:          uuid.New(),
	})
	require.NoError(t, err)
	return r
}

func TestNewRequest(t *testing.T) {
	r := newTestRequest(t,
		ItemReport{Name: "Amoxicillin", Dosage: strPtr("500mg")},
		ItemReport{Name: "Ibuprofen"},
	)

	assert.Equal(t, StatusPending, r.Status)
	assert.True(t, r.AwaitingReport)
	require.Len(t, r.Items, 2)
	for _, it := range r.Items {
		assert.True(t, it.Available)
		assert.Equal(t, ItemPending, it.Status)
	}
}

func TestNewRequestValidation(t *testing.T) {
	_, err := New(&CreateRequestCommand{
		Type:               RequestType("bogus"),
		AssignedProviderID: uuid.New(),
		Items:              []ItemReport{{Name: "A"}},
	})
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = New(&CreateRequestCommand{
		Type:  TypeMedication,
		Items: []ItemReport{{Name: "A"}},
	})
	assert.ErrorIs(t, err, ErrProviderRequired)

	_, err = New(&CreateRequestCommand{
		Type:               TypeMedication,
		AssignedProviderID: uuid.New(),
	})
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestNewRequestMergesDuplicateNames(t *testing.T) {
	r := newTestRequest(t,
		ItemReport{Name: "Amoxicillin", Dosage: strPtr("250mg")},
		ItemReport{Name: "Amoxicillin", Dosage: strPtr("500mg")},
	)

	require.Len(t, r.Items, 1)
	assert.Equal(t, "500mg", r.Items[0].Dosage)
}

func TestRequestTypeProviderKind(t *testing.T) {
	assert.Equal(t, KindPharmacy, TypeMedication.ProviderKind())
	assert.Equal(t, KindLab, TypeLabResult.ProviderKind())
	assert.Equal(t, KindRadiologist, TypeImaging.ProviderKind())
}

func TestFirstReportAllAvailable(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "A"}, ItemReport{Name: "B"})

	err := r.ApplyReport([]ItemReport{
		{Name: "A", Available: boolPtr(true)},
		{Name: "B", Available: boolPtr(true)},
	}, nil, "")
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, r.Status)
	assert.False(t, r.AwaitingReport)
	for _, it := range r.Items {
		assert.Equal(t, ItemConfirmed, it.Status)
	}
}

func TestFirstReportAllUnavailableRequiresFeedback(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "Amoxicillin"})

	err := r.ApplyReport([]ItemReport{
		{Name: "Amoxicillin", Available: boolPtr(false)},
	}, nil, "")
	assert.ErrorIs(t, err, ErrFeedbackRequired)
	assert.Equal(t, StatusPending, r.Status, "no mutation on rejection")
	assert.True(t, r.AwaitingReport)
	require.Len(t, r.Items, 1)
	assert.True(t, r.Items[0].Available, "item merge rolled back")

	err = r.ApplyReport([]ItemReport{
		{Name: "Amoxicillin", Available: boolPtr(false)},
	}, nil, "Amoxicillin")
	require.NoError(t, err)

	assert.Equal(t, StatusOutOfStock, r.Status)
	assert.Equal(t, "Amoxicillin", r.Feedback)
	assert.Equal(t, ItemUnavailable, r.Items[0].Status)
}

func TestFirstReportMixedAvailability(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "A"}, ItemReport{Name: "B"})

	err := r.ApplyReport([]ItemReport{
		{Name: "A", Available: boolPtr(true)},
		{Name: "B", Available: boolPtr(false)},
	}, nil, "B")
	require.NoError(t, err)

	assert.Equal(t, StatusPendingPatientConfirmation, r.Status)
	assert.Equal(t, "B", r.Feedback)
	assert.Equal(t, ItemPending, r.Items[0].Status)
	assert.Equal(t, ItemUnavailable, r.Items[1].Status)
}

// After the first explicit transition, later reports only touch items; the
// request status stays put.
func TestLaterReportsDoNotReaggregate(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "A"}, ItemReport{Name: "B"})

	require.NoError(t, r.ApplyReport([]ItemReport{
		{Name: "A", Available: boolPtr(true)},
		{Name: "B", Available: boolPtr(true)},
	}, nil, ""))
	require.Equal(t, StatusConfirmed, r.Status)

	err := r.ApplyReport([]ItemReport{
		{Name: "B", Available: boolPtr(false)},
	}, nil, "")
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, r.Status)
	assert.Equal(t, ItemUnavailable, r.Items[1].Status)
}

func TestExplicitStatusOverridesAggregation(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "A"})

	err := r.ApplyReport([]ItemReport{
		{Name: "A", Available: boolPtr(true)},
	}, statusPtr(StatusReadyForPickup), "")
	require.NoError(t, err)

	assert.Equal(t, StatusReadyForPickup, r.Status)
	assert.Equal(t, ItemReadyForPickup, r.Items[0].Status)
}

func TestApplyStatusLegalAndIllegalEdges(t *testing.T) {
	// Every provider-legal edge succeeds from a request forced to the source
	// status; every other pair is rejected with a transition error.
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			r := newTestRequest(t, ItemReport{Name: "A"})
			r.Status = from
			r.AwaitingReport = false

			patientOnly := to == StatusCancelled ||
				(from == StatusPendingPatientConfirmation && to == StatusPartiallyFulfilled)

			feedback := ""
			if requiresFeedback(from, to) {
				feedback = "A"
			}

			err := r.ApplyStatus(to, feedback)
			if isLegal(from, to) && !patientOnly {
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, r.Status)
			} else {
				var transitionErr *TransitionError
				assert.ErrorAs(t, err, &transitionErr, "%s -> %s", from, to)
				assert.Equal(t, from, r.Status)
			}
		}
	}
}

func TestApplyStatusFeedbackRules(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "A"})
	err := r.ApplyStatus(StatusOutOfStock, "")
	assert.ErrorIs(t, err, ErrFeedbackRequired)

	require.NoError(t, r.ApplyStatus(StatusOutOfStock, "A"))
	assert.Equal(t, "A", r.Feedback)
}

func TestReadyForPickupClearsFeedback(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "A"}, ItemReport{Name: "B"})
	require.NoError(t, r.ApplyReport([]ItemReport{
		{Name: "A", Available: boolPtr(true)},
		{Name: "B", Available: boolPtr(false)},
	}, nil, "B"))
	require.NoError(t, r.ConfirmPartial())
	require.Equal(t, "B", r.Feedback)

	require.NoError(t, r.ApplyStatus(StatusReadyForPickup, ""))
	assert.Empty(t, r.Feedback)
}

// Completing the request collects every still-available item, even ones never
// re-reported, and leaves unavailable ones untouched.
func TestCompletionCollectsAvailableItems(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "A"}, ItemReport{Name: "B"})

	require.NoError(t, r.ApplyReport([]ItemReport{
		{Name: "A", Available: boolPtr(true)},
		{Name: "B", Available: boolPtr(false)},
	}, nil, "B"))
	require.NoError(t, r.ConfirmPartial())
	assert.Equal(t, StatusPartiallyFulfilled, r.Status)

	require.NoError(t, r.ApplyStatus(StatusReadyForPickup, ""))
	require.NoError(t, r.ApplyStatus(StatusCompleted, ""))

	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, ItemCollected, r.Items[0].Status)
	assert.Equal(t, ItemUnavailable, r.Items[1].Status)
}

func TestConfirmPartialOnlyFromPendingPatientConfirmation(t *testing.T) {
	for _, s := range allStatuses {
		r := newTestRequest(t, ItemReport{Name: "A"})
		r.Status = s
		r.AwaitingReport = false

		err := r.ConfirmPartial()
		if s == StatusPendingPatientConfirmation {
			assert.NoError(t, err, "status %s", s)
			assert.Equal(t, StatusPartiallyFulfilled, r.Status)
		} else {
			var transitionErr *TransitionError
			assert.ErrorAs(t, err, &transitionErr, "status %s", s)
		}
	}
}

func TestCancelWindows(t *testing.T) {
	for _, s := range allStatuses {
		r := newTestRequest(t, ItemReport{Name: "A"})
		r.Status = s
		r.AwaitingReport = false

		err := r.Cancel()
		if s.IsCancellable() {
			assert.NoError(t, err, "status %s", s)
			assert.Equal(t, StatusCancelled, r.Status)
		} else {
			assert.ErrorIs(t, err, ErrInvalidState, "status %s", s)
		}
	}
}

func TestReassign(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "A"}, ItemReport{Name: "B"})
	require.NoError(t, r.ApplyReport([]ItemReport{
		{Name: "A", Available: boolPtr(true)},
		{Name: "B", Available: boolPtr(false)},
	}, nil, "B"))
	require.NoError(t, r.ConfirmPartial())
	r.ResultFileURL = "s3://bucket/partial.pdf"

	newProvider := uuid.New()
	require.NoError(t, r.Reassign(newProvider))

	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, newProvider, r.AssignedProviderID)
	assert.Empty(t, r.Feedback)
	assert.Empty(t, r.ResultFileURL)
	assert.True(t, r.AwaitingReport, "next report re-triggers aggregation")

	// Prior per-item findings survive the handoff.
	assert.True(t, r.Items[0].Available)
	assert.False(t, r.Items[1].Available)
	assert.Equal(t, ItemUnavailable, r.Items[1].Status)
}

func TestReassignOnlyFromUnfulfilledStates(t *testing.T) {
	for _, s := range allStatuses {
		r := newTestRequest(t, ItemReport{Name: "A"})
		r.Status = s
		r.AwaitingReport = false

		err := r.Reassign(uuid.New())
		if s.IsReassignable() {
			assert.NoError(t, err, "status %s", s)
		} else {
			assert.ErrorIs(t, err, ErrInvalidState, "status %s", s)
		}
	}
}

func TestReassignRequiresProvider(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "A"})
	r.Status = StatusOutOfStock

	assert.ErrorIs(t, r.Reassign(uuid.Nil), ErrProviderRequired)
}

// Reassignment re-arms aggregation: the new provider's first report decides
// the request status again.
func TestReportAfterReassignReaggregates(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "A"})
	require.NoError(t, r.ApplyReport([]ItemReport{
		{Name: "A", Available: boolPtr(false)},
	}, nil, "A"))
	require.Equal(t, StatusOutOfStock, r.Status)

	require.NoError(t, r.Reassign(uuid.New()))

	require.NoError(t, r.ApplyReport([]ItemReport{
		{Name: "A", Available: boolPtr(true)},
	}, nil, ""))
	assert.Equal(t, StatusConfirmed, r.Status)
	assert.Equal(t, ItemConfirmed, r.Items[0].Status)
}

// An item reads unavailable exactly when its availability flag is false,
// across every workflow step.
func TestItemStatusAvailabilityInvariant(t *testing.T) {
	check := func(r *Request) {
		t.Helper()
		for _, it := range r.Items {
			assert.Equal(t, !it.Available, it.Status == ItemUnavailable, "item %s", it.Name)
		}
	}

	r := newTestRequest(t, ItemReport{Name: "A"}, ItemReport{Name: "B"}, ItemReport{Name: "C"})
	check(r)

	require.NoError(t, r.ApplyReport([]ItemReport{
		{Name: "B", Available: boolPtr(false)},
	}, nil, "B"))
	check(r)

	require.NoError(t, r.ConfirmPartial())
	check(r)

	require.NoError(t, r.ApplyReport([]ItemReport{
		{Name: "B", Available: boolPtr(true)},
	}, nil, ""))
	check(r)

	require.NoError(t, r.ApplyStatus(StatusReadyForPickup, ""))
	check(r)

	require.NoError(t, r.ApplyStatus(StatusCompleted, ""))
	check(r)
}

func TestTerminalRequestRejectsReports(t *testing.T) {
	r := newTestRequest(t, ItemReport{Name: "A"})
	require.NoError(t, r.Cancel())

	err := r.ApplyReport([]ItemReport{{Name: "A", Available: boolPtr(false)}}, nil, "A")
	var transitionErr *TransitionError
	assert.ErrorAs(t, err, &transitionErr)
}
